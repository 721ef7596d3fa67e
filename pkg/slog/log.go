// Package slog is a small leveled logger that prints a colored level tag,
// the message and the code location of the caller.
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

// EnvLevel is the environment variable read at startup to set the level.
const EnvLevel = "FEEDR_LOG"

func init() {
	SetLogLevelString(os.Getenv(EnvLevel))
}

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Println surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a function so that the extra computation can be avoided if it is
	// not being viewed
	C func(closure func() string)
	// Chk is a shortcut for printing if there is an error, or returning true
	Chk func(e error) bool
	// Err is a pass-through function that uses fmt.Errorf to construct an error
	// and returns the error after printing it to the log
	Err func(format string, a ...interface{}) error

	// LevelPrinter defines a set of terminal printing primitives that output
	// with extra data, log level, and code location
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}

	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32
	// LevelSpecs specifies the id, string name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

// Log is a set of log printers for the various Level items.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the set of error checkers matching the Log levels.
type Check struct {
	F, E, W, I, D, T Chk
}

// GetStd returns a logger writing to stderr.
func GetStd() (ll *Log) {
	ll, _ = New(os.Stderr)
	return
}

func JoinStrings(a ...any) (s string) {
	var b strings.Builder
	for i := range a {
		b.WriteString(fmt.Sprint(a[i]))
		if i < len(a)-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func enabled(l int32) bool { return l <= currentLevel.Load() }

func GetPrinter(l int32, writer io.Writer) LevelPrinter {
	out := func(text string) {
		fmt.Fprintf(writer,
			"%s %s %s\n",
			LevelSpecs[l].Colorizer(LevelSpecs[l].Name),
			text,
			GetLoc(3),
		)
	}
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			if enabled(l) {
				out(JoinStrings(a...))
			}
		},
		F: func(format string, a ...interface{}) {
			if enabled(l) {
				out(fmt.Sprintf(format, a...))
			}
		},
		S: func(a ...interface{}) {
			if enabled(l) {
				out(spew.Sdump(a...))
			}
		},
		C: func(closure func() string) {
			if enabled(l) {
				out(closure())
			}
		},
		Chk: func(e error) bool {
			if e != nil {
				if enabled(l) {
					out(e.Error())
				}
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			err := fmt.Errorf(format, a...)
			if enabled(l) {
				out(err.Error())
			}
			return err
		},
	}
}

func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: GetPrinter(Fatal, writer),
		E: GetPrinter(Error, writer),
		W: GetPrinter(Warn, writer),
		I: GetPrinter(Info, writer),
		D: GetPrinter(Debug, writer),
		T: GetPrinter(Trace, writer),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

func SetLogLevel(l int) { currentLevel.Store(int32(l)) }

func GetLogLevel() (l int) { return int(currentLevel.Load()) }

// SetLogLevelString sets the level from a name. Only the first letter is
// significant as they are unique; unknown or empty values select Info.
func SetLogLevelString(s string) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "1" || s == "true" || s == "on":
		SetLogLevel(Debug)
	case s == "0" || s == "false" || s == "":
		SetLogLevel(Info)
	case strings.HasPrefix(s, "o"):
		SetLogLevel(Off)
	case strings.HasPrefix(s, "f"):
		SetLogLevel(Fatal)
	case strings.HasPrefix(s, "e"):
		SetLogLevel(Error)
	case strings.HasPrefix(s, "w"):
		SetLogLevel(Warn)
	case strings.HasPrefix(s, "d"):
		SetLogLevel(Debug)
	case strings.HasPrefix(s, "t"):
		SetLogLevel(Trace)
	default:
		SetLogLevel(Info)
	}
}

func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(
		file, ":", line,
	)
	return
}
