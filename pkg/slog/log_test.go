package slog_test

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/Hubmakerlabs/feedr/pkg/slog"
	"github.com/stretchr/testify/assert"
)

var log, chk = slog.New(os.Stdout)

func TestGetLogger(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	slog.SetLogLevel(slog.Trace)
	log.T.Ln("testing log level", slog.LevelSpecs[slog.Trace].Name)
	log.D.Ln("testing log level", slog.LevelSpecs[slog.Debug].Name)
	log.I.Ln("testing log level", slog.LevelSpecs[slog.Info].Name)
	log.W.Ln("testing log level", slog.LevelSpecs[slog.Warn].Name)
	log.E.F("testing log level %s", slog.LevelSpecs[slog.Error].Name)
	chk.E(errors.New("dummy error as error"))
	chk.D(errors.New("dummy error as debug"))
	assert.Error(t, log.I.Err("format string %d '%s'", 5, "testing"))
	assert.False(t, log.I.Chk(nil))
	log.I.S("`backtick wrapped string`", t)
}

func TestLevelFiltering(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	var buf bytes.Buffer
	l, c := slog.New(&buf)
	slog.SetLogLevel(slog.Warn)
	l.D.Ln("hidden")
	l.I.F("hidden %d", 1)
	assert.Zero(t, buf.Len())
	// a suppressed check still reports the error
	assert.True(t, c.D(errors.New("quiet")))
	assert.Zero(t, buf.Len())
	l.W.Ln("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetLogLevelString(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	for in, want := range map[string]int{
		"":      slog.Info,
		"trace": slog.Trace,
		"DEBUG": slog.Debug,
		"w":     slog.Warn,
		"error": slog.Error,
		"off":   slog.Off,
		"bogus": slog.Info,
	} {
		slog.SetLogLevelString(in)
		assert.Equal(t, want, slog.GetLogLevel(), in)
	}
}
