// Package interrupt runs registered shutdown handlers, newest first, when the
// process receives SIGINT or SIGTERM or a shutdown is requested.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

type handler struct {
	source string
	fn     func()
}

var (
	mx       sync.Mutex
	handlers []handler
	started  bool
	once     sync.Once
	// ch receives the signals that cause the interrupt.
	ch = make(chan os.Signal, 1)
	// request is closed by Request.
	request = make(chan struct{})
	// HandlersDone is closed after all handlers have run.
	HandlersDone = make(chan struct{})
)

func listen() {
	select {
	case sig := <-ch:
		log.D.Ln("received interrupt signal", sig)
	case <-request:
		log.D.Ln("shutdown requested")
	}
	signal.Stop(ch)
	mx.Lock()
	hs := handlers
	handlers = nil
	mx.Unlock()
	for i := len(hs) - 1; i >= 0; i-- {
		log.T.Ln("running interrupt handler", hs[i].source)
		hs[i].fn()
	}
	close(HandlersDone)
}

// AddHandler adds fn to the handlers run on interrupt.
func AddHandler(fn func()) {
	_, file, line, _ := runtime.Caller(1)
	mx.Lock()
	defer mx.Unlock()
	handlers = append(handlers, handler{fmt.Sprintf("%s:%d", file, line), fn})
	if !started {
		started = true
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go listen()
	}
}

// Request runs the handlers as if a signal had arrived.
func Request() { once.Do(func() { close(request) }) }

// Context returns a context that is cancelled on interrupt.
func Context(parent context.T) (c context.T, cancel context.F) {
	c, cancel = context.Cancel(parent)
	AddHandler(cancel)
	return
}
