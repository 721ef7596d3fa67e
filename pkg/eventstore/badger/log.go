package badger

import (
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/feedr/pkg/slog"
)

// logger sends badger's own messages through slog, prefixed with Label.
// Messages above Level are dropped before formatting.
type logger struct {
	Level int
	Label string
}

func (l logger) Errorf(s string, i ...interface{}) {
	if l.Level >= slog.Error {
		log.E.Ln(l.Label+":", strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Warningf(s string, i ...interface{}) {
	if l.Level >= slog.Warn {
		log.W.Ln(l.Label+":", strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Infof(s string, i ...interface{}) {
	if l.Level >= slog.Info {
		log.I.Ln(l.Label+":", strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}

func (l logger) Debugf(s string, i ...interface{}) {
	if l.Level >= slog.Debug {
		log.D.Ln(l.Label+":", strings.TrimSpace(fmt.Sprintf(s, i...)))
	}
}
