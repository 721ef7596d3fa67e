package filters

import (
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filter"
)

// T is a set of filters; an event matches when any one of them matches.
type T []*filter.T

func (eff T) Match(ev *event.T) bool {
	for _, f := range eff {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

func (eff T) String() (s string) {
	s = "["
	for i, f := range eff {
		if i > 0 {
			s += ","
		}
		s += f.String()
	}
	return s + "]"
}
