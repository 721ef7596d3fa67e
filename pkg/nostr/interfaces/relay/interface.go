package relay

import (
	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/filters"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscription"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/subscriptionid"
)

// I is a connection to one relay over some transport.
type I interface {
	// URL is the normalized relay address.
	URL() string
	IsConnected() bool
	// Connect establishes the connection. A relay can be connected again
	// after a previous connection ended.
	Connect(c context.T) error
	// Done is closed when the current connection ends. Before the first
	// Connect it returns a closed channel.
	Done() <-chan struct{}
	// Subscribe sends a REQ. The subscription ends with the connection.
	Subscribe(c context.T, id subscriptionid.T,
		ff filters.T) (*subscription.T, error)
	// Unsubscribe sends CLOSE and ends the subscription.
	Unsubscribe(id subscriptionid.T)
	// Publish sends an event and waits for the relay's OK.
	Publish(c context.T, ev *event.T) error
	// Close ends the current connection.
	Close() error
}

// Status is where a relay is in its connection lifecycle.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	BackingOff
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case BackingOff:
		return "backing-off"
	}
	return "unknown"
}
