package subscriptionid

import (
	"fmt"

	"github.com/Hubmakerlabs/feedr/pkg/hex"
	"lukechampine.com/frand"
)

// T is an arbitrary string of 1-64 characters in length generated
// as a request or session identifier.
type T string

func (si T) String() string { return string(si) }

// New returns a random identifier of 16 hex characters.
func New() T { return T(hex.Enc(frand.Bytes(8))) }

// NewSubscriptionID inspects a string and converts to T if it is valid.
func NewSubscriptionID(s string) (T, error) {
	if len(s) < 1 || len(s) > 64 {
		return "", fmt.Errorf("subscription id must be 1-64 characters, got %d",
			len(s))
	}
	return T(s), nil
}
