package eventid

import (
	"fmt"

	"github.com/Hubmakerlabs/feedr/pkg/hex"
)

// T is the SHA256 hash in hexadecimal of the canonical form of an event.
type T string

func (ei T) String() string { return string(ei) }

// Bytes decodes the id, returning nil if it is not valid hex.
func (ei T) Bytes() (b []byte) {
	b, _ = hex.Dec(string(ei))
	return
}

// New inspects a string and ensures it is a valid, 64 character long
// lowercase hexadecimal string, returns the string coerced to the type.
func New(s string) (ei T, err error) {
	ei = T(s)
	if err = ei.Validate(); err != nil {
		return "", err
	}
	return
}

// Validate checks the T string is lowercase hex and 64 characters long.
func (ei T) Validate() (err error) {
	if !hex.IsLowerHex(string(ei), 64) {
		return fmt.Errorf("event ID '%s' is not 64 lowercase hex characters",
			string(ei))
	}
	return
}
