package enveloper

import (
	"encoding/json"
)

// I is a protocol message: a JSON array whose first element is the label
// naming the message type.
//
// There is no matching UnmarshalJSON because the concrete type can only be
// chosen after reading the label, see envelopes.Parse.
type I interface {
	Label() string
	json.Marshaler
}
