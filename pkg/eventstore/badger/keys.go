package badger

import (
	"encoding/binary"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
)

const (
	// SerialLen is the length of serial values used for conflict resistant
	// keys.
	SerialLen = 8
	// TimestampLen is the standard 64 bit, 8 byte unix timestamp
	TimestampLen = 8
	// IDLen is the length of a raw event id.
	IDLen = 32
	// PrefixLen is the length of the database key prefixes for each type of
	// record.
	PrefixLen = 1
)

// Key prefixes. Raw events are stored under their serial; the index keys
// carry the serial at the end and have no value.
const (
	prefixEvent byte = iota
	prefixID
	prefixCreatedAt

	dbVersionKey byte = 255
)

func serialBytes(n uint64) (b []byte) {
	b = make([]byte, SerialLen)
	binary.BigEndian.PutUint64(b, n)
	return
}

func eventKey(ser []byte) []byte {
	return append([]byte{prefixEvent}, ser...)
}

func idKey(id []byte, ser []byte) (k []byte) {
	k = make([]byte, 0, PrefixLen+IDLen+SerialLen)
	k = append(k, prefixID)
	k = append(k, id...)
	return append(k, ser...)
}

func createdAtKey(ts timestamp.T, ser []byte) (k []byte) {
	k = make([]byte, PrefixLen+TimestampLen, PrefixLen+TimestampLen+SerialLen)
	k[0] = prefixCreatedAt
	binary.BigEndian.PutUint64(k[PrefixLen:], uint64(ts))
	return append(k, ser...)
}

// splitCreatedAtKey returns the timestamp and serial in a created_at index
// key.
func splitCreatedAtKey(k []byte) (ts timestamp.T, ser []byte) {
	ts = timestamp.T(binary.BigEndian.Uint64(k[PrefixLen:]))
	ser = k[PrefixLen+TimestampLen:]
	return
}
