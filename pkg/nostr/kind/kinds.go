package kind

import "strconv"

// T - which will be externally referenced as kind.T is the event type in the
// nostr protocol.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

func (ki T) String() string {
	if n, ok := names[ki]; ok {
		return n
	}
	return strconv.Itoa(int(ki))
}

const (
	// ProfileMetadata is an event type that stores user profile data, pet
	// names, bio, lightning address, etc.
	ProfileMetadata T = 0
	// TextNote is a standard short text note of plain text a la twitter
	TextNote T = 1
	// RecommendRelay is an event type carrying a relay URL in its content.
	RecommendRelay T = 2
	// FollowList an event containing a list of pubkeys of users that should be
	// shown as follows in a timeline.
	FollowList T = 3
	// Deletion requests the deletion of the events referenced by its e tags.
	Deletion T = 5
	// Repost shares another event.
	Repost T = 6
	// Reaction is a like or emoji reaction to another event.
	Reaction T = 7
)

var names = map[T]string{
	ProfileMetadata: "ProfileMetadata",
	TextNote:        "TextNote",
	RecommendRelay:  "RecommendRelay",
	FollowList:      "FollowList",
	Deletion:        "Deletion",
	Repost:          "Repost",
	Reaction:        "Reaction",
}
