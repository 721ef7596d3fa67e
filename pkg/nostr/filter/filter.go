package filter

import (
	"fmt"
	"os"
	"slices"

	"github.com/Hubmakerlabs/feedr/pkg/nostr/event"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/feedr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/feedr/pkg/slog"
	jsoniter "github.com/json-iterator/go"
)

var log, chk = slog.New(os.Stderr)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// T is a query where one or all elements can be filled in. Empty fields do
// not constrain the match.
//
// Tags are keyed by the single letter tag name without the '#' that prefixes
// them in the JSON form, which unfolds them into the enclosing object:
//
//	Tags: {"t": ["nostr"]}
//
// is encoded as
//
//	"#t": ["nostr"]
type T struct {
	IDs     []string
	Authors []string
	Kinds   []kind.T
	Tags    TagMap
	Since   *timestamp.T
	Until   *timestamp.T
	// Limit is the number of most recent events wanted, zero for no limit.
	Limit int
}

type TagMap map[string][]string

func (t TagMap) Clone() (t1 TagMap) {
	if t == nil {
		return
	}
	t1 = make(TagMap, len(t))
	for k, v := range t {
		t1[k] = slices.Clone(v)
	}
	return
}

// Matches reports whether ev satisfies every constraint in the filter. The
// limit is not considered.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID().String()) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind()) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, ev.PubKey()) {
		return false
	}
	if len(f.Tags) > 0 {
		tg := ev.Tags()
		for name, values := range f.Tags {
			if values != nil && !tg.ContainsAny(name, values) {
				return false
			}
		}
	}
	if f.Since != nil && ev.CreatedAt() < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt() > *f.Until {
		return false
	}
	return true
}

func (f *T) Clone() (clone *T) {
	clone = &T{
		IDs:     slices.Clone(f.IDs),
		Authors: slices.Clone(f.Authors),
		Kinds:   slices.Clone(f.Kinds),
		Tags:    f.Tags.Clone(),
		Limit:   f.Limit,
	}
	if f.Since != nil {
		clone.Since = f.Since.Ptr()
	}
	if f.Until != nil {
		clone.Until = f.Until.Ptr()
	}
	return
}

func (f *T) String() string {
	b, _ := f.MarshalJSON()
	return string(b)
}

// MarshalJSON writes the filter as a JSON object with empty fields omitted.
// Keys are sorted so the encoding is stable.
func (f *T) MarshalJSON() (b []byte, err error) {
	o := make(map[string]any)
	if len(f.IDs) > 0 {
		o["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		o["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		o["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		o["#"+name] = values
	}
	if f.Since != nil {
		o["since"] = *f.Since
	}
	if f.Until != nil {
		o["until"] = *f.Until
	}
	if f.Limit > 0 {
		o["limit"] = f.Limit
	}
	return json.Marshal(o)
}

// UnmarshalJSON unpacks a JSON encoded filter, rolling the "#x" keys up into
// Tags. Unknown keys are ignored.
func (f *T) UnmarshalJSON(b []byte) (err error) {
	if f == nil {
		return fmt.Errorf("cannot unmarshal into nil filter")
	}
	var o map[string]jsoniter.RawMessage
	if err = json.Unmarshal(b, &o); err != nil {
		return
	}
	*f = T{}
	for k, v := range o {
		switch {
		case k == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case k == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case k == "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case k == "since":
			f.Since = new(timestamp.T)
			err = json.Unmarshal(v, f.Since)
		case k == "until":
			f.Until = new(timestamp.T)
			err = json.Unmarshal(v, f.Until)
		case k == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case len(k) == 2 && k[0] == '#':
			var values []string
			if err = json.Unmarshal(v, &values); err == nil {
				if f.Tags == nil {
					f.Tags = make(TagMap)
				}
				f.Tags[k[1:]] = values
			}
		default:
			log.T.F("ignoring filter key '%s'", k)
		}
		if err != nil {
			return fmt.Errorf("filter field '%s': %w", k, err)
		}
	}
	return
}
