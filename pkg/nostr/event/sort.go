package event

// Descending sorts a slice of events in reverse chronological order (newest
// first), breaking ties by ascending id so the order is total.
type Descending []*T

func (e Descending) Len() int           { return len(e) }
func (e Descending) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }
func (e Descending) Less(i, j int) bool { return Before(e[i], e[j]) }

// Before reports whether a sorts ahead of b in a newest first feed.
func Before(a, b *T) bool {
	if a.createdAt != b.createdAt {
		return a.createdAt > b.createdAt
	}
	return a.id < b.id
}
