package app

import (
	"strings"
	"unicode"
)

// Hashtags returns a "t" tag for each distinct #word in content, lowercased.
func Hashtags(content string) (tags [][]string) {
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(content) {
		if len(w) < 2 || w[0] != '#' {
			continue
		}
		h := strings.TrimRightFunc(w[1:], func(r rune) bool {
			return unicode.IsPunct(r) && r != '_' && r != '-'
		})
		h = strings.ToLower(h)
		if h == "" || strings.ContainsRune(h, '#') {
			continue
		}
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			tags = append(tags, []string{"t", h})
		}
	}
	return
}
