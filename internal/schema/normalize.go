// Package schema maps open-ended provider attribute names onto the
// fixed-width, unique column names a DBF table accepts, and infers a DBF
// column kind for each attribute.
package schema

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxNameLen is the DBF field-name limit.
const MaxNameLen = 10

// Placeholder replaces missing or empty attribute names.
const Placeholder = "field"

var lower = cases.Lower(language.Und)

// Candidate returns the name a single attribute is reduced to before
// collision handling: lower-cased, double underscores collapsed, truncated.
func Candidate(name string) string {
	if name == "" {
		name = Placeholder
	}
	name = lower.String(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return truncate(name, MaxNameLen)
}

// Normalize renames attribute names positionally. The output has the same
// length and order as the input, every entry fits MaxNameLen and all entries
// are pairwise distinct. Repeated candidates get "_1", "_2", ... with the
// prefix shortened so the suffix is never cut.
func Normalize(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	counts := make(map[string]int, len(names))

	candidates := make([]string, len(names))
	for i, n := range names {
		candidates[i] = Candidate(n)
	}

	for i, c := range candidates {
		n, seen := counts[c]
		if !seen && !taken[c] {
			counts[c] = 0
			taken[c] = true
			out[i] = c
			continue
		}
		for {
			n++
			name := withSuffix(c, n)
			if !taken[name] {
				counts[c] = n
				taken[name] = true
				out[i] = name
				break
			}
		}
	}
	return out
}

// withSuffix appends "_n", shortening the prefix to keep MaxNameLen.
func withSuffix(prefix string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	room := MaxNameLen - len(suffix)
	if room < 0 {
		room = 0
	}
	return truncate(prefix, room) + suffix
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
