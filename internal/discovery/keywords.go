package discovery

import (
	"regexp"
	"strings"
)

// Keywords matches whole words or phrases case-insensitively, so "go" matches
// "Go!" and "let's go" but not "google" or "logout".
type Keywords struct {
	words    []string
	patterns []*regexp.Regexp
}

// NewKeywords compiles list. Blank entries are ignored.
func NewKeywords(list []string) Keywords {
	k := Keywords{}
	for _, w := range list {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		k.words = append(k.words, w)
		k.patterns = append(k.patterns, regexp.MustCompile(`(^|[^\pL\pN])`+regexp.QuoteMeta(w)+`($|[^\pL\pN])`))
	}
	return k
}

// Match returns the first keyword found in text.
func (k Keywords) Match(text string) (string, bool) {
	text = strings.ToLower(text)
	for i, re := range k.patterns {
		if re.MatchString(text) {
			return k.words[i], true
		}
	}
	return "", false
}

// tokens splits an attribute value such as "player_uid-input" into words.
func tokens(v string) []string {
	return strings.FieldsFunc(strings.ToLower(v), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
