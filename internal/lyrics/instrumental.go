package lyrics

import (
	"regexp"
	"strings"
)

// phrases matched as plain substrings
var instrumentalPhrases = []string{"inst.", "backing track", "without vocals", "no vocals", "music only"}

// single words matched on word boundaries so "ghost" does not read as "ost"
var instrumentalWords = regexp.MustCompile(`\b(instrumental|karaoke|interlude|intro|outro|theme|ost|suite)\b`)

// IsLikelyInstrumental reports whether title carries a keyword that usually marks a track without vocals.
func IsLikelyInstrumental(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range instrumentalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return instrumentalWords.MatchString(lower)
}
