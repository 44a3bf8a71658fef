package lyrics

import (
	"regexp"
	"strings"
)

const (
	titleWeight  = 0.7
	artistWeight = 0.3
)

var noise = []*regexp.Regexp{
	regexp.MustCompile(`\s*\([^)]*\)`),
	regexp.MustCompile(`\s*\[[^\]]*\]`),
	regexp.MustCompile(`\s*-\s*remaster.*`),
	regexp.MustCompile(`\s*-\s*remix.*`),
	regexp.MustCompile(`\s*feat\..*`),
	regexp.MustCompile(`\s*ft\..*`),
}

// Normalize lowercases term and strips parenthetical and bracketed text along with remaster, remix and featuring
// suffixes.
func Normalize(term string) string {
	out := strings.ToLower(term)
	for _, re := range noise {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

// Similarity is the Jaccard index of the character-bigram sets of a and b, compared case-insensitively.
// Two inputs without bigrams score 0.
func Similarity(a, b string) float64 {
	sa, sb := bigrams(strings.ToLower(a)), bigrams(strings.ToLower(b))
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}

	inter := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Score weighs title similarity over artist similarity.
func Score(titleSim, artistSim float64) float64 {
	return titleWeight*titleSim + artistWeight*artistSim
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{}, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}
