package command

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const defaultFuzzyThreshold = 0.80

// fuzzyKeyword matches mis-transcriptions of a single-word keyword. A token
// matches when its length is close to the keyword's, its Double Metaphone
// codes overlap the keyword's and the Jaro-Winkler similarity reaches the
// threshold. Double Metaphone codes are four characters long, so the length
// check is what keeps "internet" from triggering "intern".
type fuzzyKeyword struct {
	keyword   string
	codes     map[string]struct{}
	threshold float64
}

func newFuzzyKeyword(keyword string, threshold float64) *fuzzyKeyword {
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}
	return &fuzzyKeyword{keyword: keyword, codes: metaphone(keyword), threshold: threshold}
}

// match reports whether the normalized token is a plausible rendering of the
// keyword and returns its similarity.
func (f *fuzzyKeyword) match(token string) (float64, bool) {
	if token == "" {
		return 0, false
	}
	if token == f.keyword {
		return 1, true
	}
	if strings.HasPrefix(token, f.keyword) || !f.closeLength(token) {
		return 0, false
	}
	if !overlaps(metaphone(token), f.codes) {
		return 0, false
	}
	score := matchr.JaroWinkler(token, f.keyword, false)
	return score, score >= f.threshold
}

// closeLength allows one extra or missing letter per four keyword letters.
func (f *fuzzyKeyword) closeLength(token string) bool {
	kw, tk := utf8.RuneCountInString(f.keyword), utf8.RuneCountInString(token)
	diff := kw - tk
	if diff < 0 {
		diff = -diff
	}
	return diff <= max(1, kw/4)
}

// metaphone returns the non-empty Double Metaphone codes of word.
func metaphone(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
