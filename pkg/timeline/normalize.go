package timeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a token for matching: diacritics are removed, letters are
// lower-cased and everything that is not a letter or digit is dropped. So
// "Flubber," "flubber" and "FLÜBBER!" all normalize to "flubber".
func Normalize(token string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, token)
	if err != nil {
		folded = token
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Tokens splits a phrase on whitespace and normalizes each part, dropping
// parts that normalize to nothing. Each part lines up with one transcribed
// word, so a configured "uh-huh" matches the spoken word "Uh-huh,".
func Tokens(phrase string) []string {
	fields := strings.Fields(phrase)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := Normalize(f); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// EndsSentence reports whether a raw token ends with sentence-final
// punctuation, ignoring trailing quotes and closing brackets.
func EndsSentence(text string) bool {
	trimmed := strings.TrimRight(text, "\"')]}”’")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// MatchAt reports whether the normalized tokens of phrase occur contiguously in
// words starting at index i. Blank words never match.
func MatchAt(words []Word, i int, phrase []string) bool {
	if len(phrase) == 0 || i+len(phrase) > len(words) {
		return false
	}
	for k, tok := range phrase {
		w := words[i+k]
		if w.Blank() || Normalize(w.Text) != tok {
			return false
		}
	}
	return true
}
