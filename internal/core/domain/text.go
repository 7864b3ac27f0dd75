package domain

import "strings"

// Tokens splits text into lowercase word tokens. Punctuation separates
// tokens; duplicates are preserved.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTokenRune(r)
	})
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-':
		return true
	}
	return false
}

// MatchesAny reports whether any wanted label equals one of the values,
// ignoring case and surrounding space. An empty wanted list matches
// everything.
func MatchesAny(wanted, values []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		w = strings.TrimSpace(w)
		for _, v := range values {
			if strings.EqualFold(w, strings.TrimSpace(v)) {
				return true
			}
		}
	}
	return false
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// OverlapRatio returns the fraction of query tokens present in target.
// An empty query yields zero.
func OverlapRatio(query []string, target map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(query))
	hits := 0
	for _, tok := range query {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := target[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(seen))
}

// Jaccard returns |a ∩ b| / |a ∪ b| over two token lists.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
