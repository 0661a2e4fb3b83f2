package usecase

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "for": {}, "of": {}, "to": {}, "and": {}, "or": {},
	"with": {}, "my": {}, "our": {}, "in": {}, "on": {}, "at": {}, "by": {}, "is": {},
	"that": {}, "this": {}, "it": {}, "me": {}, "i": {}, "we": {}, "some": {}, "simple": {},
	"build": {}, "create": {}, "make": {}, "want": {}, "need": {}, "please": {},
}

var synonyms = map[string]string{
	"application": "app",
	"webapp":      "app",
	"website":     "site",
	"uni":         "university",
	"college":     "university",
	"todos":       "todo",
	"task":        "todo",
}

// tokenize lowercases s, drops stop words and folds plurals and synonyms.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		if _, skip := stopWords[w]; skip {
			continue
		}
		if syn, ok := synonyms[w]; ok {
			w = syn
		} else if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
			if syn, ok := synonyms[w]; ok {
				w = syn
			}
		}
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|, 0 when both are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity scores two free-text inputs in [0,1].
func Similarity(a, b string) float64 {
	return jaccard(tokenize(a), tokenize(b))
}
