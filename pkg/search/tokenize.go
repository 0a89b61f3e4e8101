package search

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// Tokenize splits text on whitespace and punctuation and lowercases the terms.
// Underscores, slashes, colons, dots and brackets all separate terms, so
// "tests/test_api.py::test_get" yields tests, test, api, py, test, get.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Z, r) || unicode.IsPunct(r)
}

type processor func(term string) string

func identity(term string) string { return term }

func stem(term string) string {
	// porter2 only handles ASCII words
	for _, r := range term {
		if r > unicode.MaxASCII {
			return term
		}
	}
	return porter2.Stem(term)
}

func (p processor) terms(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0]
	for _, t := range tokens {
		if t = p(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
