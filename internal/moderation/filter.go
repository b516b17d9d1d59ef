// Package moderation provides content filtering for in-session messages.
// It screens relayed text against a fixed vocabulary before delivery;
// blocked messages are never forwarded to the partner.
package moderation

import "strings"

// defaultWords is the built-in profanity vocabulary. Matching is
// case-insensitive and whole-word only: "classic" must never match "lass".
var defaultWords = []string{
	"anjing",
	"babi",
	"bangsat",
	"bego",
	"brengsek",
	"goblok",
	"kampret",
	"monyet",
	"sialan",
	"tolol",
}

// FilterResult is the outcome of a single check.
type FilterResult struct {
	Blocked bool
	Term    string // the vocabulary word that matched, if blocked
}

// Filter performs a deterministic, stateless membership test over
// whitespace-split tokens. Tokens are lowercased but not otherwise
// normalized: a word with adjacent punctuation ("kata!") does not match.
// Whether it should is an open product question; until clarified the
// filter sticks to strict whitespace tokenization.
type Filter struct {
	words map[string]struct{}
}

// NewFilter creates a filter with the default vocabulary.
func NewFilter() *Filter {
	return NewFilterWithWords(defaultWords)
}

// NewFilterWithWords creates a filter with a custom vocabulary. Words are
// lowercased; empty entries are ignored.
func NewFilterWithWords(words []string) *Filter {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &Filter{words: set}
}

// Check splits text on whitespace and tests each lowercased token for
// vocabulary membership. The first match wins.
func (f *Filter) Check(text string) FilterResult {
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if _, ok := f.words[token]; ok {
			return FilterResult{Blocked: true, Term: token}
		}
	}
	return FilterResult{}
}

// IsProfane reports whether text contains any vocabulary word.
func (f *Filter) IsProfane(text string) bool {
	return f.Check(text).Blocked
}
