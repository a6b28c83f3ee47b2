package textproc

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

var (
	tokenizer = unicode.NewUnicodeTokenizer()
	lowerCase = lowercase.NewLowerCaseFilter()
)

// Tokenize preprocesses text and splits it into lowercase terms on Unicode
// word boundaries (UAX #29). Combining marks stay attached to their letters.
func Tokenize(text string) []string {
	pre := Preprocess(text)
	if pre == "" {
		return nil
	}

	stream := lowerCase.Filter(tokenizer.Tokenize([]byte(pre)))
	return terms(stream)
}

func terms(stream analysis.TokenStream) []string {
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		out = append(out, string(tok.Term))
	}
	return out
}

// TermFrequencies counts the terms of text.
func TermFrequencies(text string) (map[string]int, int) {
	toks := Tokenize(text)
	tf := make(map[string]int, len(toks))
	for _, t := range toks {
		tf[t]++
	}
	return tf, len(toks)
}
