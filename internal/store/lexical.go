package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

const (
	// TextAnalyzerName is the analyzer for document text: Unicode word
	// boundaries, then lowercase. It matches textproc.Tokenize.
	TextAnalyzerName = "unicode_lower"

	textField = "text"

	// searchPage is the minimum hit page requested while filling k
	// accepted results.
	searchPage = 64
)

// lexicalDocument is the document structure for bleve indexing.
type lexicalDocument struct {
	Text string `json:"text"`
}

// BleveLexicalIndex implements LexicalIndex on an in-memory bleve index
// using bleve's default TF-IDF scoring. Text is preprocessed before it is
// analyzed, so queries and documents share one normal form.
type BleveLexicalIndex struct {
	mu       sync.RWMutex
	mapping  *mapping.IndexMappingImpl
	index    bleve.Index
	versions map[string]int64
	closed   bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// NewBleveLexicalIndex creates an empty lexical index.
func NewBleveLexicalIndex() (*BleveLexicalIndex, error) {
	m, err := newLexicalMapping()
	if err != nil {
		return nil, lexicalError("create", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, lexicalError("create", err)
	}
	return &BleveLexicalIndex{
		mapping:  m,
		index:    idx,
		versions: make(map[string]int64),
	}, nil
}

func newLexicalMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TextAnalyzerName

	// An explicit text field keeps dynamic mapping from reading date-like
	// text as a datetime.
	textMapping := bleve.NewTextFieldMapping()
	textMapping.Analyzer = TextAnalyzerName
	textMapping.Store = false
	textMapping.IncludeInAll = false
	textMapping.IncludeTermVectors = false
	textMapping.DocValues = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	docMapping.AddFieldMappingsAt(textField, textMapping)
	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

// Index implements LexicalIndex.
func (x *BleveLexicalIndex) Index(_ context.Context, id, text string, version int64) error {
	doc := lexicalDocument{Text: textproc.Preprocess(text)}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return errIndexClosed("lexical")
	}
	if err := x.index.Index(id, doc); err != nil {
		return lexicalError("index", err).WithDetail("id", id)
	}
	x.versions[id] = version
	return nil
}

// Remove implements LexicalIndex.
func (x *BleveLexicalIndex) Remove(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return errIndexClosed("lexical")
	}
	if _, ok := x.versions[id]; !ok {
		return nil
	}
	if err := x.index.Delete(id); err != nil {
		return lexicalError("remove", err).WithDetail("id", id)
	}
	delete(x.versions, id)
	return nil
}

// Score implements LexicalIndex. The id filter carries zero boost, so each
// hit scores exactly as the match query alone would score it.
func (x *BleveLexicalIndex) Score(ctx context.Context, query string, ids []string) (map[string]LexicalMatch, error) {
	q := textproc.Preprocess(query)

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, errIndexClosed("lexical")
	}

	out := make(map[string]LexicalMatch, len(ids))
	held := make([]string, 0, len(ids))
	for _, id := range ids {
		if v, ok := x.versions[id]; ok {
			out[id] = LexicalMatch{ID: id, Version: v}
			held = append(held, id)
		}
	}
	if len(held) == 0 || q == "" {
		return out, nil
	}

	only := bleve.NewDocIDQuery(held)
	only.SetBoost(0)
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(x.match(q), only), len(held), 0, false)
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, lexicalError("score", err)
	}
	for _, hit := range res.Hits {
		m := out[hit.ID]
		m.Score = hit.Score
		out[hit.ID] = m
	}
	return out, nil
}

// Search implements LexicalIndex. Hits rejected by allow do not count
// toward k; further pages are read until k are accepted or hits run out.
func (x *BleveLexicalIndex) Search(ctx context.Context, query string, k int, allow func(string) bool) ([]LexicalMatch, error) {
	q := textproc.Preprocess(query)

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, errIndexClosed("lexical")
	}
	if k <= 0 || q == "" {
		return []LexicalMatch{}, nil
	}

	page := max(k, searchPage)
	out := make([]LexicalMatch, 0, k)
	for from := 0; ; from += page {
		req := bleve.NewSearchRequestOptions(x.match(q), page, from, false)
		req.SortBy([]string{"-_score", "_id"})
		res, err := x.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, lexicalError("search", err)
		}
		for _, hit := range res.Hits {
			if hit.Score <= 0 || (allow != nil && !allow(hit.ID)) {
				continue
			}
			out = append(out, LexicalMatch{ID: hit.ID, Score: hit.Score, Version: x.versions[hit.ID]})
			if len(out) == k {
				return out, nil
			}
		}
		if len(res.Hits) < page {
			return out, nil
		}
	}
}

// ScoreText implements LexicalIndex. It applies bleve's TF-IDF model to text
// with the index's live document count and document frequencies: for each
// query term, sqrt(tf) * fieldNorm * idf * queryWeight, summed and scaled by
// the fraction of query terms present. An entry with the same text scores
// the same through Score.
func (x *BleveLexicalIndex) ScoreText(query, text string) float64 {
	qterms := textproc.Tokenize(query)
	tf, fieldLength := textproc.TermFrequencies(text)
	if len(qterms) == 0 || fieldLength == 0 {
		return 0
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0
	}
	docTotal, err := x.index.DocCount()
	if err != nil {
		return 0
	}
	docTotal = max(docTotal, 1)

	idf := make([]float64, len(qterms))
	var sumSquaredWeights float64
	for i, t := range qterms {
		docTerm, err := x.docFrequency(t)
		if err != nil {
			return 0
		}
		idf[i] = 1 + math.Log(float64(docTotal)/float64(docTerm+1))
		sumSquaredWeights += idf[i] * idf[i]
	}
	queryNorm := 1 / math.Sqrt(sumSquaredWeights)
	fieldNorm := float64(float32(1 / math.Sqrt(float64(fieldLength))))

	var sum float64
	matched := 0
	for i, t := range qterms {
		freq := tf[t]
		if freq == 0 {
			continue
		}
		matched++
		sum += math.Sqrt(float64(freq)) * fieldNorm * idf[i] * idf[i] * queryNorm
	}
	return sum * float64(matched) / float64(len(qterms))
}

// docFrequency counts the documents whose text holds term. Callers hold mu.
func (x *BleveLexicalIndex) docFrequency(term string) (uint64, error) {
	tq := bleve.NewTermQuery(term)
	tq.SetField(textField)
	res, err := x.index.Search(bleve.NewSearchRequestOptions(tq, 0, 0, false))
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (x *BleveLexicalIndex) match(text string) query.Query {
	q := bleve.NewMatchQuery(text)
	q.SetField(textField)
	return q
}

// Contains implements LexicalIndex.
func (x *BleveLexicalIndex) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.versions[id]
	return ok
}

// Version returns the version of the indexed text for id.
func (x *BleveLexicalIndex) Version(id string) (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.versions[id]
	return v, ok
}

// AllIDs implements LexicalIndex.
func (x *BleveLexicalIndex) AllIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.versions))
	for id := range x.versions {
		ids = append(ids, id)
	}
	return ids
}

// Count implements LexicalIndex.
func (x *BleveLexicalIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.versions)
}

// Terms returns the number of distinct terms in the text field dictionary.
func (x *BleveLexicalIndex) Terms() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0
	}
	dict, err := x.index.FieldDict(textField)
	if err != nil {
		return 0
	}
	defer func() { _ = dict.Close() }()

	n := 0
	for {
		entry, err := dict.Next()
		if err != nil || entry == nil {
			return n
		}
		if entry.Count > 0 {
			n++
		}
	}
}

// Reset implements LexicalIndex by swapping in a fresh in-memory index.
func (x *BleveLexicalIndex) Reset(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return errIndexClosed("lexical")
	}
	idx, err := bleve.NewMemOnly(x.mapping)
	if err != nil {
		return lexicalError("reset", err)
	}
	_ = x.index.Close()
	x.index = idx
	x.versions = make(map[string]int64)
	return nil
}

// Close implements LexicalIndex.
func (x *BleveLexicalIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	if err := x.index.Close(); err != nil {
		return lexicalError("close", err)
	}
	return nil
}

func lexicalError(op string, err error) *errors.ChatbotError {
	return errors.New(errors.ErrCodeIndexFailed, fmt.Sprintf("lexical %s failed: %v", op, err), err)
}
