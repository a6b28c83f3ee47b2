package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// Planner answers hybrid and structured queries. It only reads.
type Planner struct {
	docs     store.DocumentStore
	lexical  store.LexicalIndex
	vectors  store.VectorIndex
	embedder embed.Embedder
	config   Config

	// exclude keeps ids out of candidate generation, e.g. tombstones
	// waiting for the purger.
	exclude excludeFunc
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithExclude keeps ids for which fn returns true out of the candidate pool.
func WithExclude(fn func(id string) bool) PlannerOption {
	return func(p *Planner) {
		p.exclude = fn
	}
}

// NewPlanner creates a planner over the three stores.
func NewPlanner(docs store.DocumentStore, lexical store.LexicalIndex, vectors store.VectorIndex, embedder embed.Embedder, config Config, opts ...PlannerOption) *Planner {
	p := &Planner{
		docs:     docs,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		config:   config.withDefaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective planner configuration.
func (p *Planner) Config() Config {
	return p.config
}

// Search runs a hybrid query and returns at most TopN results ordered by
// fused score desc, then id asc. Only documents live in the document store
// are returned.
func (p *Planner) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	start := time.Now()
	opts, err := p.resolve(query, opts)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	qvec, err := p.embedder.Embed(ctx, textproc.Preprocess(query))
	if err != nil {
		return nil, queryError(query, err)
	}
	if dims := p.vectors.Dimensions(); dims > 0 && len(qvec) != dims {
		return nil, store.DimensionMismatch(dims, len(qvec)).WithDetail("query", query)
	}

	ids, err := p.candidates(ctx, query, qvec, opts.TopN*p.config.OversampleFactor)
	if err != nil {
		return nil, queryError(query, err)
	}

	cands, err := p.score(ctx, query, qvec, ids)
	if err != nil {
		return nil, queryError(query, err)
	}
	fuse(cands, *opts.Weights)

	kept := cands[:0]
	for _, c := range cands {
		if c.vector < *opts.CertaintyThreshold {
			continue
		}
		if c.lexical <= 0 && c.vector < p.config.MinSimilarity {
			continue
		}
		kept = append(kept, c)
	}
	rank(kept)
	if len(kept) > opts.TopN {
		kept = kept[:opts.TopN]
	}

	results := make([]Result, len(kept))
	for i, c := range kept {
		results[i] = Result{
			ID:           c.row.ID,
			Score:        c.fused,
			LexicalScore: c.lexical,
			VectorScore:  c.vector,
			Version:      c.row.Version,
			Text:         c.row.Text,
			Metadata:     c.row.Metadata,
		}
	}

	slog.Debug("search_complete",
		slog.String("query", query),
		slog.Int("pool", len(cands)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// resolve validates the query and fills option defaults.
func (p *Planner) resolve(query string, opts SearchOptions) (SearchOptions, error) {
	if textproc.IsBlank(query) {
		return opts, errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil).WithDetail("query", query)
	}

	if opts.TopN <= 0 {
		opts.TopN = p.config.DefaultTopN
	} else if opts.TopN > p.config.MaxTopN {
		return opts, errors.ValidationError(fmt.Sprintf("top_n must be at most %d", p.config.MaxTopN), nil).
			WithDetail("query", query).
			WithDetail("top_n", fmt.Sprint(opts.TopN))
	}

	if opts.CertaintyThreshold == nil {
		c := p.config.DefaultCertainty
		opts.CertaintyThreshold = &c
	} else if t := *opts.CertaintyThreshold; t < 0 || t > 1 {
		return opts, errors.ValidationError("certainty threshold must be in [0, 1]", nil).
			WithDetail("query", query).
			WithDetail("certainty", fmt.Sprint(t))
	}

	if opts.Weights == nil {
		w := p.config.Weights
		opts.Weights = &w
	} else if err := opts.Weights.Validate(); err != nil {
		ce, _ := errors.As(err)
		return opts, ce.WithDetail("query", query)
	}
	return opts, nil
}

// candidates fetches the top-k of each index in parallel and returns the
// union in id order.
func (p *Planner) candidates(ctx context.Context, query string, qvec []float32, k int) ([]string, error) {
	var (
		vecHits []store.VectorMatch
		lexHits []store.LexicalMatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecHits, err = p.vectors.Search(gctx, qvec, k, p.exclude.allow())
		return err
	})
	g.Go(func() error {
		var err error
		lexHits, err = p.lexical.Search(gctx, query, k, p.exclude.allow())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(vecHits)+len(lexHits))
	for _, h := range vecHits {
		seen[h.ID] = struct{}{}
	}
	for _, h := range lexHits {
		seen[h.ID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// score reads the live rows for ids and computes both signals from each
// row. The vector signal is exact cosine against the row's embedding; the
// lexical signal is the index entry when it matches the row version and a
// fresh score of the row's text otherwise.
func (p *Planner) score(ctx context.Context, query string, qvec []float32, ids []string) ([]*candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	live := make([]string, 0, len(rows))
	for _, id := range ids {
		if _, ok := rows[id]; ok {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	lex, err := p.lexical.Score(ctx, query, live)
	if err != nil {
		return nil, err
	}

	cands := make([]*candidate, 0, len(live))
	for _, id := range live {
		row := rows[id]
		c := &candidate{row: row, vector: store.Cosine(qvec, row.Embedding)}
		if m, ok := lex[id]; ok && m.Version == row.Version {
			c.lexical = m.Score
		} else {
			c.lexical = p.lexical.ScoreText(query, row.Text)
		}
		cands = append(cands, c)
	}
	return cands, nil
}

type excludeFunc func(id string) bool

func (e excludeFunc) allow() func(id string) bool {
	if e == nil {
		return nil
	}
	return func(id string) bool { return !e(id) }
}

// queryError attaches the query to err and maps foreign errors to a
// search failure.
func queryError(query string, err error) error {
	if ce, ok := errors.As(err); ok {
		if ce.Details["query"] == "" {
			ce.WithDetail("query", query)
		}
		return ce
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.ErrCodeUpstreamTimeout, "search timed out", err).WithDetail("query", query)
	case stderrors.Is(err, context.Canceled):
		return err
	default:
		return errors.New(errors.ErrCodeSearchFailed, err.Error(), err).WithDetail("query", query)
	}
}
