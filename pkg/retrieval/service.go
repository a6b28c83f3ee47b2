package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/telemetry"
)

// DocumentsFile is the SQLite file inside the data directory.
const DocumentsFile = "documents.db"

// Service is one open data directory.
type Service struct {
	cfg *config.Config

	docs     *store.SQLiteStore
	lexical  *store.BleveLexicalIndex
	vectors  store.VectorIndex
	embedder embed.Embedder
	indexer  *index.Indexer
	planner  *search.Planner
	lock     *dataDirLock
	metrics  *telemetry.QueryMetrics

	stopPurger context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	embedder embed.Embedder
}

// WithEmbedder uses e instead of the configured provider. The service
// closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *openOptions) {
		o.embedder = e
	}
}

// OpenDir loads the configuration for the project rooted at dir and opens
// its data directory.
func OpenDir(ctx context.Context, dir string, opts ...Option) (*Service, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg, opts...)
}

// Open locks cfg.DataDir, opens the document store, rebuilds both indexes
// from it and starts the purger.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Service, err error) {
	start := time.Now()
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:     cfg,
		lock:    newDataDirLock(cfg.DataDir),
		metrics: telemetry.NewQueryMetrics(telemetry.DefaultConfig()),
	}
	if err := s.lock.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.docs, err = store.NewSQLiteStore(filepath.Join(cfg.DataDir, DocumentsFile))
	if err != nil {
		return nil, err
	}

	s.embedder = o.embedder
	if s.embedder == nil {
		s.embedder, err = embed.NewEmbedder(ctx, embedderConfig(cfg))
		if err != nil {
			return nil, err
		}
	}
	if err := s.checkModel(ctx); err != nil {
		return nil, err
	}

	s.vectors, err = newVectorIndex(cfg, s.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	s.lexical, err = store.NewBleveLexicalIndex()
	if err != nil {
		return nil, err
	}

	s.indexer = index.New(s.docs, s.lexical, s.vectors, s.embedder, indexerOptions(cfg))
	s.planner = search.NewPlanner(s.docs, s.lexical, s.vectors, s.embedder, plannerConfig(cfg),
		search.WithExclude(s.indexer.Purger().Pending))

	stats, err := s.indexer.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("service_opened",
		slog.String("data_dir", cfg.DataDir),
		slog.String("model", s.embedder.ModelName()),
		slog.String("vector_backend", cfg.Index.VectorBackend),
		slog.Int("indexed", stats.Indexed),
		slog.Int("queued_purges", stats.Queued),
		slog.Duration("duration", time.Since(start)))

	purgeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopPurger = cancel
	s.indexer.Start(purgeCtx)
	return s, nil
}

// checkModel records the embedder on a fresh store and rejects an embedder
// whose dimensions differ from the stored embeddings.
func (s *Service) checkModel(ctx context.Context) error {
	dims, err := s.docs.Dimensions(ctx)
	if err != nil {
		return err
	}
	if dims > 0 && dims != s.embedder.Dimensions() {
		return store.DimensionMismatch(dims, s.embedder.Dimensions()).
			WithDetail("model", s.embedder.ModelName()).
			WithSuggestion("use the embedding model the documents were indexed with, or run reset_index")
	}

	model, err := s.docs.GetState(ctx, store.StateKeyModel)
	if err != nil {
		return err
	}
	switch {
	case model == "":
		return s.docs.SetState(ctx, store.StateKeyModel, s.embedder.ModelName())
	case model != s.embedder.ModelName():
		slog.Warn("embedding_model_changed",
			slog.String("stored", model),
			slog.String("current", s.embedder.ModelName()))
	}
	return nil
}

// Add creates a document, or resurrects a deleted one.
func (s *Service) Add(ctx context.Context, id, text string, metadata map[string]any) (index.Result, error) {
	return s.indexer.Add(ctx, id, text, metadata)
}

// Update replaces the text and metadata of a live document.
func (s *Service) Update(ctx context.Context, id, text string, metadata map[string]any) (index.Result, error) {
	return s.indexer.Update(ctx, id, text, metadata)
}

// Delete removes a document. Deleting an absent id succeeds.
func (s *Service) Delete(ctx context.Context, id string) (index.Result, error) {
	return s.indexer.Delete(ctx, id)
}

// Search runs a hybrid query.
func (s *Service) Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error) {
	start := time.Now()
	results, err := s.planner.Search(ctx, query, opts)
	s.record(query, ModeHybrid, len(results), start, err)
	return results, err
}

// StructuredQuery filters documents by id, version and metadata.
func (s *Service) StructuredQuery(ctx context.Context, req search.StructuredRequest) ([]search.Record, error) {
	start := time.Now()
	records, err := s.planner.StructuredQuery(ctx, req)
	s.record(search.StructuredPrefix, ModeStructured, len(records), start, err)
	return records, err
}

// QueryResponse is the answer to Query. Exactly one of Results and Records
// is set, matching Mode.
type QueryResponse struct {
	Mode    string          `json:"mode"`
	Results []search.Result `json:"results,omitempty"`
	Records []search.Record `json:"records,omitempty"`
}

// Query modes.
const (
	ModeHybrid     = "hybrid"
	ModeStructured = "structured"
)

// Query dispatches a "/sql ..." input to StructuredQuery and anything else
// to Search.
func (s *Service) Query(ctx context.Context, input string, opts search.SearchOptions) (*QueryResponse, error) {
	start := time.Now()
	if search.IsStructured(input) {
		records, err := s.structured(ctx, input, opts)
		s.record(input, ModeStructured, len(records), start, err)
		if err != nil {
			return nil, err
		}
		return &QueryResponse{Mode: ModeStructured, Records: records}, nil
	}

	results, err := s.planner.Search(ctx, input, opts)
	s.record(input, ModeHybrid, len(results), start, err)
	if err != nil {
		return nil, err
	}
	return &QueryResponse{Mode: ModeHybrid, Results: results}, nil
}

func (s *Service) structured(ctx context.Context, input string, opts search.SearchOptions) ([]search.Record, error) {
	req, err := search.ParseStructured(input)
	if err != nil {
		return nil, err
	}
	if opts.TopN > 0 && (req.Limit == 0 || req.Limit > opts.TopN) {
		req.Limit = opts.TopN
	}
	return s.planner.StructuredQuery(ctx, req)
}

func (s *Service) record(query, mode string, n int, start time.Time, err error) {
	s.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        mode,
		ResultCount: n,
		Latency:     time.Since(start),
		Failed:      err != nil,
	})
}

// QueryStats returns the query metrics collected since Open.
func (s *Service) QueryStats() *telemetry.Snapshot {
	return s.metrics.Snapshot()
}

// ResetIndex clears every document and index entry.
func (s *Service) ResetIndex(ctx context.Context) error {
	if err := s.indexer.Reset(ctx); err != nil {
		return err
	}
	return s.recordModel(ctx)
}

// Get returns the live document id.
func (s *Service) Get(ctx context.Context, id string) (*store.Document, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, err
	}
	return s.docs.Get(ctx, id)
}

// Sync adds, updates or skips one document depending on what is stored.
func (s *Service) Sync(ctx context.Context, id, text string, metadata map[string]any) (index.SyncAction, index.Result, error) {
	return s.indexer.Sync(ctx, id, text, metadata)
}

// SyncBatch syncs many documents.
func (s *Service) SyncBatch(ctx context.Context, items []index.SyncItem) (index.SyncReport, error) {
	return s.indexer.SyncBatch(ctx, items)
}

// Check compares the document store with both indexes.
func (s *Service) Check(ctx context.Context) (*index.CheckResult, error) {
	return s.indexer.Check(ctx)
}

// Repair checks and fixes drift between the document store and the indexes.
func (s *Service) Repair(ctx context.Context) (*index.CheckResult, *index.RepairResult, error) {
	return s.indexer.Repair(ctx)
}

// FlushPurges runs every queued purge now.
func (s *Service) FlushPurges(ctx context.Context) error {
	return s.indexer.Purger().Flush(ctx)
}

// Stats describes the contents of the data directory.
type Stats struct {
	Documents      int    `json:"documents"`
	Tombstoned     int    `json:"tombstoned"`
	LexicalEntries int    `json:"lexical_entries"`
	LexicalTerms   int    `json:"lexical_terms"`
	VectorEntries  int    `json:"vector_entries"`
	PendingPurges  int    `json:"pending_purges"`
	Dimensions     int    `json:"dimensions"`
	Model          string `json:"model"`
	VectorBackend  string `json:"vector_backend"`
	Generation     int64  `json:"generation"`
	DataDir        string `json:"data_dir"`
}

// Stats returns document and index counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.docs.Counts(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := s.docs.Generation(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Documents:      counts.Live,
		Tombstoned:     counts.Tombstoned,
		LexicalEntries: s.lexical.Count(),
		LexicalTerms:   s.lexical.Terms(),
		VectorEntries:  s.vectors.Count(),
		PendingPurges:  s.indexer.Purger().Len(),
		Dimensions:     s.vectors.Dimensions(),
		Model:          s.embedder.ModelName(),
		VectorBackend:  s.cfg.Index.VectorBackend,
		Generation:     gen,
		DataDir:        s.cfg.DataDir,
	}, nil
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Embedder returns the embedder in use.
func (s *Service) Embedder() embed.Embedder {
	return s.embedder
}

// Close stops the purger and releases every resource. Queued purges are
// re-queued from their tombstones on the next Open.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.stopPurger != nil {
			s.stopPurger()
		}
		if s.indexer != nil {
			s.indexer.Stop()
		}

		var errs []string
		record := func(name string, err error) {
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			}
		}
		if c, ok := s.embedder.(*embed.CachedEmbedder); ok {
			hits, misses := c.Stats()
			slog.Debug("embedding_cache_stats",
				slog.Int64("hits", hits),
				slog.Int64("misses", misses))
		}
		if s.embedder != nil {
			record("embedder", s.embedder.Close())
		}
		if s.vectors != nil {
			record("vectors", s.vectors.Close())
		}
		if s.lexical != nil {
			record("lexical", s.lexical.Close())
		}
		if s.docs != nil {
			record("documents", s.docs.Close())
		}
		record("lock", s.lock.release())

		if len(errs) > 0 {
			s.closeErr = errors.New(errors.ErrCodeInternal, "close failed: "+strings.Join(errs, "; "), nil)
		}
	})
	return s.closeErr
}

// recordModel stores the embedder name after a reset cleared it.
func (s *Service) recordModel(ctx context.Context) error {
	model, err := s.docs.GetState(ctx, store.StateKeyModel)
	if err != nil || model != "" {
		return err
	}
	return s.docs.SetState(ctx, store.StateKeyModel, s.embedder.ModelName())
}

func embedderConfig(cfg *config.Config) embed.Config {
	e := cfg.Embeddings
	var apiKey string
	if e.OpenAIAPIKeyEnv != "" {
		apiKey = os.Getenv(e.OpenAIAPIKeyEnv)
	}
	return embed.Config{
		Provider:      embed.ProviderType(e.Provider),
		Model:         e.Model,
		Dimensions:    e.Dimensions,
		OllamaHost:    e.OllamaHost,
		OpenAIBaseURL: e.OpenAIBaseURL,
		OpenAIAPIKey:  apiKey,
		CacheSize:     e.CacheSize,
		Timeout:       e.Timeout,
		MaxRetries:    e.MaxRetries,
	}
}

func newVectorIndex(cfg *config.Config, dims int) (store.VectorIndex, error) {
	switch cfg.Index.VectorBackend {
	case config.BackendFlat:
		return store.NewFlatIndex(dims)
	case config.BackendHNSW, "":
		return store.NewHNSWIndex(store.HNSWConfig{
			Dimensions: dims,
			M:          cfg.Index.HNSWM,
			EfSearch:   cfg.Index.HNSWEfSearch,
		})
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown vector backend %q", cfg.Index.VectorBackend), nil).
			WithSuggestion("use hnsw or flat")
	}
}

func indexerOptions(cfg *config.Config) index.Options {
	opts := index.DefaultOptions()
	if cfg.Index.OperationTimeout > 0 {
		opts.OperationTimeout = cfg.Index.OperationTimeout
	}
	if cfg.Index.SyncSimilarityThreshold > 0 {
		opts.SyncThreshold = cfg.Index.SyncSimilarityThreshold
	}
	if cfg.Index.PurgeInterval > 0 {
		opts.Purge.Interval = cfg.Index.PurgeInterval
	}
	if cfg.Index.PurgeMaxRetries > 0 {
		opts.Purge.MaxRetries = cfg.Index.PurgeMaxRetries
	}
	return opts
}

func plannerConfig(cfg *config.Config) search.Config {
	pc := search.DefaultConfig()
	pc.DefaultTopN = cfg.Search.DefaultTopN
	pc.OversampleFactor = cfg.Search.OversampleFactor
	pc.Weights = search.Weights{Lexical: cfg.Search.LexicalWeight, Vector: cfg.Search.VectorWeight}
	pc.DefaultCertainty = cfg.Search.DefaultCertainty
	pc.MinSimilarity = cfg.Search.MinSimilarity
	return pc
}
