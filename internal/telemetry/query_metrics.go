// Package telemetry keeps in-process query metrics for the index_status
// tool. Nothing leaves the process.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one answered or failed query.
type QueryEvent struct {
	Query       string
	Mode        string        // "hybrid" or "structured"
	ResultCount int
	Latency     time.Duration
	Failed      bool
}

// CircularBuffer is a fixed-capacity FIFO buffer. It is not safe for
// concurrent use; QueryMetrics guards it.
type CircularBuffer[T any] struct {
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	return b.size
}

// ExtractTerms returns the normalized tokens of a query with at least two
// characters. Structured queries have no terms.
func ExtractTerms(query string) []string {
	if textproc.IsBlank(query) || strings.HasPrefix(strings.TrimSpace(query), "/") {
		return nil
	}
	var terms []string
	for _, tok := range textproc.Tokenize(query) {
		if utf8.RuneCountInString(tok) >= 2 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a copy of the metrics at one point in time. Since is when
// collection started, in RFC 3339.
type Snapshot struct {
	TotalQueries        int64            `json:"total_queries"`
	FailedQueries       int64            `json:"failed_queries"`
	ZeroResultCount     int64            `json:"zero_result_count"`
	ExactRepeatCount    int64            `json:"exact_repeat_count"`
	ModeCounts          map[string]int64 `json:"mode_counts"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	TopTerms            []TermCount      `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	Since               string           `json:"since"`
}

// ZeroResultPercentage returns the percentage of answered queries that
// returned nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	answered := s.TotalQueries - s.FailedQueries
	if answered <= 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(answered) * 100
}

// Config sizes the collector. TopTermsReported caps Snapshot.TopTerms.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	TopTermsReported      int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      200,
		ZeroResultsCapacity:   20,
		RecentQueriesCapacity: 500,
		TopTermsReported:      10,
	}
}

// QueryMetrics collects query telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	cfg             Config
	modes           map[string]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	recentQueries   *lru.Cache[string, struct{}]
	zeroResults     *CircularBuffer[string]
	total           int64
	failed          int64
	zeroResultCount int64
	exactRepeats    int64
	since           time.Time
}

// NewQueryMetrics creates a collector. Zero config fields take defaults.
func NewQueryMetrics(cfg Config) *QueryMetrics {
	d := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = d.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = d.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = d.RecentQueriesCapacity
	}
	if cfg.TopTermsReported <= 0 {
		cfg.TopTermsReported = d.TopTermsReported
	}

	// lru.New only fails for a non-positive size.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		cfg:           cfg,
		modes:         make(map[string]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		recentQueries: recent,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		since:         time.Now(),
	}
}

// Record captures one query.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.modes[event.Mode]++
	m.latencies[LatencyToBucket(event.Latency)]++

	key := hashQuery(event.Query)
	if _, ok := m.recentQueries.Get(key); ok {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})

	if event.Failed {
		m.failed++
		return
	}

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	if event.ResultCount == 0 {
		m.zeroResultCount++
		m.zeroResults.Add(event.Query)
	}
}

// hashQuery keys the repeat detector on the normalized query.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	modes := make(map[string]int64, len(m.modes))
	for k, v := range m.modes {
		modes[k] = v
	}
	latencies := make(map[string]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[string(k)] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > m.cfg.TopTermsReported {
		terms = terms[:m.cfg.TopTermsReported]
	}

	return &Snapshot{
		TotalQueries:        m.total,
		FailedQueries:       m.failed,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeats,
		ModeCounts:          modes,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		Since:               m.since.UTC().Format(time.RFC3339),
	}
}
