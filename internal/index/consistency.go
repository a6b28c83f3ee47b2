package index

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical indicates a lexical entry without a live document.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector indicates a vector entry without a live document.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical indicates a live document missing from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector indicates a live document missing from the vector index.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	ID      string            `json:"id"`
	Details string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of live documents verified.
	Checked int `json:"checked"`
	// Inconsistencies contains all detected issues, ordered by id.
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`
}

// RepairResult summarizes a Repair.
type RepairResult struct {
	Removed   int `json:"removed"`
	Reindexed int `json:"reindexed"`
	Failed    int `json:"failed"`
}

// ConsistencyChecker validates cross-store consistency.
// It detects orphaned entries (present in an index but not live in the
// document store) and missing entries (live but absent from an index).
type ConsistencyChecker struct {
	docs    store.DocumentStore
	lexical store.LexicalIndex
	vectors store.VectorIndex

	// skip excludes ids the purger still owns.
	skip func(id string) bool
	// lock serializes repairs with writers when set.
	lock func(ctx context.Context, id string) (func(), error)
}

// NewConsistencyChecker creates a new checker with the given stores.
func NewConsistencyChecker(docs store.DocumentStore, lexical store.LexicalIndex, vectors store.VectorIndex) *ConsistencyChecker {
	return &ConsistencyChecker{
		docs:    docs,
		lexical: lexical,
		vectors: vectors,
	}
}

// Check scans all stores for inconsistencies.
// This is O(n) where n is the total number of entries across all stores.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	liveIDs, err := c.docs.LiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	lexicalIDs := c.lexical.AllIDs()
	vectorIDs := c.vectors.AllIDs()

	for _, id := range lexicalIDs {
		if !live[id] && !c.skipped(id) {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanLexical,
				ID:      id,
				Details: "lexical entry without a live document",
			})
		}
	}
	for _, id := range vectorIDs {
		if !live[id] && !c.skipped(id) {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanVector,
				ID:      id,
				Details: "vector entry without a live document",
			})
		}
	}

	lexicalSet := toSet(lexicalIDs)
	vectorSet := toSet(vectorIDs)
	for _, id := range liveIDs {
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingLexical,
				ID:      id,
				Details: "live document missing from lexical index",
			})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingVector,
				ID:      id,
				Details: "live document missing from vector index",
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].ID != issues[j].ID {
			return issues[i].ID < issues[j].ID
		}
		return issues[i].Type < issues[j].Type
	})

	return &CheckResult{
		Checked:         len(liveIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected inconsistencies.
//   - Orphans: removed from the index that holds them, unless the id has
//     become live again since the check.
//   - Missing: re-indexed from the document store row.
//
// Repair is best-effort: every issue is attempted and the joined errors of
// the failures are returned.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) (*RepairResult, error) {
	res := &RepairResult{}
	var errs error

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return res, stderrors.Join(errs, err)
		}
		changed, err := c.repairOne(ctx, issue)
		switch {
		case err != nil:
			res.Failed++
			errs = stderrors.Join(errs, err)
			slog.Warn("repair_failed",
				slog.String("id", issue.ID),
				slog.String("type", issue.Type.String()),
				slog.String("error", err.Error()))
		case !changed:
		case issue.Type == InconsistencyOrphanLexical || issue.Type == InconsistencyOrphanVector:
			res.Removed++
		default:
			res.Reindexed++
		}
	}

	slog.Info("repair_complete",
		slog.Int("removed", res.Removed),
		slog.Int("reindexed", res.Reindexed),
		slog.Int("failed", res.Failed))
	return res, errs
}

func (c *ConsistencyChecker) repairOne(ctx context.Context, issue Inconsistency) (bool, error) {
	if c.lock != nil {
		release, err := c.lock(ctx, issue.ID)
		if err != nil {
			return false, err
		}
		defer release()
	}

	row, err := c.docs.Lookup(ctx, issue.ID)
	if err != nil {
		return false, err
	}
	isLive := row != nil && !row.Deleted

	switch issue.Type {
	case InconsistencyOrphanLexical:
		if isLive {
			return false, nil
		}
		return true, c.lexical.Remove(ctx, issue.ID)
	case InconsistencyOrphanVector:
		if isLive {
			return false, nil
		}
		return true, c.vectors.Remove(ctx, issue.ID)
	case InconsistencyMissingLexical:
		if !isLive {
			return false, nil
		}
		return true, c.lexical.Index(ctx, row.ID, row.Text, row.Version)
	case InconsistencyMissingVector:
		if !isLive {
			return false, nil
		}
		return true, c.vectors.Index(ctx, row.ID, row.Embedding, row.Version)
	default:
		return false, nil
	}
}

// QuickCheck performs a lightweight consistency check.
// It only verifies counts match across stores, not individual IDs.
// Returns true if counts are consistent.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	counts, err := c.docs.Counts(ctx)
	if err != nil {
		return false, err
	}
	lexicalCount := c.lexical.Count()
	vectorCount := c.vectors.Count()

	consistent := counts.Live == lexicalCount && counts.Live == vectorCount
	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("documents", counts.Live),
			slog.Int("lexical", lexicalCount),
			slog.Int("vector", vectorCount))
	}
	return consistent, nil
}

func (c *ConsistencyChecker) skipped(id string) bool {
	return c.skip != nil && c.skip(id)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Checker returns a consistency checker that ignores ids pending purge and
// repairs under the indexer's per-id locks.
func (ix *Indexer) Checker() *ConsistencyChecker {
	c := NewConsistencyChecker(ix.docs, ix.lexical, ix.vectors)
	c.skip = ix.purger.Pending
	c.lock = ix.locks.acquire
	return c
}

// Check runs a full consistency check.
func (ix *Indexer) Check(ctx context.Context) (*CheckResult, error) {
	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()
	return ix.Checker().Check(ctx)
}

// Repair checks the stores and fixes every issue found.
func (ix *Indexer) Repair(ctx context.Context) (*CheckResult, *RepairResult, error) {
	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()

	c := ix.Checker()
	check, err := c.Check(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := c.Repair(ctx, check.Inconsistencies)
	return check, res, err
}
