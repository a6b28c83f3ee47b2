package index

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// PurgeConfig configures the background purger.
type PurgeConfig struct {
	// Interval is how often pending tombstones are swept.
	Interval time.Duration

	// MaxRetries is how many failed attempts a tombstone gets on the
	// backoff schedule. Past it the job stays pending and is retried every
	// MaxDelay until it succeeds or a Rebuild clears it.
	MaxRetries int

	// InitialDelay and MaxDelay bound the backoff between attempts.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPurgeConfig returns the purger defaults.
func DefaultPurgeConfig() PurgeConfig {
	return PurgeConfig{
		Interval:     2 * time.Second,
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
	}
}

type purgeJob struct {
	version  int64
	attempts int
	due      time.Time
}

// purgeFunc removes the index entries of a tombstone and then the row.
type purgeFunc func(ctx context.Context, id string, version int64) error

// Purger removes tombstoned documents from the indexes and the store in
// the background. Ids it holds are pending: the planner keeps them out of
// candidate generation until they are gone.
type Purger struct {
	cfg   PurgeConfig
	purge purgeFunc
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]*purgeJob

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// NewPurger creates a purger that calls purge for each due tombstone.
func NewPurger(cfg PurgeConfig, purge purgeFunc) *Purger {
	def := DefaultPurgeConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Purger{
		cfg:     cfg,
		purge:   purge,
		now:     time.Now,
		pending: make(map[string]*purgeJob),
		wake:    make(chan struct{}, 1),
	}
}

// Start runs the sweep loop until Stop is called or ctx is done.
func (p *Purger) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})
	stop, stopped := p.stop, p.stopped
	p.mu.Unlock()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
			case <-p.wake:
			}
			p.sweep(ctx, false)
		}
	}()
}

// Stop ends the sweep loop and waits for it. Pending tombstones stay
// queued.
func (p *Purger) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, stopped := p.stop, p.stopped
	p.mu.Unlock()

	close(stop)
	<-stopped
}

// Enqueue schedules id for purging at version. A newer version replaces
// an older job for the same id.
func (p *Purger) Enqueue(id string, version int64) {
	p.mu.Lock()
	if job, ok := p.pending[id]; ok && job.version >= version {
		p.mu.Unlock()
		return
	}
	p.pending[id] = &purgeJob{version: version, due: p.now()}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Cancel drops a pending job, used when id is resurrected.
func (p *Purger) Cancel(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// Pending reports whether id is waiting to be purged.
func (p *Purger) Pending(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[id]
	return ok
}

// PendingIDs returns the queued ids in ascending order.
func (p *Purger) PendingIDs() []string {
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len returns the queue depth.
func (p *Purger) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Clear drops every pending job.
func (p *Purger) Clear() {
	p.mu.Lock()
	p.pending = make(map[string]*purgeJob)
	p.mu.Unlock()
}

// Flush attempts every pending job now, ignoring backoff, and returns the
// joined errors of the jobs that failed.
func (p *Purger) Flush(ctx context.Context) error {
	return p.sweep(ctx, true)
}

func (p *Purger) sweep(ctx context.Context, all bool) error {
	now := p.now()
	type due struct {
		id      string
		version int64
	}

	p.mu.Lock()
	var jobs []due
	for id, job := range p.pending {
		if all || !job.due.After(now) {
			jobs = append(jobs, due{id: id, version: job.version})
		}
	}
	p.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id < jobs[j].id })

	var errs error
	for _, j := range jobs {
		if ctx.Err() != nil {
			return stderrors.Join(errs, ctx.Err())
		}
		err := p.purge(ctx, j.id, j.version)
		p.finish(j.id, j.version, err)
		if err != nil {
			errs = stderrors.Join(errs, err)
		}
	}
	return errs
}

// finish records the outcome of one attempt. A job replaced by a newer
// version while it ran is left alone.
func (p *Purger) finish(id string, version int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.pending[id]
	if !ok || job.version != version {
		return
	}
	if err == nil {
		delete(p.pending, id)
		slog.Debug("document_purged", slog.String("id", id), slog.Int64("version", version))
		return
	}

	job.attempts++
	if job.attempts > p.cfg.MaxRetries {
		job.due = p.now().Add(p.cfg.MaxDelay)
		if job.attempts == p.cfg.MaxRetries+1 {
			slog.Error("purge_stalled",
				slog.String("id", id),
				slog.Int64("version", version),
				slog.Int("attempts", job.attempts),
				slog.Duration("retry_every", p.cfg.MaxDelay),
				slog.String("error", err.Error()))
		}
		return
	}

	delay := p.cfg.InitialDelay << (job.attempts - 1)
	if delay <= 0 || delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	job.due = p.now().Add(delay)
	slog.Warn("purge_retry_scheduled",
		slog.String("id", id),
		slog.Int("attempt", job.attempts),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()))
}

// Stalled returns the ids that have used up MaxRetries, in ascending order.
// They stay pending.
func (p *Purger) Stalled() []string {
	p.mu.Lock()
	var ids []string
	for id, job := range p.pending {
		if job.attempts > p.cfg.MaxRetries {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()
	sort.Strings(ids)
	return ids
}
