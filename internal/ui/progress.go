package ui

import (
	"sync"
	"time"
)

// speedInterval is how often the tracker samples throughput.
const speedInterval = 500 * time.Millisecond

// etaSmoothing is the weight of a fresh ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressTracker keeps progress state for one ingestion run. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	now        func() time.Time
	stage      Stage
	current    int
	total      int
	item       string
	stageStart time.Time
	errors     int
	warnings   int
	lastETA    time.Duration

	lastCurrent int
	lastSample  time.Time
	speed       SpeedStats
	samples     int
	sparkline   *Sparkline
}

// SpeedStats is throughput in documents per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Item       string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	start := now()
	return &ProgressTracker{
		now:        now,
		stage:      StageScanning,
		stageStart: start,
		lastSample: start,
		sparkline:  NewSparkline(60),
	}
}

// SetStage moves to stage with a new total and resets throughput.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.item = ""
	p.stageStart = p.now()
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSample = p.stageStart
	p.speed = SpeedStats{}
	p.samples = 0
	p.sparkline.Clear()
}

// Update records that current documents of the stage are done.
func (p *ProgressTracker) Update(current int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if item != "" {
		p.item = item
	}

	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Current = speed
		p.speed.Peak = max(p.speed.Peak, speed)
		p.sparkline.Add(speed)
	}
	p.lastCurrent = current
	p.lastSample = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   p.progress(),
		ETA:        p.eta(),
		Item:       p.item,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		Speed:      p.speed,
	}
}

// RenderSparkline draws throughput history at width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

func (p *ProgressTracker) progress() float64 {
	if p.total == 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// eta extrapolates the stage rate and smooths the estimate. Caller holds mu.
func (p *ProgressTracker) eta() time.Duration {
	progress := p.progress()
	if progress <= 0 || progress >= 1 {
		return 0
	}
	elapsed := p.now().Sub(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA > 0 {
		remaining = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	}
	p.lastETA = remaining
	return remaining
}
