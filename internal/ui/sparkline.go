package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-size ring of samples rendered as block characters.
// It is not safe for concurrent use.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding up to size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, dropping the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns the number of samples added since the last Clear.
func (s *Sparkline) Count() int {
	return s.count
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}

// Max returns the largest retained sample.
func (s *Sparkline) Max() float64 {
	var m float64
	for _, v := range s.recent(len(s.samples)) {
		m = max(m, v)
	}
	return m
}

// Render draws the most recent width samples, oldest on the left, padded
// with spaces on the right. A width <= 0 draws the whole ring.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.recent(width)
	peak := s.Max()

	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(SparklineChars)-1))
			idx = min(max(idx, 0), len(SparklineChars)-1)
		}
		sb.WriteRune(SparklineChars[idx])
	}
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	return sb.String()
}

// recent returns up to n retained samples in insertion order.
func (s *Sparkline) recent(n int) []float64 {
	size := len(s.samples)
	kept := min(s.count, size, n)
	out := make([]float64, kept)
	for i := range kept {
		out[i] = s.samples[(s.head-kept+i+size)%size]
	}
	return out
}
