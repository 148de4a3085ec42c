// Package progress defines the status feedback channel between the pipeline
// and its host. Progress and messages are observational; cancellation is
// polled cooperatively at defined checkpoints.
package progress

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Reporter receives human-readable status, a 0-100 progress value, and
// answers cancellation polls.
type Reporter interface {
	Info(msg string)
	Warn(msg string)
	SetProgress(pct int)
	Cancelled() bool
}

// LogReporter is the default Reporter, backed by the global zap logger.
// Progress is kept monotone: a lower value than the current one is ignored.
type LogReporter struct {
	mu        sync.Mutex
	pct       int
	cancelled atomic.Bool
}

// NewLogReporter returns a ready LogReporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

// Info logs a status message.
func (r *LogReporter) Info(msg string) {
	zap.L().Info(msg)
}

// Warn logs a non-fatal warning.
func (r *LogReporter) Warn(msg string) {
	zap.L().Warn(msg)
}

// SetProgress advances the progress value, clamped to 0-100.
func (r *LogReporter) SetProgress(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pct > 100 {
		pct = 100
	}
	if pct <= r.pct {
		return
	}
	r.pct = pct
	zap.L().Debug("progress", zap.Int("pct", pct))
}

// Progress returns the current progress value.
func (r *LogReporter) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pct
}

// Cancel requests cooperative cancellation.
func (r *LogReporter) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (r *LogReporter) Cancelled() bool {
	return r.cancelled.Load()
}
