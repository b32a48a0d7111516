package storeops

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// QuotaMonitor accumulates store quota errors and flips an advisory
// "reduce operations" flag once the threshold is crossed inside the
// window. The flag is read by callers that want to skip optional
// background work; it resets only through an explicit Reset call,
// never on a timer. Constructed once in bootstrap and injected, so
// tests get a fresh, resettable instance.
type QuotaMonitor struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	errors    []time.Time
	active    bool
	now       func() time.Time
	logger    zerolog.Logger
}

// NewQuotaMonitor creates a monitor flipping the flag after threshold
// quota errors within window.
func NewQuotaMonitor(threshold int, window time.Duration, logger zerolog.Logger) *QuotaMonitor {
	return &QuotaMonitor{
		threshold: threshold,
		window:    window,
		now:       time.Now,
		logger:    logger,
	}
}

// RecordQuotaError notes one quota error. Errors older than the window
// are discarded before the threshold check.
func (m *QuotaMonitor) RecordQuotaError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	kept := m.errors[:0]
	for _, t := range m.errors {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.errors = append(kept, now)

	if !m.active && len(m.errors) >= m.threshold {
		m.active = true
		m.logger.Warn().
			Int("errors", len(m.errors)).
			Dur("window", m.window).
			Msg("Store quota warning activated, callers should reduce optional operations")
	}
}

// Active reports whether the reduce-operations flag is set.
func (m *QuotaMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Reset clears the flag and the error history.
func (m *QuotaMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = nil
	if m.active {
		m.active = false
		m.logger.Info().Msg("Store quota warning reset")
	}
}
