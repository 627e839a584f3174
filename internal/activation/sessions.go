package activation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pacificclimate/impacts/internal/observability"
)

// Sessions keeps one Selector per dashboard session. Sessions idle for
// longer than the configured TTL are dropped.
type Sessions struct {
	fetcher Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
	clock   clockwork.Clock
	ttl     time.Duration

	mu        sync.Mutex
	selectors map[string]*Selector
}

// NewSessions creates an empty session registry.
func NewSessions(fetcher Fetcher, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sessions{
		fetcher:   fetcher,
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
		ttl:       ttl,
		selectors: make(map[string]*Selector),
	}
}

// Get returns the selector for id, creating it if needed.
func (s *Sessions) Get(id string) *Selector {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	sel, ok := s.selectors[id]
	if !ok {
		sel = NewSelector(s.fetcher, s.metrics, s.logger.With("session_id", id), s.clock)
		s.selectors[id] = sel
	}
	sel.touch()
	return sel
}

// Lookup returns the selector for id without creating one.
func (s *Sessions) Lookup(id string) (*Selector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	sel, ok := s.selectors[id]
	if ok {
		sel.touch()
	}
	return sel, ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selectors)
}

func (s *Sessions) sweepLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for id, sel := range s.selectors {
		if sel.idleSince().Before(cutoff) {
			sel.Close()
			delete(s.selectors, id)
		}
	}
}
