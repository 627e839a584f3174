package activation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/observability"
)

// ErrSuperseded is returned by Select when a newer selection was made
// before this one's activation arrived. Its result has been discarded.
var ErrSuperseded = errors.New("selection superseded by a newer request")

// State is the selection whose activation was most recently applied.
type State struct {
	Seq       uint64                     `json:"seq"`
	Selection domain.Selection           `json:"selection"`
	Snapshot  *domain.ActivationSnapshot `json:"snapshot"`
	AppliedAt time.Time                  `json:"appliedAt"`
}

// Selector applies activations in last-request-wins order: only the
// result of the newest Select call may replace the current state. Older
// in-flight fetches have their context cancelled and their results dropped.
type Selector struct {
	fetcher Fetcher
	metrics *observability.Metrics
	logger  *slog.Logger
	clock   clockwork.Clock

	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	current *State
	touched time.Time
}

// NewSelector creates a selector over fetcher.
func NewSelector(fetcher Fetcher, metrics *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Selector{
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		clock:   clock,
		touched: clock.Now(),
	}
}

// Select fetches the activation for sel and applies it unless a newer
// Select has been issued meanwhile, in which case ErrSuperseded is
// returned. A failed fetch leaves the current state unchanged.
func (s *Selector) Select(ctx context.Context, sel domain.Selection) (*State, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.touched = s.clock.Now()
	s.mu.Unlock()

	snap, err := s.fetcher.Fetch(fetchCtx, sel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		cancel()
		if s.metrics != nil {
			s.metrics.StaleActivations.Inc()
		}
		s.logger.Debug("discarding superseded activation",
			"seq", seq,
			"latest_seq", s.seq,
			"region", sel.Region,
			"climate", sel.Climate,
		)
		return nil, ErrSuperseded
	}

	cancel()
	s.cancel = nil
	if err != nil {
		return nil, err
	}

	s.current = &State{
		Seq:       seq,
		Selection: sel,
		Snapshot:  snap,
		AppliedAt: s.clock.Now().UTC(),
	}
	return s.current, nil
}

// Current returns the applied state, or false if no selection has
// completed yet.
func (s *Selector) Current() (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// Seq returns the sequence number of the newest Select call.
func (s *Selector) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close cancels any in-flight fetch.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Selector) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Selector) touch() {
	s.mu.Lock()
	s.touched = s.clock.Now()
	s.mu.Unlock()
}
