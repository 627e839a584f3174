package rulebase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/observability"
)

// ErrNotLoaded is returned when no rulebase has been loaded yet.
var ErrNotLoaded = errors.New("rulebase not loaded")

// Store holds the active rulebase. Readers always see a complete rulebase;
// a failed load leaves the previous one in place.
type Store struct {
	current atomic.Pointer[Rulebase]
	version atomic.Pointer[domain.RulebaseVersion]

	loadMu  sync.Mutex
	path    string
	repo    domain.Repository
	metrics *observability.Metrics
	clock   clockwork.Clock
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRepository records every successful load as a rulebase version.
func WithRepository(repo domain.Repository) StoreOption {
	return func(s *Store) { s.repo = repo }
}

// WithMetrics reports loads and rule counts.
func WithMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithClock sets the time source used for version timestamps.
func WithClock(c clockwork.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store reading from path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the active rulebase.
func (s *Store) Current() (*Rulebase, error) {
	rb := s.current.Load()
	if rb == nil {
		return nil, ErrNotLoaded
	}
	return rb, nil
}

// Version returns metadata about the active rulebase, or nil.
func (s *Store) Version() *domain.RulebaseVersion {
	return s.version.Load()
}

// Reload re-reads the configured file.
func (s *Store) Reload(ctx context.Context) (*domain.RulebaseVersion, error) {
	if s.path == "" {
		return nil, fmt.Errorf("%w: rulebase path is not configured", domain.ErrInvalidInput)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.observe("error")
		return nil, fmt.Errorf("failed to read rulebase: %w", err)
	}
	return s.LoadText(ctx, s.path, string(raw))
}

// LoadText parses raw and, on success, makes it the active rulebase.
func (s *Store) LoadText(ctx context.Context, source, raw string) (*domain.RulebaseVersion, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	rb, err := Parse(raw)
	if err != nil {
		s.observe("error")
		s.logger.Error("rulebase rejected", "source", source, "error", err)
		return nil, err
	}

	sum := sha256.Sum256([]byte(raw))
	version := &domain.RulebaseVersion{
		ID:        uuid.New().String(),
		Source:    source,
		Checksum:  hex.EncodeToString(sum[:]),
		RuleCount: rb.Len(),
		Raw:       raw,
		LoadedAt:  s.clock.Now().UTC(),
	}

	if prev := s.version.Load(); prev != nil && prev.Checksum == version.Checksum {
		version.ID = prev.ID
	} else if s.repo != nil {
		if err := s.repo.SaveRulebaseVersion(ctx, version); err != nil {
			// The rulebase is still usable without its history row.
			s.logger.Warn("failed to record rulebase version", "checksum", version.Checksum, "error", err)
		}
	}

	s.current.Store(rb)
	s.version.Store(version)
	s.observe("success")
	if s.metrics != nil {
		s.metrics.RulesLoaded.Set(float64(rb.Len()))
	}

	s.logger.Info("rulebase loaded",
		"source", source,
		"rules_count", rb.Len(),
		"checksum", version.Checksum,
	)
	return version, nil
}

func (s *Store) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.RulebaseLoads.WithLabelValues(outcome).Inc()
	}
}
