package activation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/observability"
)

// Source is the read path for activations: cache, then the rules service
// (one request per selection at a time), then the last stored snapshot.
type Source struct {
	upstream Fetcher
	cache    domain.Cache
	repo     domain.Repository
	ttl      time.Duration
	ensemble string
	flight   singleflight.Group
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithCache caches fetched activations for ttl.
func WithCache(c domain.Cache, ttl time.Duration) SourceOption {
	return func(s *Source) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithDefaultEnsemble fills in selections that do not name an ensemble,
// so cache keys and stored snapshots agree with what was requested.
func WithDefaultEnsemble(ensemble string) SourceOption {
	return func(s *Source) { s.ensemble = ensemble }
}

// WithRepository persists fetched activations and falls back to them when
// the rules service fails.
func WithRepository(repo domain.Repository) SourceOption {
	return func(s *Source) { s.repo = repo }
}

// WithMetrics records cache and fetch outcomes.
func WithMetrics(m *observability.Metrics) SourceOption {
	return func(s *Source) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource wraps an upstream fetcher.
func NewSource(upstream Fetcher, opts ...SourceOption) *Source {
	s := &Source{
		upstream: upstream,
		ttl:      10 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the activation for sel. It fails with domain.ErrUpstream
// only when the rules service fails and no snapshot is stored.
func (s *Source) Fetch(ctx context.Context, sel domain.Selection) (*domain.ActivationSnapshot, error) {
	if !sel.Valid() {
		return nil, fmt.Errorf("%w: region and climate are required", domain.ErrInvalidInput)
	}
	if sel.Ensemble == "" {
		sel.Ensemble = s.ensemble
	}

	if snap := s.cached(ctx, sel); snap != nil {
		return snap, nil
	}

	// Concurrent callers share one upstream request. The request outlives
	// a caller that gives up so the others still get the result.
	ch := s.flight.DoChan(sel.Key(), func() (any, error) {
		return s.fetchUpstream(context.WithoutCancel(ctx), sel)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(*domain.ActivationSnapshot), nil
		}
		return s.fallback(ctx, sel, res.Err)
	}
}

func (s *Source) cached(ctx context.Context, sel domain.Selection) *domain.ActivationSnapshot {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.Get(ctx, sel.Key())
	if err != nil {
		s.logger.Warn("activation cache read failed", "key", sel.Key(), "error", err)
		return nil
	}
	if data == nil {
		s.observeCache("miss")
		return nil
	}

	var snap domain.ActivationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding unreadable cached activation", "key", sel.Key(), "error", err)
		_ = s.cache.Delete(ctx, sel.Key())
		s.observeCache("miss")
		return nil
	}
	s.observeCache("hit")
	return &snap
}

func (s *Source) fetchUpstream(ctx context.Context, sel domain.Selection) (*domain.ActivationSnapshot, error) {
	snap, err := s.upstream.Fetch(ctx, sel)
	if err != nil {
		s.observeFetch("upstream", "error")
		return nil, err
	}
	s.observeFetch("upstream", "success")

	if s.repo != nil {
		if err := s.repo.SaveActivation(ctx, snap); err != nil {
			s.logger.Warn("failed to store activation snapshot",
				"region", sel.Region, "climate", sel.Climate, "error", err)
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, sel.Key(), data, s.ttl); err != nil {
				s.logger.Warn("activation cache write failed", "key", sel.Key(), "error", err)
			}
		}
	}

	return snap, nil
}

func (s *Source) fallback(ctx context.Context, sel domain.Selection, upstreamErr error) (*domain.ActivationSnapshot, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, upstreamErr)
	}

	snap, err := s.repo.GetActivation(ctx, sel)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("failed to read activation snapshot", "region", sel.Region, "climate", sel.Climate, "error", err)
		}
		s.observeFetch("snapshot", "error")
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, upstreamErr)
	}

	s.observeFetch("snapshot", "success")
	s.logger.Warn("rules service failed, serving stored activation",
		"region", sel.Region,
		"climate", sel.Climate,
		"fetched_at", snap.FetchedAt,
		"error", upstreamErr,
	)
	snap.Stale = true
	return snap, nil
}

func (s *Source) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ActivationCache.WithLabelValues(result).Inc()
	}
}

func (s *Source) observeFetch(source, outcome string) {
	if s.metrics != nil {
		s.metrics.ActivationFetches.WithLabelValues(source, outcome).Inc()
	}
}
