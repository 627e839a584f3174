package rulebase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/observability"
)

type recordingRepo struct {
	mu       sync.Mutex
	versions []*domain.RulebaseVersion
	saveErr  error
}

func (r *recordingRepo) SaveRulebaseVersion(_ context.Context, v *domain.RulebaseVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.versions = append(r.versions, v)
	return nil
}

func (r *recordingRepo) LatestRulebaseVersion(context.Context) (*domain.RulebaseVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.versions) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.versions[len(r.versions)-1], nil
}

func (r *recordingRepo) SaveActivation(context.Context, *domain.ActivationSnapshot) error {
	return nil
}

func (r *recordingRepo) GetActivation(context.Context, domain.Selection) (*domain.ActivationSnapshot, error) {
	return nil, domain.ErrNotFound
}

func (r *recordingRepo) Ping(context.Context) error { return nil }
func (r *recordingRepo) Close() error               { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreCurrentBeforeLoad(t *testing.T) {
	s := NewStore("", WithLogger(discardLogger()))

	_, err := s.Current()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Nil(t, s.Version())
}

func TestStoreLoadText(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := &recordingRepo{}
	metrics := observability.NewMetricsForTesting()
	s := NewStore("", WithRepository(repo), WithClock(clock), WithMetrics(metrics), WithLogger(discardLogger()))

	v, err := s.LoadText(context.Background(), "inline", sampleRulebase)
	require.NoError(t, err)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, 3, v.RuleCount)
	assert.Equal(t, "inline", v.Source)
	assert.Len(t, v.Checksum, 64)
	assert.Equal(t, clock.Now(), v.LoadedAt)

	rb, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, 3, rb.Len())
	assert.Same(t, v, s.Version())

	require.Len(t, repo.versions, 1)
	assert.Equal(t, sampleRulebase, repo.versions[0].Raw)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RulesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RulebaseLoads.WithLabelValues("success")))
}

func TestStoreKeepsPreviousOnFailure(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	s := NewStore("", WithMetrics(metrics), WithLogger(discardLogger()))

	_, err := s.LoadText(context.Background(), "good", sampleRulebase)
	require.NoError(t, err)
	before, _ := s.Current()

	_, err = s.LoadText(context.Background(), "bad", `"id";"condition"`+"\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	after, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, "good", s.Version().Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RulebaseLoads.WithLabelValues("error")))
}

func TestStoreReusesVersionForSameContent(t *testing.T) {
	repo := &recordingRepo{}
	s := NewStore("", WithRepository(repo), WithLogger(discardLogger()))

	first, err := s.LoadText(context.Background(), "a", sampleRulebase)
	require.NoError(t, err)
	second, err := s.LoadText(context.Background(), "a", sampleRulebase)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.versions, 1)
}

func TestStoreRepositoryFailureIsNotFatal(t *testing.T) {
	repo := &recordingRepo{saveErr: errors.New("disk full")}
	s := NewStore("", WithRepository(repo), WithLogger(discardLogger()))

	_, err := s.LoadText(context.Background(), "a", sampleRulebase)
	require.NoError(t, err)

	rb, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, 3, rb.Len())
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleRulebase), 0o600))

	s := NewStore(path, WithLogger(discardLogger()))
	v, err := s.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, v.Source)

	rb, err := s.Current()
	require.NoError(t, err)
	_, ok := rb.Rule("snow")
	assert.True(t, ok)
}

func TestStoreReloadErrors(t *testing.T) {
	s := NewStore("", WithLogger(discardLogger()))
	_, err := s.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	s = NewStore(filepath.Join(t.TempDir(), "missing.csv"), WithLogger(discardLogger()))
	_, err = s.Reload(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
