package rulebase

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificclimate/impacts/internal/bus"
	"github.com/pacificclimate/impacts/internal/domain"
)

func TestReplicator(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleRulebase), 0o644))

	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })

	leader := NewStore(path, WithLogger(discardLogger()))
	follower := NewStore(path, WithLogger(discardLogger()))
	_, err := leader.Reload(ctx)
	require.NoError(t, err)
	_, err = follower.Reload(ctx)
	require.NoError(t, err)

	var leaderLoads, followerLoads atomic.Int32
	leaderSync := NewReplicator(leader, eventBus, "replica-a", func(*Rulebase) { leaderLoads.Add(1) })
	followerSync := NewReplicator(follower, eventBus, "replica-b", func(rb *Rulebase) { followerLoads.Add(1) })

	_, err = leaderSync.Start(ctx)
	require.NoError(t, err)
	_, err = followerSync.Start(ctx)
	require.NoError(t, err)

	t.Run("PeerReloadsOnNewChecksum", func(t *testing.T) {
		updated := sampleRulebase + `"rule_heat";"tasmax_jja > 30";"Health";"Infrastructure";"More cooling demand";""` + "\n"
		require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

		version, err := leader.Reload(ctx)
		require.NoError(t, err)
		require.NoError(t, leaderSync.Announce(ctx, version))

		require.Eventually(t, func() bool { return followerLoads.Load() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, version.Checksum, follower.Version().Checksum)

		rb, err := follower.Current()
		require.NoError(t, err)
		assert.Equal(t, 4, rb.Len())
		assert.Zero(t, leaderLoads.Load(), "a replica ignores its own announcements")
	})

	t.Run("SameChecksumIsIgnored", func(t *testing.T) {
		require.NoError(t, leaderSync.Announce(ctx, leader.Version()))

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), followerLoads.Load())
	})

	t.Run("MalformedEvent", func(t *testing.T) {
		err := followerSync.handle(ctx, &domain.Message{Payload: []byte("{")})
		assert.Error(t, err)
	})
}
