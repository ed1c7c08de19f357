package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariogargano/week-chain-TM-sub006/internal/clock"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

func TestCapacityService_Recompute(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("healthy utilization", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, map[domain.Tier]int{domain.TierGold: 10})
		svc := NewCapacityService(repo, clock.NewManual(now))

		snapshot, err := svc.Recompute(context.Background())
		require.NoError(t, err)

		// 100 weeks * 0.70 safety factor; 10 gold certs weigh 0.70 each.
		assert.Equal(t, 70, snapshot.SafeCapacity)
		assert.Equal(t, "7", snapshot.ProjectedDemand.String())
		assert.Equal(t, "10", snapshot.UtilizationPct.String())
		assert.Equal(t, domain.HealthHealthy, snapshot.Band)
		assert.False(t, snapshot.WaitlistEnabled)
	})

	t.Run("critical utilization halts every tier", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, map[domain.Tier]int{
			domain.TierSilver:    10, // 5.5
			domain.TierGold:      20, // 14
			domain.TierPlatinum:  10, // 16
			domain.TierSignature: 10, // 34
		})
		svc := NewCapacityService(repo, clock.NewManual(now))

		snapshot, err := svc.Recompute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "69.5", snapshot.ProjectedDemand.String())
		assert.Equal(t, "99.29", snapshot.UtilizationPct.String())
		assert.Equal(t, domain.HealthCritical, snapshot.Band)
		assert.True(t, snapshot.WaitlistEnabled)
		for _, tier := range domain.Tiers {
			assert.False(t, snapshot.TierAvailable(tier), "tier %s", tier)
		}
	})

	t.Run("zero supply yields zero utilization", func(t *testing.T) {
		repo := newFakeCapacityRepo(0, map[domain.Tier]int{domain.TierGold: 5})
		svc := NewCapacityService(repo, clock.NewManual(now))

		snapshot, err := svc.Recompute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, snapshot.SafeCapacity)
		assert.True(t, snapshot.UtilizationPct.IsZero())
	})
}

func TestCapacityService_Availability(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("open tier reports remaining certificates", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, map[domain.Tier]int{domain.TierGold: 10})
		svc := NewCapacityService(repo, clock.NewManual(now))

		out, err := svc.Availability(context.Background(), domain.TierGold)
		require.NoError(t, err)
		assert.True(t, out.Available)
		assert.Empty(t, out.Reason)
		// (70 - 7) remaining weeks / 0.70 per gold certificate.
		assert.Equal(t, 90, out.RemainingForTier)
		assert.Equal(t, 63, out.RemainingTotal)
	})

	t.Run("computes first snapshot on demand", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, nil)
		svc := NewCapacityService(repo, clock.NewManual(now))

		require.Empty(t, repo.snapshots)
		_, err := svc.Availability(context.Background(), domain.TierSilver)
		require.NoError(t, err)
		assert.Len(t, repo.snapshots, 1)
	})

	t.Run("stopped tier routes to waitlist", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, map[domain.Tier]int{domain.TierGold: 10})
		svc := NewCapacityService(repo, clock.NewManual(now))

		_, err := svc.SetStopSale(context.Background(), domain.TierGold, true)
		require.NoError(t, err)

		gold, err := svc.Availability(context.Background(), domain.TierGold)
		require.NoError(t, err)
		assert.False(t, gold.Available)
		assert.Equal(t, "tier sales stopped", gold.Reason)
		assert.True(t, gold.WaitlistEnabled)

		silver, err := svc.Availability(context.Background(), domain.TierSilver)
		require.NoError(t, err)
		assert.True(t, silver.Available)
	})

	t.Run("critical band reports a global reason", func(t *testing.T) {
		repo := newFakeCapacityRepo(10, map[domain.Tier]int{domain.TierSignature: 10})
		svc := NewCapacityService(repo, clock.NewManual(now))

		out, err := svc.Availability(context.Background(), domain.TierSilver)
		require.NoError(t, err)
		assert.False(t, out.Available)
		assert.Equal(t, "global capacity critical", out.Reason)
	})

	t.Run("rejects unknown tier", func(t *testing.T) {
		repo := newFakeCapacityRepo(100, nil)
		svc := NewCapacityService(repo, clock.NewManual(now))

		_, err := svc.Availability(context.Background(), domain.Tier("bronze"))
		assert.ErrorIs(t, err, domain.ErrInvalidTier)
	})
}

func TestCapacityService_JoinWaitlist(t *testing.T) {
	t.Parallel()

	repo := newFakeCapacityRepo(10, nil)
	svc := NewCapacityService(repo, clock.NewManual(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))

	entry, err := svc.JoinWaitlist(context.Background(), "user-1", domain.TierGold)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, domain.WaitlistStatusWaiting, entry.Status)

	n, err := repo.WaitlistCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
