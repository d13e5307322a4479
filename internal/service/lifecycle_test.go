package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

func newLifecycle(env *testEnv) *Lifecycle {
	return NewLifecycle(env.workloads, env.spaces, env.orch, nil, nil, 5*time.Second)
}

func TestRegisterNewWorkload(t *testing.T) {
	env := newTestEnv(t)
	l := newLifecycle(env)
	ctx := context.Background()

	space := env.createSpace(t)

	t.Run("dedicated server starts in starting", func(t *testing.T) {
		w, err := l.Register(ctx, internalUser(), RegisterInput{
			Kind:    models.KindServer,
			SpaceID: space.ID,
			Host:    "203.0.113.1",
			Port:    7777,
			Public:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusStarting, w.Status)
		assert.Equal(t, 8, w.MaxPlayers)
		assert.NotEmpty(t, w.Name)
	})

	t.Run("online game starts online", func(t *testing.T) {
		w, err := l.Register(ctx, regularUser(), RegisterInput{
			Kind:    models.KindOnlineGame,
			SpaceID: space.ID,
			Host:    "203.0.113.2",
			Port:    7778,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusOnline, w.Status)
	})

	t.Run("unknown space is rejected", func(t *testing.T) {
		_, err := l.Register(ctx, regularUser(), RegisterInput{
			SpaceID: uuid.NewString(),
		})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("inactive requester is rejected", func(t *testing.T) {
		inactive := &core.Requester{ID: uuid.NewString()}
		_, err := l.Register(ctx, inactive, RegisterInput{SpaceID: space.ID})
		assert.ErrorIs(t, err, core.ErrAccess)
	})
}

func TestRegisterClaimsProvisionedRow(t *testing.T) {
	env := newTestEnv(t)
	l := newLifecycle(env)
	ctx := context.Background()

	space := env.createSpace(t)
	created := env.createWorkload(t, space.ID, models.StatusCreated, time.Now().UTC())

	w, err := l.Register(ctx, internalUser(), RegisterInput{
		ID:      created.ID,
		SpaceID: space.ID,
		Host:    "203.0.113.9",
		Port:    7901,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, w.ID)
	assert.Equal(t, models.StatusStarting, w.Status)
	assert.Equal(t, "203.0.113.9", w.Host)

	stored, err := env.workloads.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarting, stored.Status)
	assert.Equal(t, 7901, stored.Port)

	// Claiming again is not a registration; the row already left created.
	_, err = l.Register(ctx, internalUser(), RegisterInput{
		ID:      created.ID,
		SpaceID: space.ID,
	})
	assert.ErrorIs(t, err, core.ErrParameter)
}

// raceyWorkloadStore flips every row it reads to stopping before returning
// the stale snapshot, emulating a delete racing a registration claim.
type raceyWorkloadStore struct {
	WorkloadStore
	db *gorm.DB
}

func (s *raceyWorkloadStore) GetByID(ctx context.Context, id string) (*models.Workload, error) {
	w, err := s.WorkloadStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.db.Model(&models.Workload{}).Where("id = ?", id).
		Update("status", models.StatusStopping).Error
	if err != nil {
		return nil, err
	}
	return w, nil
}

func TestRegisterClaimLostToConcurrentDelete(t *testing.T) {
	env := newTestEnv(t)
	store := &raceyWorkloadStore{WorkloadStore: env.workloads, db: env.db}
	l := NewLifecycle(store, env.spaces, env.orch, nil, nil, 5*time.Second)
	ctx := context.Background()

	space := env.createSpace(t)
	created := env.createWorkload(t, space.ID, models.StatusCreated, time.Now().UTC())

	_, err := l.Register(ctx, internalUser(), RegisterInput{
		ID:      created.ID,
		SpaceID: space.ID,
		Host:    "203.0.113.7",
		Port:    7903,
	})
	assert.ErrorIs(t, err, core.ErrParameter)

	// The delete's transition stands; the lost claim wrote nothing.
	stored, err := env.workloads.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopping, stored.Status)
	assert.Zero(t, stored.Port)
}

func TestHeartbeatFlow(t *testing.T) {
	env := newTestEnv(t)
	l := newLifecycle(env)
	ctx := context.Background()

	space := env.createSpace(t)
	now := time.Now().UTC()

	t.Run("status-less report refreshes liveness only", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusStarting, now.Add(-time.Minute))

		accepted, err := l.Heartbeat(ctx, internalUser(), w.ID, "", "")
		require.NoError(t, err)
		assert.True(t, accepted)

		stored, err := env.workloads.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStarting, stored.Status, "status must not change when no status was supplied")
		assert.WithinDuration(t, now, stored.UpdatedAt, 2*time.Second)
	})

	t.Run("starting server comes online when it says so", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusStarting, now.Add(-time.Minute))

		accepted, err := l.Heartbeat(ctx, internalUser(), w.ID, models.StatusOnline, "")
		require.NoError(t, err)
		assert.True(t, accepted)

		stored, err := env.workloads.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusOnline, stored.Status)
	})

	t.Run("stopping server stays stopped", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusStopping, now)

		accepted, err := l.Heartbeat(ctx, internalUser(), w.ID, models.StatusOnline, "")
		require.NoError(t, err)
		assert.False(t, accepted)

		stored, err := env.workloads.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopping, stored.Status)
	})

	t.Run("only internal principals may report", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusOnline, now)

		_, err := l.Heartbeat(ctx, regularUser(), w.ID, "", "")
		assert.ErrorIs(t, err, core.ErrAccess)
	})

	t.Run("status vocabulary is constrained", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusOnline, now)

		_, err := l.Heartbeat(ctx, internalUser(), w.ID, models.StatusStopping, "")
		assert.ErrorIs(t, err, core.ErrParameter)
	})
}

func TestDeleteWorkload(t *testing.T) {
	env := newTestEnv(t)
	l := newLifecycle(env)
	ctx := context.Background()

	space := env.createSpace(t)
	now := time.Now().UTC()

	t.Run("admin stops a workload and teardown runs", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusOnline, now)

		require.NoError(t, l.Delete(ctx, adminUser(), w.ID))

		stored, err := env.workloads.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopping, stored.Status)
		assert.Contains(t, env.orch.deletedIDs(), w.ID)
	})

	t.Run("owner may stop their own workload", func(t *testing.T) {
		owner := regularUser()
		w := env.createWorkload(t, space.ID, models.StatusOnline, now)
		require.NoError(t, env.db.Model(w).Update("owner_id", owner.ID).Error)

		assert.NoError(t, l.Delete(ctx, owner, w.ID))
	})

	t.Run("stranger may not", func(t *testing.T) {
		w := env.createWorkload(t, space.ID, models.StatusOnline, now)
		require.NoError(t, env.db.Model(w).Update("owner_id", uuid.NewString()).Error)

		err := l.Delete(ctx, regularUser(), w.ID)
		assert.ErrorIs(t, err, core.ErrAccess)
	})

	t.Run("orchestrator failure leaves the row stopping", func(t *testing.T) {
		env := newTestEnv(t)
		env.orch.deleteErr = errors.New("node unreachable")
		l := newLifecycle(env)

		w := env.createWorkload(t, space.ID, models.StatusOnline, now)

		err := l.Delete(ctx, adminUser(), w.ID)
		assert.ErrorIs(t, err, core.ErrOrchestrator)

		stored, err := env.workloads.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStopping, stored.Status)
	})

	t.Run("unknown workload", func(t *testing.T) {
		err := l.Delete(ctx, adminUser(), uuid.NewString())
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}
