package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/locks"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/repository"
)

func newMatchmaker(env *testEnv) *Matchmaker {
	return NewMatchmaker(env.workloads, env.spaces, env.orch, locks.NewKeyed(), nil, ProvisionConfig{
		Image:             "registry.example.com/game-server:latest",
		Host:              "gs.example.com",
		DefaultMaxPlayers: 100,
		Timeout:           5 * time.Second,
	})
}

func TestMatchReturnsLiveCandidate(t *testing.T) {
	env := newTestEnv(t)
	m := newMatchmaker(env)
	ctx := context.Background()

	space := env.createSpace(t)
	now := time.Now().UTC()

	empty := env.createWorkload(t, space.ID, models.StatusOnline, now.Add(-10*time.Second))
	fuller := env.createWorkload(t, space.ID, models.StatusOnline, now.Add(-20*time.Second))
	for i := 0; i < 2; i++ {
		_, _, err := env.sessions.Connect(ctx, fuller.ID, uuid.NewString(), now)
		require.NoError(t, err)
	}

	got, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: space.ID})
	require.NoError(t, err)
	assert.Equal(t, fuller.ID, got.ID)
	assert.Equal(t, 2, got.Occupants)
	assert.NotEqual(t, empty.ID, got.ID)
	assert.Zero(t, env.orch.createdCount(), "a live candidate must not trigger provisioning")
}

func TestMatchProvisionsOnMiss(t *testing.T) {
	env := newTestEnv(t)
	env.orch.endpoint = orchestrator.Endpoint{Host: "10.0.0.5", Port: 7777}
	m := newMatchmaker(env)
	ctx := context.Background()

	space := env.createSpace(t)

	got, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: space.ID})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCreated, got.Status)
	assert.Equal(t, models.KindServer, got.Kind)
	assert.Equal(t, space.ID, got.SpaceID)
	assert.Equal(t, 100, got.MaxPlayers)
	assert.Equal(t, "10.0.0.5", got.Host)
	assert.Equal(t, 7777, got.Port)
	assert.Equal(t, 1, env.orch.createdCount())

	stored, err := env.workloads.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, stored.Status)
	assert.Equal(t, "10.0.0.5", stored.Host)
}

func TestMatchOrchestratorFailureMarksWorkload(t *testing.T) {
	env := newTestEnv(t)
	env.orch.createErr = errors.New("quota exceeded")
	m := newMatchmaker(env)
	ctx := context.Background()

	space := env.createSpace(t)

	_, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: space.ID})
	require.ErrorIs(t, err, core.ErrOrchestrator)

	// The failed attempt must not shadow the next one.
	var failed models.Workload
	require.NoError(t, env.db.Where("space_id = ?", space.ID).First(&failed).Error)
	assert.Equal(t, models.StatusError, failed.Status)
	assert.Contains(t, failed.Details, "quota exceeded")
}

func TestMatchOnlineGameNeverProvisions(t *testing.T) {
	env := newTestEnv(t)
	m := newMatchmaker(env)
	ctx := context.Background()

	space := env.createSpace(t)

	_, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: space.ID, Kind: models.KindOnlineGame})
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, env.orch.createdCount())
}

func TestMatchValidation(t *testing.T) {
	env := newTestEnv(t)
	m := newMatchmaker(env)
	ctx := context.Background()

	t.Run("missing space id", func(t *testing.T) {
		_, err := m.Match(ctx, regularUser(), MatchRequest{})
		assert.ErrorIs(t, err, core.ErrParameter)
	})

	t.Run("malformed space id", func(t *testing.T) {
		_, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: "not-a-uuid"})
		assert.ErrorIs(t, err, core.ErrParameter)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := m.Match(ctx, regularUser(), MatchRequest{SpaceID: uuid.NewString(), Kind: "arcade"})
		assert.ErrorIs(t, err, core.ErrParameter)
	})

	t.Run("banned requester", func(t *testing.T) {
		banned := &core.Requester{ID: uuid.NewString(), IsBanned: true}
		_, err := m.Match(ctx, banned, MatchRequest{SpaceID: uuid.NewString()})
		assert.ErrorIs(t, err, core.ErrAccess)
	})
}

func TestMatchPrivateVisibility(t *testing.T) {
	env := newTestEnv(t)
	m := newMatchmaker(env)
	ctx := context.Background()

	space := env.createSpace(t)
	now := time.Now().UTC()
	private := env.createWorkload(t, space.ID, models.StatusOnline, now)
	require.NoError(t, env.db.Model(private).Update("public", false).Error)

	got, err := m.Match(ctx, adminUser(), MatchRequest{SpaceID: space.ID})
	require.NoError(t, err)
	assert.Equal(t, private.ID, got.ID)

	// A regular player cannot see the private instance; the miss provisions
	// a public one instead of leaking it.
	got, err = m.Match(ctx, regularUser(), MatchRequest{SpaceID: space.ID})
	require.NoError(t, err)
	assert.NotEqual(t, private.ID, got.ID)
	assert.Equal(t, 1, env.orch.createdCount())
}

func TestMatchConcurrentRequestsProvisionOnce(t *testing.T) {
	store := newMemoryWorkloads()
	orch := &fakeOrchestrator{}
	space := &models.Space{ID: uuid.NewString(), Map: "m", GameMode: "g", Public: true}
	spaces := &memorySpaces{spaces: map[string]*models.Space{space.ID: space}}

	m := NewMatchmaker(store, spaces, orch, locks.NewKeyed(), nil, ProvisionConfig{
		Image:             "img",
		Host:              "host",
		DefaultMaxPlayers: 10,
		Timeout:           time.Second,
	})

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	results := make([]*models.MatchCandidate, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Match(context.Background(), regularUser(), MatchRequest{SpaceID: space.ID})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, orch.createdCount(), "concurrent misses must provision exactly one workload")
	assert.Equal(t, 1, store.workloadCount())

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			// Claim losers that re-queried before the winner committed get a
			// retryable signal, never a second instance.
			assert.ErrorIs(t, errs[i], core.ErrProvisioningInFlight)
			continue
		}
		require.NotNil(t, results[i])
	}
}

func TestListActiveRejectsBanned(t *testing.T) {
	env := newTestEnv(t)
	m := newMatchmaker(env)

	banned := &core.Requester{ID: uuid.NewString(), IsBanned: true}
	_, _, err := m.ListActive(context.Background(), banned, 0, 10)
	assert.ErrorIs(t, err, core.ErrAccess)
}

// memoryWorkloads is a mutex-guarded in-memory WorkloadStore for exercising
// the matcher's concurrency without a database in the way.
type memoryWorkloads struct {
	mu        sync.Mutex
	workloads map[string]*models.Workload
}

func newMemoryWorkloads() *memoryWorkloads {
	return &memoryWorkloads{workloads: make(map[string]*models.Workload)}
}

func (s *memoryWorkloads) workloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workloads)
}

func (s *memoryWorkloads) Create(_ context.Context, w *models.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *w
	s.workloads[w.ID] = &clone
	return nil
}

func (s *memoryWorkloads) GetByID(_ context.Context, id string) (*models.Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *w
	return &clone, nil
}

func (s *memoryWorkloads) FindMatchCandidates(_ context.Context, q repository.MatchQuery) ([]models.MatchCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.MatchCandidate
	for _, w := range s.workloads {
		if w.SpaceID != q.SpaceID || w.Kind != q.Kind {
			continue
		}
		switch w.Status {
		case models.StatusOnline, models.StatusStarting, models.StatusCreated:
		default:
			continue
		}
		if w.UpdatedAt.Before(q.Cutoff) {
			continue
		}
		if q.PublicOnly && !w.Public {
			continue
		}
		out = append(out, models.MatchCandidate{Workload: *w})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *memoryWorkloads) Heartbeat(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (s *memoryWorkloads) TransitionStatus(_ context.Context, id string, from []string, to, details string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if w.Status == f {
			w.Status = to
			w.Details = details
			w.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryWorkloads) SetEndpoint(_ context.Context, id, host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workloads[id]; ok {
		w.Host = host
		w.Port = port
	}
	return nil
}

func (s *memoryWorkloads) ListActive(context.Context, time.Time, int, int) ([]models.MatchCandidate, int64, error) {
	return nil, 0, nil
}

func (s *memoryWorkloads) FindPublic(context.Context, string, time.Time, int, int) ([]models.MatchCandidate, int64, error) {
	return nil, 0, nil
}

func (s *memoryWorkloads) LiveSpaceIDs(context.Context, time.Time) (map[string]bool, error) {
	return nil, nil
}

func (s *memoryWorkloads) ListStuckStopping(context.Context, time.Time) ([]models.Workload, error) {
	return nil, nil
}

func (s *memoryWorkloads) ExpireCreated(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

// memorySpaces is the matching read-only SpaceStore.
type memorySpaces struct {
	spaces map[string]*models.Space
}

func (s *memorySpaces) GetByID(_ context.Context, id string) (*models.Space, error) {
	space, ok := s.spaces[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return space, nil
}

func (s *memorySpaces) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.spaces[id]
	return ok, nil
}

func (s *memorySpaces) ListScheduled(context.Context) ([]models.Space, error) {
	return nil, nil
}

func (s *memorySpaces) HasServerPak(context.Context, string, string) (bool, error) {
	return false, nil
}
