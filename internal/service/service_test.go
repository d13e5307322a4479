package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/db"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/repository"
)

// fakeOrchestrator stands in for the cluster scheduler and records calls.
type fakeOrchestrator struct {
	mu        sync.Mutex
	created   []orchestrator.WorkloadSpec
	deleted   []string
	endpoint  orchestrator.Endpoint
	createErr error
	deleteErr error
}

func (f *fakeOrchestrator) CreateWorkload(_ context.Context, spec orchestrator.WorkloadSpec) (orchestrator.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return orchestrator.Endpoint{}, f.createErr
	}
	f.created = append(f.created, spec)
	return f.endpoint, nil
}

func (f *fakeOrchestrator) DeleteWorkload(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeOrchestrator) ListWorkloads(context.Context) ([]orchestrator.RawResource, error) {
	return nil, nil
}

func (f *fakeOrchestrator) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeOrchestrator) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type testEnv struct {
	db        *gorm.DB
	workloads *repository.WorkloadRepository
	sessions  *repository.SessionRepository
	spaces    *repository.SpaceRepository
	orch      *fakeOrchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	return &testEnv{
		db:        gdb,
		workloads: repository.NewWorkloadRepository(gdb),
		sessions:  repository.NewSessionRepository(gdb),
		spaces:    repository.NewSpaceRepository(gdb),
		orch:      &fakeOrchestrator{},
	}
}

func (e *testEnv) createSpace(t *testing.T) *models.Space {
	t.Helper()
	space := &models.Space{
		ID:       uuid.NewString(),
		Name:     "test space",
		Map:      "test_map",
		GameMode: "explore",
		Public:   true,
	}
	require.NoError(t, e.db.Create(space).Error)
	return space
}

func (e *testEnv) createWorkload(t *testing.T, spaceID, status string, updatedAt time.Time) *models.Workload {
	t.Helper()
	w := &models.Workload{
		ID:         uuid.NewString(),
		Kind:       models.KindServer,
		SpaceID:    spaceID,
		MaxPlayers: 8,
		Status:     status,
		Public:     true,
		Name:       orchestrator.ResourceName(uuid.NewString()),
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	require.NoError(t, e.db.Create(w).Error)
	return w
}

func regularUser() *core.Requester {
	return &core.Requester{ID: uuid.NewString(), IsActive: true}
}

func internalUser() *core.Requester {
	return &core.Requester{ID: uuid.NewString(), IsActive: true, IsInternal: true}
}

func adminUser() *core.Requester {
	return &core.Requester{ID: uuid.NewString(), IsActive: true, IsAdmin: true}
}
