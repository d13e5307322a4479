// Package service implements the core operations: matching, workload
// lifecycle, player session tracking, scheduled-space discovery and the
// background reconciler. Collaborators arrive through the narrow interfaces
// below so tests can substitute fakes.
package service

import (
	"context"
	"time"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/repository"
)

type WorkloadStore interface {
	Create(ctx context.Context, w *models.Workload) error
	GetByID(ctx context.Context, id string) (*models.Workload, error)
	FindMatchCandidates(ctx context.Context, q repository.MatchQuery) ([]models.MatchCandidate, error)
	Heartbeat(ctx context.Context, id, status, details string, now time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id string, from []string, to, details string, now time.Time) (bool, error)
	SetEndpoint(ctx context.Context, id, host string, port int) error
	ListActive(ctx context.Context, cutoff time.Time, offset, limit int) ([]models.MatchCandidate, int64, error)
	FindPublic(ctx context.Context, spaceID string, cutoff time.Time, offset, limit int) ([]models.MatchCandidate, int64, error)
	LiveSpaceIDs(ctx context.Context, cutoff time.Time) (map[string]bool, error)
	ListStuckStopping(ctx context.Context, cutoff time.Time) ([]models.Workload, error)
	ExpireCreated(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
}

type SessionStore interface {
	Connect(ctx context.Context, workloadID, userID string, now time.Time) (*models.PlayerSession, bool, error)
	Disconnect(ctx context.Context, workloadID, userID string, now time.Time) (*models.PlayerSession, error)
	OccupantCount(ctx context.Context, workloadID string) (int, error)
	CloseAbandoned(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type SpaceStore interface {
	GetByID(ctx context.Context, id string) (*models.Space, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListScheduled(ctx context.Context) ([]models.Space, error)
	HasServerPak(ctx context.Context, modID, platform string) (bool, error)
}

// EventPublisher emits lifecycle and session events. Best effort: it never
// returns an error to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, workloadID string, payload interface{})
}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, string, string, interface{}) {}
