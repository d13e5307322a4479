package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/events"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/liveness"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/locks"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/repository"
)

// ProvisionConfig carries the knobs the matcher needs to start a new
// dedicated server.
type ProvisionConfig struct {
	Image             string
	Host              string
	DefaultMaxPlayers int
	Timeout           time.Duration
}

// MatchRequest asks for a live, non-full workload serving a space.
type MatchRequest struct {
	SpaceID string
	Kind    string
	Build   string
	Host    string
}

// Matchmaker selects the best live workload for a space and provisions a new
// one when none qualifies.
type Matchmaker struct {
	workloads WorkloadStore
	spaces    SpaceStore
	orch      orchestrator.Adapter
	lock      locks.ProvisionLock
	events    EventPublisher
	cfg       ProvisionConfig

	now func() time.Time
}

func NewMatchmaker(workloads WorkloadStore, spaces SpaceStore, orch orchestrator.Adapter, lock locks.ProvisionLock, publisher EventPublisher, cfg ProvisionConfig) *Matchmaker {
	if publisher == nil {
		publisher = noopEvents{}
	}
	return &Matchmaker{
		workloads: workloads,
		spaces:    spaces,
		orch:      orch,
		lock:      lock,
		events:    publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Match returns a live, non-full workload for the space, preferring the
// fullest, most recently active candidate. On a miss the server kind is
// provisioned through the orchestrator under a per-space claim; the
// online-game kind self-registers and a miss is simply not found.
func (m *Matchmaker) Match(ctx context.Context, requester *core.Requester, req MatchRequest) (*models.MatchCandidate, error) {
	if err := requester.Check(); err != nil {
		return nil, err
	}
	if req.SpaceID == "" {
		return nil, fmt.Errorf("%w: no space id", core.ErrParameter)
	}
	if _, err := uuid.Parse(req.SpaceID); err != nil {
		return nil, fmt.Errorf("%w: invalid space id", core.ErrParameter)
	}
	if req.Kind == "" {
		req.Kind = models.KindServer
	}
	if req.Kind != models.KindServer && req.Kind != models.KindOnlineGame {
		return nil, fmt.Errorf("%w: unknown workload kind %q", core.ErrParameter, req.Kind)
	}

	if candidate, err := m.findCandidate(ctx, requester, req); err != nil || candidate != nil {
		return candidate, err
	}

	if req.Kind == models.KindOnlineGame {
		// Online games register themselves; there is nothing to spin up.
		return nil, fmt.Errorf("%w: no live online game for space %s", core.ErrNotFound, req.SpaceID)
	}

	return m.provision(ctx, requester, req)
}

func (m *Matchmaker) findCandidate(ctx context.Context, requester *core.Requester, req MatchRequest) (*models.MatchCandidate, error) {
	candidates, err := m.workloads.FindMatchCandidates(ctx, repository.MatchQuery{
		SpaceID:    req.SpaceID,
		Kind:       req.Kind,
		Build:      req.Build,
		Host:       req.Host,
		Cutoff:     liveness.Cutoff(m.now(), liveness.MatchWindow),
		PublicOnly: !requester.IsAdmin && !requester.IsInternal,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// provision serializes the none-exists branch per space. The claim loser
// re-queries once: if the winner's workload is already visible it is
// returned, otherwise the caller gets a retryable error instead of a
// redundant second instance.
func (m *Matchmaker) provision(ctx context.Context, requester *core.Requester, req MatchRequest) (*models.MatchCandidate, error) {
	release, ok, err := m.lock.TryAcquire(ctx, req.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("provisioning claim for space %s: %w", req.SpaceID, err)
	}
	if !ok {
		if candidate, err := m.findCandidate(ctx, requester, req); err != nil || candidate != nil {
			return candidate, err
		}
		return nil, fmt.Errorf("%w: space %s", core.ErrProvisioningInFlight, req.SpaceID)
	}
	defer release()

	// Another request may have won the claim and finished before we got it.
	if candidate, err := m.findCandidate(ctx, requester, req); err != nil || candidate != nil {
		return candidate, err
	}

	space, err := m.spaces.GetByID(ctx, req.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("space %s: %w", req.SpaceID, err)
	}

	now := m.now()
	id := uuid.NewString()
	workload := &models.Workload{
		ID:         id,
		Kind:       models.KindServer,
		SpaceID:    space.ID,
		Host:       m.cfg.Host,
		Build:      req.Build,
		Image:      m.cfg.Image,
		Map:        space.Map,
		GameMode:   space.GameMode,
		MaxPlayers: m.cfg.DefaultMaxPlayers,
		Status:     models.StatusCreated,
		Name:       orchestrator.ResourceName(id),
		Public:     true,
		OwnerID:    requester.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.workloads.Create(ctx, workload); err != nil {
		return nil, fmt.Errorf("failed to insert workload: %w", err)
	}
	m.events.Publish(ctx, events.TypeWorkloadCreated, workload.ID, workload)

	createCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	endpoint, err := m.orch.CreateWorkload(createCtx, orchestrator.WorkloadSpec{
		ID:         workload.ID,
		Name:       workload.Name,
		SpaceID:    workload.SpaceID,
		Map:        workload.Map,
		GameMode:   workload.GameMode,
		Image:      workload.Image,
		Host:       workload.Host,
		MaxPlayers: workload.MaxPlayers,
	})
	if err != nil {
		// Fail the row instead of leaving it dangling in created; it would
		// only sit inside the match window shadowing the next attempt.
		if _, terr := m.workloads.TransitionStatus(ctx, workload.ID,
			[]string{models.StatusCreated}, models.StatusError, err.Error(), m.now()); terr != nil {
			log.Error().Err(terr).Str("workload", workload.ID).Msg("failed to mark workload after orchestrator failure")
		}
		m.events.Publish(ctx, events.TypeWorkloadFailed, workload.ID, map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", core.ErrOrchestrator, err)
	}

	if endpoint.Host != "" {
		if err := m.workloads.SetEndpoint(ctx, workload.ID, endpoint.Host, endpoint.Port); err != nil {
			log.Warn().Err(err).Str("workload", workload.ID).Msg("failed to record endpoint")
		} else {
			workload.Host = endpoint.Host
			workload.Port = endpoint.Port
		}
	}

	log.Info().Str("workload", workload.ID).Str("space", space.ID).Msg("provisioned new game server")
	return &models.MatchCandidate{Workload: *workload}, nil
}

// ListActive returns workloads seen inside the listing window.
func (m *Matchmaker) ListActive(ctx context.Context, requester *core.Requester, offset, limit int) ([]models.MatchCandidate, int64, error) {
	if err := requester.Check(); err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 10
	}
	return m.workloads.ListActive(ctx, liveness.Cutoff(m.now(), liveness.MatchWindow), offset, limit)
}

// FindPublic lists public workloads for a space within the more tolerant
// listing window, for server browsers.
func (m *Matchmaker) FindPublic(ctx context.Context, spaceID string, offset, limit int) ([]models.MatchCandidate, int64, error) {
	if spaceID == "" {
		return nil, 0, fmt.Errorf("%w: no space id", core.ErrParameter)
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	return m.workloads.FindPublic(ctx, spaceID, liveness.Cutoff(m.now(), liveness.ListWindow), offset, limit)
}
