package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/events"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/rewards"
)

// RegisterInput describes a workload announcing itself. Orchestrator-spawned
// servers pass the id they were provisioned under and claim the created row;
// self-hosted games leave ID empty and get a fresh record.
type RegisterInput struct {
	ID         string
	Kind       string
	SpaceID    string
	Host       string
	Port       int
	Build      string
	Map        string
	GameMode   string
	MaxPlayers int
	Public     bool
}

// Lifecycle governs workload status transitions: registration, heartbeats
// and teardown.
type Lifecycle struct {
	workloads WorkloadStore
	spaces    SpaceStore
	orch      orchestrator.Adapter
	events    EventPublisher
	granter   rewards.Granter
	timeout   time.Duration

	now func() time.Time
}

func NewLifecycle(workloads WorkloadStore, spaces SpaceStore, orch orchestrator.Adapter, publisher EventPublisher, granter rewards.Granter, timeout time.Duration) *Lifecycle {
	if publisher == nil {
		publisher = noopEvents{}
	}
	return &Lifecycle{
		workloads: workloads,
		spaces:    spaces,
		orch:      orch,
		events:    publisher,
		granter:   granter,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Register records a workload announcing itself. A known id in created state
// is claimed into starting with its reported endpoint; otherwise a new
// record is inserted, online for self-registered games and starting for
// dedicated servers.
func (l *Lifecycle) Register(ctx context.Context, requester *core.Requester, in RegisterInput) (*models.Workload, error) {
	if err := requester.CheckActive(); err != nil {
		return nil, err
	}
	if in.SpaceID == "" {
		return nil, fmt.Errorf("%w: no space id", core.ErrParameter)
	}
	if _, err := uuid.Parse(in.SpaceID); err != nil {
		return nil, fmt.Errorf("%w: invalid space id", core.ErrParameter)
	}
	if in.Kind == "" {
		in.Kind = models.KindServer
	}
	if in.Kind != models.KindServer && in.Kind != models.KindOnlineGame {
		return nil, fmt.Errorf("%w: unknown workload kind %q", core.ErrParameter, in.Kind)
	}

	exists, err := l.spaces.Exists(ctx, in.SpaceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: space %s", core.ErrNotFound, in.SpaceID)
	}

	now := l.now()

	if in.ID != "" {
		if workload, err := l.claim(ctx, in, now); err != nil || workload != nil {
			return workload, err
		}
	}

	status := models.StatusStarting
	if in.Kind == models.KindOnlineGame {
		status = models.StatusOnline
	}
	if in.MaxPlayers <= 0 {
		in.MaxPlayers = 8
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}

	workload := &models.Workload{
		ID:         id,
		Kind:       in.Kind,
		SpaceID:    in.SpaceID,
		Host:       in.Host,
		Port:       in.Port,
		Build:      in.Build,
		Map:        in.Map,
		GameMode:   in.GameMode,
		MaxPlayers: in.MaxPlayers,
		Status:     status,
		Name:       orchestrator.ResourceName(id),
		Public:     in.Public,
		OwnerID:    requester.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.workloads.Create(ctx, workload); err != nil {
		return nil, fmt.Errorf("failed to register workload: %w", err)
	}

	l.events.Publish(ctx, events.TypeWorkloadRegistered, workload.ID, workload)
	l.grant(requester.ID, rewards.RewardUpdate)

	return workload, nil
}

// claim moves a provisioned created row to starting and records the endpoint
// the instance reports. Returns nil when the id is unknown so the caller
// falls through to a fresh insert.
func (l *Lifecycle) claim(ctx context.Context, in RegisterInput, now time.Time) (*models.Workload, error) {
	workload, err := l.workloads.GetByID(ctx, in.ID)
	if err != nil {
		if err == core.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !models.ValidTransition(workload.Status, models.StatusStarting) {
		return nil, fmt.Errorf("%w: workload %s already %s", core.ErrParameter, in.ID, workload.Status)
	}

	changed, err := l.workloads.TransitionStatus(ctx, in.ID,
		[]string{models.StatusCreated}, models.StatusStarting, "", now)
	if err != nil {
		return nil, err
	}
	if !changed {
		// The row left created between our read and the transition, most
		// likely a concurrent delete. The claim is lost.
		return nil, fmt.Errorf("%w: workload %s is no longer claimable", core.ErrParameter, in.ID)
	}
	if in.Host != "" || in.Port != 0 {
		if err := l.workloads.SetEndpoint(ctx, in.ID, in.Host, in.Port); err != nil {
			return nil, err
		}
		workload.Host = in.Host
		workload.Port = in.Port
	}

	workload.Status = models.StatusStarting
	workload.UpdatedAt = now
	l.events.Publish(ctx, events.TypeWorkloadRegistered, workload.ID, workload)
	return workload, nil
}

// Heartbeat applies a liveness report. Only internal principals (the server
// processes) may report. A report without a status refreshes updated_at and
// leaves the current status alone. Returns false when the report was ignored
// because the workload is created, stopping or unknown; late heartbeats from
// a terminating instance must not resurrect it.
func (l *Lifecycle) Heartbeat(ctx context.Context, requester *core.Requester, id, status, details string) (bool, error) {
	if err := requester.CheckInternal(); err != nil {
		return false, err
	}
	if id == "" {
		return false, fmt.Errorf("%w: no workload id", core.ErrParameter)
	}
	if status != "" && status != models.StatusOnline && status != models.StatusError {
		return false, fmt.Errorf("%w: invalid status, permitted values: online, error", core.ErrParameter)
	}

	return l.workloads.Heartbeat(ctx, id, status, details, l.now())
}

// Delete moves the workload to stopping and asks the orchestrator to tear
// it down. The local transition persists even when the orchestrator call
// fails; the reconciler retries teardown for rows stuck in stopping.
func (l *Lifecycle) Delete(ctx context.Context, requester *core.Requester, id string) error {
	if err := requester.CheckActive(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: no workload id", core.ErrParameter)
	}

	workload, err := l.workloads.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !workload.ManageableBy(requester) {
		return fmt.Errorf("%w: requester may not manage workload %s", core.ErrAccess, id)
	}

	changed, err := l.workloads.TransitionStatus(ctx, id,
		models.TransitionSources(models.StatusStopping), models.StatusStopping, "", l.now())
	if err != nil {
		return err
	}
	if changed {
		l.events.Publish(ctx, events.TypeWorkloadStopping, id, workload)
	}

	deleteCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.orch.DeleteWorkload(deleteCtx, id); err != nil {
		log.Warn().Err(err).Str("workload", id).Msg("orchestrator teardown failed, leaving workload in stopping for reconciliation")
		return fmt.Errorf("%w: %v", core.ErrOrchestrator, err)
	}

	l.grant(requester.ID, rewards.RewardDelete)
	return nil
}

// Get returns one workload by id.
func (l *Lifecycle) Get(ctx context.Context, requester *core.Requester, id string) (*models.Workload, error) {
	if err := requester.Check(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no workload id", core.ErrParameter)
	}
	return l.workloads.GetByID(ctx, id)
}

// grant fires the experience hook without blocking or failing the caller.
func (l *Lifecycle) grant(userID string, amount int) {
	if l.granter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.granter.Grant(ctx, userID, amount); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("experience grant failed")
		}
	}()
}
