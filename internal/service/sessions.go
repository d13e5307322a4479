package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/events"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/rewards"
)

// SessionTracker records player connect and disconnect reports from the
// server processes. Only internal principals may report; the player
// identity travels as a plain user id.
type SessionTracker struct {
	sessions SessionStore
	events   EventPublisher
	granter  rewards.Granter

	now func() time.Time
}

func NewSessionTracker(sessions SessionStore, publisher EventPublisher, granter rewards.Granter) *SessionTracker {
	if publisher == nil {
		publisher = noopEvents{}
	}
	return &SessionTracker{
		sessions: sessions,
		events:   publisher,
		granter:  granter,
		now:      time.Now,
	}
}

// Connect opens a session for the player on the workload. A duplicate
// report for an already-open pair returns the existing session. The join
// reward is granted only when a session is actually opened, fire and forget.
func (t *SessionTracker) Connect(ctx context.Context, requester *core.Requester, workloadID, userID string) (*models.PlayerSession, error) {
	if err := requester.CheckInternal(); err != nil {
		return nil, err
	}
	if workloadID == "" || userID == "" {
		return nil, fmt.Errorf("%w: workload id and user id are required", core.ErrParameter)
	}

	session, created, err := t.sessions.Connect(ctx, workloadID, userID, t.now())
	if err != nil {
		return nil, err
	}

	if created {
		t.events.Publish(ctx, events.TypePlayerConnected, workloadID, session)
		t.grant(userID, rewards.RewardJoinServer)
	}
	return session, nil
}

// Disconnect closes the player's open session. A report with no open
// session, including a repeated disconnect, fails with the not-found error.
func (t *SessionTracker) Disconnect(ctx context.Context, requester *core.Requester, workloadID, userID string) (*models.PlayerSession, error) {
	if err := requester.CheckInternal(); err != nil {
		return nil, err
	}
	if workloadID == "" || userID == "" {
		return nil, fmt.Errorf("%w: workload id and user id are required", core.ErrParameter)
	}

	session, err := t.sessions.Disconnect(ctx, workloadID, userID, t.now())
	if err != nil {
		return nil, err
	}

	t.events.Publish(ctx, events.TypePlayerDisconnected, workloadID, session)
	return session, nil
}

// OccupantCount reports the open sessions against a workload.
func (t *SessionTracker) OccupantCount(ctx context.Context, workloadID string) (int, error) {
	if workloadID == "" {
		return 0, fmt.Errorf("%w: no workload id", core.ErrParameter)
	}
	return t.sessions.OccupantCount(ctx, workloadID)
}

func (t *SessionTracker) grant(userID string, amount int) {
	if t.granter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.granter.Grant(ctx, userID, amount); err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("experience grant failed")
		}
	}()
}
