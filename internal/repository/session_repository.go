package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Connect opens a session for (workload, user). If the pair already has an
// open session the existing row is returned instead of opening a second one,
// which keeps at most one open row per pair regardless of duplicate or
// concurrent connect reports. The returned bool is true when a new row was
// created.
func (r *SessionRepository) Connect(ctx context.Context, workloadID, userID string, now time.Time) (*models.PlayerSession, bool, error) {
	var session models.PlayerSession
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Workload{}).Where("id = ?", workloadID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return core.ErrNotFound
		}

		err := tx.
			Where("workload_id = ? AND user_id = ? AND disconnected_at IS NULL", workloadID, userID).
			First(&session).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		session = models.PlayerSession{
			ID:          uuid.NewString(),
			WorkloadID:  workloadID,
			UserID:      userID,
			ConnectedAt: now,
		}
		created = true
		return tx.Create(&session).Error
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, false, err
		}
		// Under READ COMMITTED a concurrent connect for the same pair can
		// slip past the read and race ours to the insert; the partial unique
		// index on open pairs rejects the loser. Re-read in a fresh
		// transaction (the failed one is aborted) and hand back the
		// winner's row.
		var existing models.PlayerSession
		ferr := r.db.WithContext(ctx).
			Where("workload_id = ? AND user_id = ? AND disconnected_at IS NULL", workloadID, userID).
			First(&existing).Error
		if ferr == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &session, created, nil
}

// Disconnect closes the open session for (workload, user). A second
// disconnect finds no open row and fails with the not-found error rather
// than touching already-closed history.
func (r *SessionRepository) Disconnect(ctx context.Context, workloadID, userID string, now time.Time) (*models.PlayerSession, error) {
	var session models.PlayerSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("workload_id = ? AND user_id = ? AND disconnected_at IS NULL", workloadID, userID).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}

		session.DisconnectedAt = &now
		return tx.Model(&models.PlayerSession{}).
			Where("id = ?", session.ID).
			Update("disconnected_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// OccupantCount reports how many sessions are open against the workload.
func (r *SessionRepository) OccupantCount(ctx context.Context, workloadID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PlayerSession{}).
		Where("workload_id = ? AND disconnected_at IS NULL", workloadID).
		Count(&count).Error
	return int(count), err
}

// CloseAbandoned closes sessions still open on workloads whose last
// heartbeat predates the cutoff. Dead servers never report disconnects, so
// the reconciler drains their occupancy this way.
func (r *SessionRepository) CloseAbandoned(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PlayerSession{}).
		Where("disconnected_at IS NULL").
		Where("workload_id IN (?)", r.db.
			Model(&models.Workload{}).
			Select("id").
			Where("updated_at < ?", cutoff)).
		Update("disconnected_at", now)
	return res.RowsAffected, res.Error
}
