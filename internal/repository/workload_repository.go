package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

// occupants counts the open sessions of the enclosing workload row. Embedding
// it in the candidate query keeps the capacity check and the ordering inside
// one consistent read, so concurrent connects cannot skew the matcher's view
// between two statements.
const occupants = "(SELECT COUNT(*) FROM player_sessions ps WHERE ps.workload_id = workloads.id AND ps.disconnected_at IS NULL)"

type WorkloadRepository struct {
	db *gorm.DB
}

func NewWorkloadRepository(db *gorm.DB) *WorkloadRepository {
	return &WorkloadRepository{db: db}
}

func (r *WorkloadRepository) Create(ctx context.Context, w *models.Workload) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WorkloadRepository) GetByID(ctx context.Context, id string) (*models.Workload, error) {
	var w models.Workload
	if err := r.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// MatchQuery narrows the candidate set for one match request.
type MatchQuery struct {
	SpaceID    string
	Kind       string
	Build      string
	Host       string
	Cutoff     time.Time
	PublicOnly bool
}

// FindMatchCandidates returns live, non-full workloads for the space ordered
// fullest-first, then most recently active. Packing players onto the fuller
// instance consolidates servers and avoids preferring a freshly-registered
// but unconfirmed one over an instance already serving players.
func (r *WorkloadRepository) FindMatchCandidates(ctx context.Context, q MatchQuery) ([]models.MatchCandidate, error) {
	stmt := r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Select("workloads.*, " + occupants + " AS occupants").
		Where("space_id = ?", q.SpaceID).
		Where("kind = ?", q.Kind).
		Where("status IN ?", []string{models.StatusOnline, models.StatusStarting, models.StatusCreated}).
		Where("updated_at >= ?", q.Cutoff).
		Where(occupants + " < max_players").
		Order("occupants DESC, updated_at DESC")

	if q.Build != "" {
		stmt = stmt.Where("build = ?", q.Build)
	}
	if q.Host != "" {
		stmt = stmt.Where("host = ?", q.Host)
	}
	if q.PublicOnly {
		stmt = stmt.Where("public = ?", true)
	}

	var candidates []models.MatchCandidate
	if err := stmt.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// Heartbeat applies a liveness report as one conditional write. Only
// workloads currently starting or online accept heartbeats; a false return
// means the report was ignored (unknown id, or the workload is created,
// stopping or gone) so late heartbeats from a terminating instance cannot
// resurrect it. An empty status refreshes updated_at without touching the
// current status; otherwise last writer wins on status and updated_at.
func (r *WorkloadRepository) Heartbeat(ctx context.Context, id, status, details string, now time.Time) (bool, error) {
	updates := map[string]interface{}{"updated_at": now}
	if status != "" {
		updates["status"] = status
		updates["details"] = details
	}
	res := r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Where("id = ? AND status IN ?", id, []string{models.StatusStarting, models.StatusOnline}).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// TransitionStatus moves a workload between statuses as a single conditional
// update, guarded by the allowed source statuses. Reports whether a row
// actually changed.
func (r *WorkloadRepository) TransitionStatus(ctx context.Context, id string, from []string, to, details string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	if details != "" {
		updates["details"] = details
	}
	res := r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// SetEndpoint records the host/port the orchestrator assigned after
// provisioning.
func (r *WorkloadRepository) SetEndpoint(ctx context.Context, id, host string, port int) error {
	return r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"host": host, "port": port}).Error
}

// ListActive returns workloads with a heartbeat newer than the cutoff, most
// recently updated last, with the total for paging.
func (r *WorkloadRepository) ListActive(ctx context.Context, cutoff time.Time, offset, limit int) ([]models.MatchCandidate, int64, error) {
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Workload{}).
			Where("updated_at >= ? OR created_at >= ?", cutoff, cutoff)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.MatchCandidate
	err := query().
		Select("workloads.*, " + occupants + " AS occupants").
		Order("updated_at").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, total, err
}

// FindPublic lists public workloads for a space inside the listing window.
func (r *WorkloadRepository) FindPublic(ctx context.Context, spaceID string, cutoff time.Time, offset, limit int) ([]models.MatchCandidate, int64, error) {
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Workload{}).
			Where("space_id = ?", spaceID).
			Where("public = ?", true).
			Where("updated_at > ?", cutoff)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.MatchCandidate
	err := query().
		Select("workloads.*, " + occupants + " AS occupants").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, total, err
}

// LiveSpaceIDs returns the space ids covered by a live, non-full workload.
// Discovery uses this to skip spaces that are already hosted.
func (r *WorkloadRepository) LiveSpaceIDs(ctx context.Context, cutoff time.Time) (map[string]bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Where("(updated_at >= ? OR created_at >= ?)", cutoff, cutoff).
		Where(occupants + " < max_players").
		Distinct().
		Pluck("space_id", &ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// ListStuckStopping returns workloads sitting in stopping since before the
// grace cutoff, for teardown retries.
func (r *WorkloadRepository) ListStuckStopping(ctx context.Context, cutoff time.Time) ([]models.Workload, error) {
	var out []models.Workload
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusStopping, cutoff).
		Find(&out).Error
	return out, err
}

// ExpireCreated fails workloads stuck in created past the cutoff. A created
// row the orchestrator never confirmed would otherwise linger forever; aging
// it into error keeps the table honest.
func (r *WorkloadRepository) ExpireCreated(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Workload{}).
		Where("status = ? AND updated_at < ?", models.StatusCreated, cutoff).
		Updates(map[string]interface{}{
			"status":     models.StatusError,
			"details":    "provisioning did not confirm within the match window",
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
