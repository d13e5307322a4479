package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/models"
)

// SpaceRepository is a read-only view over spaces and their mod artifacts,
// which are owned by the content service.
type SpaceRepository struct {
	db *gorm.DB
}

func NewSpaceRepository(db *gorm.DB) *SpaceRepository {
	return &SpaceRepository{db: db}
}

func (r *SpaceRepository) GetByID(ctx context.Context, id string) (*models.Space, error) {
	var space models.Space
	if err := r.db.WithContext(ctx).First(&space, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &space, nil
}

func (r *SpaceRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Space{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ListScheduled returns spaces flagged for dedicated hosting that have a mod
// attached, oldest first so long-waiting spaces get hosted before newcomers.
func (r *SpaceRepository) ListScheduled(ctx context.Context) ([]models.Space, error) {
	var spaces []models.Space
	err := r.db.WithContext(ctx).
		Where("scheduled = ? AND mod_id IS NOT NULL", true).
		Order("created_at").
		Find(&spaces).Error
	return spaces, err
}

// HasServerPak reports whether the mod carries a processed server pak for
// the platform. Platform names compare case-insensitively; client uploads are
// not consistently cased.
func (r *SpaceRepository) HasServerPak(ctx context.Context, modID, platform string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ModFile{}).
		Where("mod_id = ?", modID).
		Where("type = ?", models.FileTypePak).
		Where("LOWER(deployment_type) = ?", models.DeploymentTypeServer).
		Where("LOWER(platform) = LOWER(?)", platform).
		Count(&count).Error
	return count > 0, err
}
