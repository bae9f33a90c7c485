package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Soundscape/model"
)

var ErrReadOnlyCatalog = errors.New("catalog is read-only")

// SoundRepository is the sound catalog.
type SoundRepository interface {
	List(ctx context.Context) ([]model.Sound, error)
	ByCategory(ctx context.Context, category string) ([]model.Sound, error)
	Upsert(ctx context.Context, sounds []model.Sound) (int64, error)
}

// gormSoundRepository keeps the catalog in MySQL.
type gormSoundRepository struct {
	db *gorm.DB
}

func NewGormSoundRepository(db *gorm.DB) SoundRepository {
	return &gormSoundRepository{db: db}
}

func (r *gormSoundRepository) List(ctx context.Context) ([]model.Sound, error) {
	var sounds []model.Sound
	err := r.db.WithContext(ctx).Order("id ASC").Find(&sounds).Error
	return sounds, err
}

func (r *gormSoundRepository) ByCategory(ctx context.Context, category string) ([]model.Sound, error) {
	var sounds []model.Sound
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("id ASC").
		Find(&sounds).Error
	return sounds, err
}

// Upsert inserts sounds, updating display name and tags of existing
// (filename, category) rows.
func (r *gormSoundRepository) Upsert(ctx context.Context, sounds []model.Sound) (int64, error) {
	if len(sounds) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "filename"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "tags", "updated_at"}),
	}).CreateInBatches(sounds, 100)
	return res.RowsAffected, res.Error
}

// staticSoundRepository serves a fixed catalog.
type staticSoundRepository struct {
	sounds []model.Sound
}

// NewStaticSoundRepository serves sounds as given, in order. Upsert is not
// supported.
func NewStaticSoundRepository(sounds []model.Sound) SoundRepository {
	return &staticSoundRepository{sounds: sounds}
}

func (r *staticSoundRepository) List(ctx context.Context) ([]model.Sound, error) {
	return append([]model.Sound(nil), r.sounds...), nil
}

func (r *staticSoundRepository) ByCategory(ctx context.Context, category string) ([]model.Sound, error) {
	var out []model.Sound
	for _, s := range r.sounds {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *staticSoundRepository) Upsert(ctx context.Context, sounds []model.Sound) (int64, error) {
	return 0, ErrReadOnlyCatalog
}
