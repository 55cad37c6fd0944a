package repository

import (
	"context"

	"scancodes/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// "key" is reserved in MySQL, so lookups go through map and clause
// conditions that the dialect quotes.
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var s models.SystemSetting
	if err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&s).Error; err != nil {
		return "", notFound(err, "setting "+key)
	}
	return s.Value, nil
}

func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value}).Error
}

// SetMany upserts every pair in one transaction.
func (r *SettingRepository) SetMany(ctx context.Context, values map[string]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &SettingRepository{db: tx}
		for k, v := range values {
			if err := txRepo.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SettingRepository) GetAll(ctx context.Context) ([]models.SystemSetting, error) {
	var list []models.SystemSetting
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&list).Error
	return list, err
}

// GetPrefix returns settings whose key starts with prefix as a map.
func (r *SettingRepository) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	var list []models.SystemSetting
	err := r.db.WithContext(ctx).
		Where(clause.Like{Column: clause.Column{Name: "key"}, Value: prefix + "%"}).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, s := range list {
		out[s.Key] = s.Value
	}
	return out, nil
}

// SeedDefaults inserts default settings if they don't already exist.
func (r *SettingRepository) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	for k, v := range defaults {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.SystemSetting{Key: k, Value: v}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
