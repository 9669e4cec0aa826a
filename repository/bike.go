package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bikerental/models"

	"gorm.io/gorm"
)

// GormBikeStore is the MySQL-backed bike inventory.
type GormBikeStore struct {
	db *gorm.DB
}

func NewGormBikeStore(db *gorm.DB) *GormBikeStore {
	return &GormBikeStore{db: db}
}

func (s *GormBikeStore) GetBike(ctx context.Context, id string) (*models.Bike, error) {
	var bike models.Bike
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&bike).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bike %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bike %s: %w", id, err)
	}
	return &bike, nil
}

// CompareAndSetBikeStatus 條件更新：只有目前狀態為 from 時才改成 to，回傳是否剛好更新一筆
func (s *GormBikeStore) CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Bike{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update bike %s status %s -> %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormBikeStore) CreateBike(ctx context.Context, bike *models.Bike) (string, error) {
	if err := s.db.WithContext(ctx).Create(bike).Error; err != nil {
		if isDuplicateKey(err) {
			return "", fmt.Errorf("bike %s: %w", bike.ID, ErrDuplicate)
		}
		return "", fmt.Errorf("failed to create bike: %w", err)
	}
	return bike.ID, nil
}

func (s *GormBikeStore) ListBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, error) {
	query := s.db.WithContext(ctx).Model(&models.Bike{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var bikes []models.Bike
	if err := query.Order("created_at DESC").Find(&bikes).Error; err != nil {
		return nil, fmt.Errorf("failed to list bikes: %w", err)
	}
	return bikes, nil
}

func (s *GormBikeStore) CountBikes(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Bike{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count bikes: %w", err)
	}
	return count, nil
}

// ListStaleBikes returns bikes in the given status whose last change happened before the cutoff.
func (s *GormBikeStore) ListStaleBikes(ctx context.Context, status models.BikeStatus, before time.Time) ([]models.Bike, error) {
	var bikes []models.Bike
	if err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, before).
		Find(&bikes).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale %s bikes: %w", status, err)
	}
	return bikes, nil
}
