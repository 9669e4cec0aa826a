package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bikerental/models"

	"gorm.io/gorm"
)

// GormRentalStore is the MySQL-backed rental ledger.
type GormRentalStore struct {
	db *gorm.DB
}

func NewGormRentalStore(db *gorm.DB) *GormRentalStore {
	return &GormRentalStore{db: db}
}

func (s *GormRentalStore) GetRental(ctx context.Context, id string) (*models.Rental, error) {
	var rental models.Rental
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rental).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rental %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rental %s: %w", id, err)
	}
	return &rental, nil
}

// InsertRental 新增租借紀錄；ID 為空時由 BeforeCreate 產生
func (s *GormRentalStore) InsertRental(ctx context.Context, rental *models.Rental) (string, error) {
	if err := s.db.WithContext(ctx).Omit("Bike").Create(rental).Error; err != nil {
		if isDuplicateKey(err) {
			return "", fmt.Errorf("rental %s: %w", rental.ID, ErrDuplicate)
		}
		return "", fmt.Errorf("failed to insert rental: %w", err)
	}
	return rental.ID, nil
}

// CompleteRental closes the rental only if it is still active.
func (s *GormRentalStore) CompleteRental(ctx context.Context, id string, endTime time.Time, totalCost float64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND status = ?", id, models.RentalActive).
		Updates(map[string]interface{}{
			"status":     models.RentalCompleted,
			"end_time":   endTime,
			"total_cost": totalCost,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete rental %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormRentalStore) FindActiveRentalByBike(ctx context.Context, bikeID string) (*models.Rental, error) {
	var rental models.Rental
	if err := s.db.WithContext(ctx).
		Where("bike_id = ? AND status = ?", bikeID, models.RentalActive).
		Order("start_time DESC").
		First(&rental).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("active rental for bike %s: %w", bikeID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find active rental for bike %s: %w", bikeID, err)
	}
	return &rental, nil
}

func (s *GormRentalStore) ListActiveRentalsBefore(ctx context.Context, before time.Time) ([]models.Rental, error) {
	var rentals []models.Rental
	if err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.RentalActive, before).
		Find(&rentals).Error; err != nil {
		return nil, fmt.Errorf("failed to list active rentals: %w", err)
	}
	return rentals, nil
}

// ListRentalsByRenter 查詢租借人的所有紀錄（含車輛）
func (s *GormRentalStore) ListRentalsByRenter(ctx context.Context, renterID string) ([]models.Rental, error) {
	var rentals []models.Rental
	if err := s.db.WithContext(ctx).
		Preload("Bike").
		Where("renter_id = ?", renterID).
		Order("start_time DESC").
		Find(&rentals).Error; err != nil {
		return nil, fmt.Errorf("failed to query rentals for renter %s: %w", renterID, err)
	}
	return rentals, nil
}

func (s *GormRentalStore) CountActiveRentals(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("status = ?", models.RentalActive).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count active rentals: %w", err)
	}
	return count, nil
}
