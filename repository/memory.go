package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bikerental/models"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory bike inventory and rental ledger.
// Conditional writes hold the write lock for the whole compare-and-set.
type MemoryStore struct {
	mu      sync.RWMutex
	bikes   map[string]*models.Bike
	rentals map[string]*models.Rental
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bikes:   make(map[string]*models.Bike),
		rentals: make(map[string]*models.Rental),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for created_at/updated_at.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) GetBike(ctx context.Context, id string) (*models.Bike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bike, ok := s.bikes[id]
	if !ok {
		return nil, fmt.Errorf("bike %s: %w", id, ErrNotFound)
	}
	cp := *bike
	return &cp, nil
}

func (s *MemoryStore) CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bike, ok := s.bikes[id]
	if !ok || bike.Status != from {
		return false, nil
	}
	bike.Status = to
	bike.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) CreateBike(ctx context.Context, bike *models.Bike) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bike.ID == "" {
		bike.ID = uuid.NewString()
	}
	if _, exists := s.bikes[bike.ID]; exists {
		return "", fmt.Errorf("bike %s: %w", bike.ID, ErrDuplicate)
	}
	if bike.Status == "" {
		bike.Status = models.BikeAvailable
	}
	now := s.now()
	bike.CreatedAt = now
	bike.UpdatedAt = now
	cp := *bike
	s.bikes[bike.ID] = &cp
	return bike.ID, nil
}

func (s *MemoryStore) ListBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bikes := make([]models.Bike, 0, len(s.bikes))
	for _, bike := range s.bikes {
		if filter.Status != "" && bike.Status != filter.Status {
			continue
		}
		if filter.Type != "" && bike.Type != filter.Type {
			continue
		}
		bikes = append(bikes, *bike)
	}
	sort.Slice(bikes, func(i, j int) bool {
		return bikes[i].CreatedAt.After(bikes[j].CreatedAt)
	})
	return bikes, nil
}

func (s *MemoryStore) CountBikes(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.bikes)), nil
}

func (s *MemoryStore) ListStaleBikes(ctx context.Context, status models.BikeStatus, before time.Time) ([]models.Bike, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var bikes []models.Bike
	for _, bike := range s.bikes {
		if bike.Status == status && bike.UpdatedAt.Before(before) {
			bikes = append(bikes, *bike)
		}
	}
	return bikes, nil
}

func (s *MemoryStore) GetRental(ctx context.Context, id string) (*models.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rental, ok := s.rentals[id]
	if !ok {
		return nil, fmt.Errorf("rental %s: %w", id, ErrNotFound)
	}
	cp := *rental
	return &cp, nil
}

func (s *MemoryStore) InsertRental(ctx context.Context, rental *models.Rental) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rental.ID == "" {
		rental.ID = uuid.NewString()
	}
	if _, exists := s.rentals[rental.ID]; exists {
		return "", fmt.Errorf("rental %s: %w", rental.ID, ErrDuplicate)
	}
	now := s.now()
	rental.CreatedAt = now
	rental.UpdatedAt = now
	cp := *rental
	cp.Bike = nil
	s.rentals[rental.ID] = &cp
	return rental.ID, nil
}

func (s *MemoryStore) CompleteRental(ctx context.Context, id string, endTime time.Time, totalCost float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rental, ok := s.rentals[id]
	if !ok || rental.Status != models.RentalActive {
		return false, nil
	}
	end := endTime
	cost := totalCost
	rental.EndTime = &end
	rental.TotalCost = &cost
	rental.Status = models.RentalCompleted
	rental.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) FindActiveRentalByBike(ctx context.Context, bikeID string) (*models.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Rental
	for _, rental := range s.rentals {
		if rental.BikeID != bikeID || rental.Status != models.RentalActive {
			continue
		}
		if found == nil || rental.StartTime.After(found.StartTime) {
			found = rental
		}
	}
	if found == nil {
		return nil, fmt.Errorf("active rental for bike %s: %w", bikeID, ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

func (s *MemoryStore) ListActiveRentalsBefore(ctx context.Context, before time.Time) ([]models.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rentals []models.Rental
	for _, rental := range s.rentals {
		if rental.Status == models.RentalActive && rental.UpdatedAt.Before(before) {
			rentals = append(rentals, *rental)
		}
	}
	return rentals, nil
}

func (s *MemoryStore) ListRentalsByRenter(ctx context.Context, renterID string) ([]models.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rentals []models.Rental
	for _, rental := range s.rentals {
		if rental.RenterID != renterID {
			continue
		}
		cp := *rental
		if bike, ok := s.bikes[rental.BikeID]; ok {
			b := *bike
			cp.Bike = &b
		}
		rentals = append(rentals, cp)
	}
	sort.Slice(rentals, func(i, j int) bool {
		return rentals[i].StartTime.After(rentals[j].StartTime)
	})
	return rentals, nil
}

func (s *MemoryStore) CountActiveRentals(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, rental := range s.rentals {
		if rental.Status == models.RentalActive {
			count++
		}
	}
	return count, nil
}
