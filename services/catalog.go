package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bikerental/models"
)

// BikeCatalog is the bike inventory as seen by listing and admin screens.
type BikeCatalog interface {
	GetBike(ctx context.Context, id string) (*models.Bike, error)
	CreateBike(ctx context.Context, bike *models.Bike) (string, error)
	ListBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, error)
	CountBikes(ctx context.Context) (int64, error)
}

// RentalHistory is the read side of the rental ledger.
type RentalHistory interface {
	GetRental(ctx context.Context, id string) (*models.Rental, error)
	ListRentalsByRenter(ctx context.Context, renterID string) ([]models.Rental, error)
	CountActiveRentals(ctx context.Context) (int64, error)
}

// BikeListCache caches bike listings per filter. GetBikes reports the cache
// generation it looked in; SetBikes writes under that generation, so a listing
// read before an Invalidate is never served after it.
type BikeListCache interface {
	GetBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, bool, int64, error)
	SetBikes(ctx context.Context, gen int64, filter models.BikeFilter, bikes []models.Bike) error
	Invalidate(ctx context.Context) error
}

// CatalogService 車輛目錄、租借紀錄查詢與後台統計
type CatalogService struct {
	bikes   BikeCatalog
	rentals RentalHistory
	cache   BikeListCache
}

// NewCatalogService builds the service; cache may be nil.
func NewCatalogService(bikes BikeCatalog, rentals RentalHistory, cache BikeListCache) *CatalogService {
	return &CatalogService{bikes: bikes, rentals: rentals, cache: cache}
}

// CreateBike 新增車輛（僅管理員）
func (s *CatalogService) CreateBike(ctx context.Context, req *models.CreateBikeRequest) (*models.Bike, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return nil, newError(KindInvalid, "name is required", nil)
	}
	if !validBikeType(req.Type) {
		return nil, newError(KindInvalid, fmt.Sprintf("invalid type %q", req.Type), nil)
	}
	if req.HourlyRate <= 0 {
		return nil, newError(KindInvalid, "hourly_rate must be positive", nil)
	}

	bike := req.ToBike()
	if _, err := s.bikes.CreateBike(ctx, bike); err != nil {
		log.Printf("Failed to create bike %s: %v", bike.Name, err)
		return nil, storageFailure("create bike", err)
	}
	s.invalidate(ctx)

	log.Printf("Successfully created bike %s (%s, %.2f/h)", bike.ID, bike.Type, bike.HourlyRate)
	return bike, nil
}

// ListBikes returns bikes matching the filter, served from cache when possible.
func (s *CatalogService) ListBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, error) {
	if filter.Status != "" && filter.Status != models.BikeAvailable && filter.Status != models.BikeRented {
		return nil, newError(KindInvalid, fmt.Sprintf("invalid status %q", filter.Status), nil)
	}
	if filter.Type != "" && !validBikeType(filter.Type) {
		return nil, newError(KindInvalid, fmt.Sprintf("invalid type %q", filter.Type), nil)
	}

	cacheable := false
	var gen int64
	if s.cache != nil {
		bikes, hit, g, err := s.cache.GetBikes(ctx, filter)
		if err != nil {
			log.Printf("Failed to read bike cache: %v", err)
		} else if hit {
			return bikes, nil
		} else {
			cacheable, gen = true, g
		}
	}

	bikes, err := s.bikes.ListBikes(ctx, filter)
	if err != nil {
		return nil, storageFailure("list bikes", err)
	}

	if cacheable {
		if err := s.cache.SetBikes(ctx, gen, filter, bikes); err != nil {
			log.Printf("Failed to write bike cache: %v", err)
		}
	}
	return bikes, nil
}

func (s *CatalogService) GetBike(ctx context.Context, id string) (*models.Bike, error) {
	bike, err := s.bikes.GetBike(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("bike %s not found", id)
		}
		return nil, storageFailure("get bike", err)
	}
	return bike, nil
}

// ListRentals 查詢操作者自己的租借紀錄
func (s *CatalogService) ListRentals(ctx context.Context, actor Actor) ([]models.Rental, error) {
	if actor.ID == "" {
		return nil, newError(KindUnauthorized, "actor is required", nil)
	}
	rentals, err := s.rentals.ListRentalsByRenter(ctx, actor.ID)
	if err != nil {
		return nil, storageFailure("list rentals", err)
	}
	return rentals, nil
}

// GetRental returns a rental visible to the actor: its renter or a privileged actor.
func (s *CatalogService) GetRental(ctx context.Context, id string, actor Actor) (*models.Rental, error) {
	rental, err := s.rentals.GetRental(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("rental %s not found", id)
		}
		return nil, storageFailure("get rental", err)
	}
	if rental.RenterID != actor.ID && !actor.Privileged {
		return nil, newError(KindUnauthorized, "rental belongs to another renter", nil)
	}
	return rental, nil
}

// Stats 後台統計：車輛總數與進行中租借數
func (s *CatalogService) Stats(ctx context.Context) (models.Stats, error) {
	bikes, err := s.bikes.CountBikes(ctx)
	if err != nil {
		return models.Stats{}, storageFailure("count bikes", err)
	}
	active, err := s.rentals.CountActiveRentals(ctx)
	if err != nil {
		return models.Stats{}, storageFailure("count active rentals", err)
	}
	return models.Stats{TotalBikes: bikes, ActiveRentals: active}, nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("Failed to invalidate bike cache: %v", err)
	}
}

func validBikeType(t string) bool {
	for _, v := range models.BikeTypes {
		if v == t {
			return true
		}
	}
	return false
}
