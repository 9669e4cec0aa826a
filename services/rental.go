package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bikerental/models"
	"bikerental/repository"

	"github.com/google/uuid"
)

const (
	ReasonBikeUnavailable = "bike unavailable"
	ReasonAlreadyReturned = "already returned"
)

// BikeStore is what the rental manager needs from the bike inventory.
type BikeStore interface {
	GetBike(ctx context.Context, id string) (*models.Bike, error)
	// CompareAndSetBikeStatus reports whether exactly one bike moved from -> to.
	CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error)
}

// RentalStore is what the rental manager needs from the rental ledger.
type RentalStore interface {
	GetRental(ctx context.Context, id string) (*models.Rental, error)
	InsertRental(ctx context.Context, rental *models.Rental) (string, error)
	// CompleteRental reports whether exactly one active rental was closed.
	CompleteRental(ctx context.Context, id string, endTime time.Time, totalCost float64) (bool, error)
}

// Invalidator is notified after a bike changes status.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Actor 目前操作者；Privileged 為管理員
type Actor struct {
	ID         string
	Privileged bool
}

// RentalManager starts and ends rentals across the bike and rental stores.
// It holds no lock: every state change is a single-record conditional write in the store.
type RentalManager struct {
	bikes        BikeStore
	rentals      RentalStore
	retry        RetryPolicy
	writeTimeout time.Duration
	now          func() time.Time
	invalidator  Invalidator
}

type ManagerOption func(*RentalManager)

func WithClock(now func() time.Time) ManagerOption {
	return func(m *RentalManager) { m.now = now }
}

func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *RentalManager) { m.retry = p }
}

func WithWriteTimeout(d time.Duration) ManagerOption {
	return func(m *RentalManager) { m.writeTimeout = d }
}

func WithInvalidator(inv Invalidator) ManagerOption {
	return func(m *RentalManager) { m.invalidator = inv }
}

func NewRentalManager(bikes BikeStore, rentals RentalStore, opts ...ManagerOption) *RentalManager {
	m := &RentalManager{
		bikes:        bikes,
		rentals:      rentals,
		retry:        DefaultRetryPolicy,
		writeTimeout: 10 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartRental 租車：條件更新車輛狀態成功後才建立租借紀錄
func (m *RentalManager) StartRental(ctx context.Context, bikeID, renterID string) (*models.Rental, error) {
	if renterID == "" {
		return nil, newError(KindUnauthorized, "renter is required", nil)
	}

	bike, err := m.getBike(ctx, bikeID)
	if err != nil {
		return nil, err
	}
	if bike.Status != models.BikeAvailable {
		return nil, conflict(ReasonBikeUnavailable)
	}

	// From here on the caller going away must not interrupt the sequence.
	wctx, cancel := m.detach(ctx)
	defer cancel()

	ok, err := m.bikes.CompareAndSetBikeStatus(wctx, bikeID, models.BikeAvailable, models.BikeRented)
	if err != nil {
		// The write may or may not have applied; a stale rented bike without a rental is released by the reconciler.
		log.Printf("reconcile: reserve bike %s for renter %s ended with unknown outcome: %v", bikeID, renterID, err)
		return nil, storageFailure("reserve bike", err)
	}
	if !ok {
		log.Printf("Bike %s lost the race for renter %s", bikeID, renterID)
		return nil, conflict(ReasonBikeUnavailable)
	}

	rental := &models.Rental{
		ID:        uuid.NewString(),
		BikeID:    bikeID,
		RenterID:  renterID,
		StartTime: m.now(),
		Status:    models.RentalActive,
	}
	absent, err := m.insertRental(wctx, rental)
	if err != nil {
		if absent {
			if rerr := m.releaseBike(wctx, bikeID, "revert bike after failed rental insert"); rerr != nil {
				log.Printf("reconcile: bike %s stays rented without rental %s: %v", bikeID, rental.ID, rerr)
			}
		} else {
			log.Printf("reconcile: rental %s for bike %s has unknown commit state: %v", rental.ID, bikeID, err)
		}
		return nil, storageFailure("create rental", err)
	}

	m.invalidate(wctx)
	log.Printf("Rental %s started: bike=%s renter=%s", rental.ID, bikeID, renterID)
	return rental, nil
}

// EndRental 還車：條件關閉租借紀錄並計費，再釋放車輛
func (m *RentalManager) EndRental(ctx context.Context, rentalID string, actor Actor) (*models.Rental, error) {
	if actor.ID == "" {
		return nil, newError(KindUnauthorized, "actor is required", nil)
	}

	rental, err := m.getRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.RenterID != actor.ID && !actor.Privileged {
		log.Printf("Unauthorized return: actor=%s rental=%s renter=%s", actor.ID, rentalID, rental.RenterID)
		return nil, newError(KindUnauthorized, "rental belongs to another renter", nil)
	}
	if rental.Status == models.RentalCompleted {
		return nil, conflict(ReasonAlreadyReturned)
	}

	bike, err := m.getBike(ctx, rental.BikeID)
	if err != nil {
		return nil, err
	}

	endTime := m.now()
	if endTime.Before(rental.StartTime) {
		endTime = rental.StartTime
	}
	totalCost, err := ComputeCost(rental.StartTime, endTime, bike.HourlyRate)
	if err != nil {
		return nil, newError(KindInvalid, "cannot price rental", err)
	}

	wctx, cancel := m.detach(ctx)
	defer cancel()

	ok, err := m.rentals.CompleteRental(wctx, rentalID, endTime, totalCost)
	if err != nil {
		return nil, storageFailure("close rental", err)
	}
	if !ok {
		return nil, conflict(ReasonAlreadyReturned)
	}

	rental.Status = models.RentalCompleted
	rental.EndTime = &endTime
	rental.TotalCost = &totalCost

	if err := m.releaseBike(wctx, rental.BikeID, "release bike after return"); err != nil {
		log.Printf("reconcile: rental %s closed but bike %s still rented: %v", rentalID, rental.BikeID, err)
		return nil, storageFailure("release bike", err)
	}

	m.invalidate(wctx)
	log.Printf("Rental %s completed: bike=%s hours=%d cost=%.2f", rentalID, rental.BikeID, BilledHours(rental.StartTime, endTime), totalCost)
	return rental, nil
}

func (m *RentalManager) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.writeTimeout)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

func (m *RentalManager) getBike(ctx context.Context, id string) (*models.Bike, error) {
	var bike *models.Bike
	err := m.retry.do(ctx, "get bike "+id, isNotFound, func() error {
		b, err := m.bikes.GetBike(ctx, id)
		if err != nil {
			return err
		}
		bike = b
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("bike %s not found", id)
		}
		return nil, storageFailure("get bike", err)
	}
	return bike, nil
}

func (m *RentalManager) getRental(ctx context.Context, id string) (*models.Rental, error) {
	var rental *models.Rental
	err := m.retry.do(ctx, "get rental "+id, isNotFound, func() error {
		r, err := m.rentals.GetRental(ctx, id)
		if err != nil {
			return err
		}
		rental = r
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("rental %s not found", id)
		}
		return nil, storageFailure("get rental", err)
	}
	return rental, nil
}

// insertRental retries a failed insert only after a read confirms the previous attempt did not commit.
// absent is true when the rental is known not to exist after a failure.
func (m *RentalManager) insertRental(ctx context.Context, rental *models.Rental) (absent bool, err error) {
	attempts := m.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		_, err = m.rentals.InsertRental(ctx, rental)
		if err == nil {
			return false, nil
		}
		if errors.Is(err, repository.ErrDuplicate) && i > 0 {
			log.Printf("Rental %s was committed by an earlier attempt", rental.ID)
			return false, nil
		}
		log.Printf("Failed to insert rental %s (attempt %d/%d): %v", rental.ID, i+1, attempts, err)

		_, gerr := m.rentals.GetRental(ctx, rental.ID)
		switch {
		case gerr == nil:
			log.Printf("Rental %s was committed despite insert error", rental.ID)
			return false, nil
		case !isNotFound(gerr):
			return false, fmt.Errorf("%w (commit check failed: %v)", err, gerr)
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return true, err
			case <-time.After(m.retry.Interval):
			}
		}
	}
	return true, err
}

// releaseBike 將車輛由 rented 改回 available，失敗時重試
func (m *RentalManager) releaseBike(ctx context.Context, bikeID, op string) error {
	released := false
	err := m.retry.do(ctx, op, nil, func() error {
		ok, err := m.bikes.CompareAndSetBikeStatus(ctx, bikeID, models.BikeRented, models.BikeAvailable)
		if err != nil {
			return err
		}
		released = ok
		return nil
	})
	if err != nil {
		return err
	}
	if !released {
		log.Printf("Bike %s was already available during %s", bikeID, op)
	}
	return nil
}

func (m *RentalManager) invalidate(ctx context.Context) {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.Invalidate(ctx); err != nil {
		log.Printf("Failed to invalidate bike cache: %v", err)
	}
}
