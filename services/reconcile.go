package services

import (
	"context"
	"log"
	"time"

	"bikerental/models"
)

// ReconcileBikes is the bike-side access the reconciler needs.
type ReconcileBikes interface {
	GetBike(ctx context.Context, id string) (*models.Bike, error)
	CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error)
	ListStaleBikes(ctx context.Context, status models.BikeStatus, before time.Time) ([]models.Bike, error)
}

// ReconcileRentals is the rental-side access the reconciler needs.
type ReconcileRentals interface {
	GetRental(ctx context.Context, id string) (*models.Rental, error)
	FindActiveRentalByBike(ctx context.Context, bikeID string) (*models.Rental, error)
	ListActiveRentalsBefore(ctx context.Context, before time.Time) ([]models.Rental, error)
}

// ReconcileReport counts the repairs made by one sweep.
type ReconcileReport struct {
	BikesReleased  int
	BikesReclaimed int
}

// Reconciler repairs bikes whose status disagrees with the rental ledger after a
// partial failure. Records changed within the grace period are left alone so an
// in-flight StartRental or EndRental is never undone.
type Reconciler struct {
	bikes       ReconcileBikes
	rentals     ReconcileRentals
	grace       time.Duration
	now         func() time.Time
	invalidator Invalidator
}

func NewReconciler(bikes ReconcileBikes, rentals ReconcileRentals, grace time.Duration, invalidator Invalidator) *Reconciler {
	return &Reconciler{
		bikes:       bikes,
		rentals:     rentals,
		grace:       grace,
		now:         func() time.Time { return time.Now().UTC() },
		invalidator: invalidator,
	}
}

// SetClock replaces the reconciler clock.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Run 執行一次對帳，回傳第一個遇到的錯誤但不中斷其餘項目
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	cutoff := r.now().Add(-r.grace)

	// rented bikes with no active rental
	rented, err := r.bikes.ListStaleBikes(ctx, models.BikeRented, cutoff)
	if err != nil {
		return report, storageFailure("list stale rented bikes", err)
	}
	for _, bike := range rented {
		_, err := r.rentals.FindActiveRentalByBike(ctx, bike.ID)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			log.Printf("Failed to check active rental for bike %s: %v", bike.ID, err)
			keep(err)
			continue
		}
		ok, err := r.bikes.CompareAndSetBikeStatus(ctx, bike.ID, models.BikeRented, models.BikeAvailable)
		if err != nil {
			log.Printf("Failed to release orphaned bike %s: %v", bike.ID, err)
			keep(err)
			continue
		}
		if ok {
			report.BikesReleased++
			log.Printf("reconcile: released bike %s (rented without an active rental)", bike.ID)
		}
	}

	// active rentals whose bike shows available
	active, err := r.rentals.ListActiveRentalsBefore(ctx, cutoff)
	if err != nil {
		keep(err)
	}
	for _, rental := range active {
		bike, err := r.bikes.GetBike(ctx, rental.BikeID)
		if err != nil {
			log.Printf("Failed to load bike %s for rental %s: %v", rental.BikeID, rental.ID, err)
			keep(err)
			continue
		}
		if bike.Status != models.BikeAvailable || !bike.UpdatedAt.Before(cutoff) {
			continue
		}
		ok, err := r.bikes.CompareAndSetBikeStatus(ctx, bike.ID, models.BikeAvailable, models.BikeRented)
		if err != nil {
			log.Printf("Failed to reclaim bike %s for rental %s: %v", bike.ID, rental.ID, err)
			keep(err)
			continue
		}
		if !ok {
			continue
		}
		// The rental may have been closed between the reads and the write.
		stands, err := r.confirmReclaim(ctx, bike.ID, rental.ID)
		if err != nil {
			keep(err)
		}
		if !stands {
			continue
		}
		report.BikesReclaimed++
		log.Printf("reconcile: marked bike %s rented for active rental %s", bike.ID, rental.ID)
	}

	if (report.BikesReleased > 0 || report.BikesReclaimed > 0) && r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx); err != nil {
			log.Printf("Failed to invalidate bike cache: %v", err)
		}
	}
	if firstErr != nil {
		return report, storageFailure("reconcile", firstErr)
	}
	return report, nil
}

// confirmReclaim re-reads the rental after its bike was marked rented and puts
// the bike back when the rental is no longer active.
func (r *Reconciler) confirmReclaim(ctx context.Context, bikeID, rentalID string) (bool, error) {
	current, err := r.rentals.GetRental(ctx, rentalID)
	if err != nil && !isNotFound(err) {
		// 無法確認；若租借已結束，下次對帳的 release 掃描會處理
		log.Printf("Failed to confirm rental %s after reclaiming bike %s: %v", rentalID, bikeID, err)
		return true, err
	}
	if err == nil && current.Status == models.RentalActive {
		return true, nil
	}

	if _, err := r.bikes.CompareAndSetBikeStatus(ctx, bikeID, models.BikeRented, models.BikeAvailable); err != nil {
		log.Printf("reconcile: bike %s left rented after rental %s closed: %v", bikeID, rentalID, err)
		return false, err
	}
	log.Printf("Rental %s closed during reconcile, bike %s put back", rentalID, bikeID)
	return false, nil
}
