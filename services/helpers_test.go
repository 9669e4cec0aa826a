package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bikerental/models"
	"bikerental/repository"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testRetry = RetryPolicy{Attempts: 3, Interval: time.Millisecond}

// flakyBikes fails every rented -> available transition when failRelease is set,
// and every available -> rented transition when failReserve is set.
type flakyBikes struct {
	*repository.MemoryStore
	failRelease bool
	failReserve bool

	mu       sync.Mutex
	releases int
}

func (f *flakyBikes) CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error) {
	switch to {
	case models.BikeAvailable:
		f.mu.Lock()
		f.releases++
		f.mu.Unlock()
		if f.failRelease {
			return false, errors.New("db unreachable")
		}
	case models.BikeRented:
		if f.failReserve {
			return false, errors.New("lock wait timeout exceeded")
		}
	}
	return f.MemoryStore.CompareAndSetBikeStatus(ctx, id, from, to)
}

func (f *flakyBikes) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// flakyRentals fails inserts; with commitThenFail the row is written before the error.
// hideReads makes that many GetRental calls report not found, like a lagging read.
type flakyRentals struct {
	*repository.MemoryStore
	insertErr      error
	commitThenFail bool

	mu        sync.Mutex
	hideReads int
	inserts   int
}

func (f *flakyRentals) InsertRental(ctx context.Context, rental *models.Rental) (string, error) {
	f.mu.Lock()
	f.inserts++
	f.mu.Unlock()
	if f.commitThenFail {
		if _, err := f.MemoryStore.InsertRental(ctx, rental); err != nil {
			return "", err
		}
		return "", errors.New("write timeout")
	}
	if f.insertErr != nil {
		return "", f.insertErr
	}
	return f.MemoryStore.InsertRental(ctx, rental)
}

func (f *flakyRentals) GetRental(ctx context.Context, id string) (*models.Rental, error) {
	f.mu.Lock()
	hide := f.hideReads > 0
	if hide {
		f.hideReads--
	}
	f.mu.Unlock()
	if hide {
		return nil, fmt.Errorf("rental %s: %w", id, repository.ErrNotFound)
	}
	return f.MemoryStore.GetRental(ctx, id)
}

func (f *flakyRentals) Inserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func addBike(t *testing.T, store *repository.MemoryStore, rate float64) string {
	t.Helper()
	id, err := store.CreateBike(context.Background(), &models.Bike{Name: "Bike", Type: "City", HourlyRate: rate, Status: models.BikeAvailable})
	require.NoError(t, err)
	return id
}

// requireInvariant checks that a bike is rented exactly when it has one active rental.
func requireInvariant(t *testing.T, store *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	bikes, err := store.ListBikes(ctx, models.BikeFilter{})
	require.NoError(t, err)
	for _, bike := range bikes {
		_, err := store.FindActiveRentalByBike(ctx, bike.ID)
		hasActive := err == nil
		if err != nil {
			require.ErrorIs(t, err, repository.ErrNotFound)
		}
		require.Equal(t, bike.Status == models.BikeRented, hasActive, "bike %s status=%s active=%v", bike.ID, bike.Status, hasActive)
	}
}
