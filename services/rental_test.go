package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bikerental/models"
	"bikerental/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(store *repository.MemoryStore, clock *fakeClock, opts ...ManagerOption) *RentalManager {
	opts = append([]ManagerOption{WithClock(clock.Now), WithRetryPolicy(testRetry)}, opts...)
	return NewRentalManager(store, store, opts...)
}

func TestRentalScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := repository.NewMemoryStore()
	store.SetClock(clock.Now)
	bikeID := addBike(t, store, 10)
	m := newManager(store, clock)

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	assert.Equal(t, models.RentalActive, rental.Status)
	assert.Equal(t, clock.Now(), rental.StartTime)
	assert.Nil(t, rental.EndTime)
	assert.Nil(t, rental.TotalCost)

	bike, err := store.GetBike(ctx, bikeID)
	require.NoError(t, err)
	assert.Equal(t, models.BikeRented, bike.Status)
	requireInvariant(t, store)

	_, err = m.StartRental(ctx, bikeID, "user2")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonBikeUnavailable, ReasonOf(err))

	clock.Advance(90 * time.Minute)
	done, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, models.RentalCompleted, done.Status)
	require.NotNil(t, done.TotalCost)
	assert.Equal(t, 20.00, *done.TotalCost)
	require.NotNil(t, done.EndTime)
	assert.Equal(t, rental.StartTime.Add(90*time.Minute), *done.EndTime)

	bike, err = store.GetBike(ctx, bikeID)
	require.NoError(t, err)
	assert.Equal(t, models.BikeAvailable, bike.Status)
	requireInvariant(t, store)
}

func TestStartRental_UnknownBike(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	m := newManager(store, newFakeClock())

	_, err := m.StartRental(ctx, "00000000-0000-0000-0000-000000000000", "user1")
	require.ErrorIs(t, err, ErrNotFound)

	count, err := store.CountActiveRentals(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	rentals, err := store.ListRentalsByRenter(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, rentals)
}

func TestStartRental_RequiresRenter(t *testing.T) {
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	_, err := newManager(store, newFakeClock()).StartRental(context.Background(), bikeID, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStartRental_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	m := newManager(store, newFakeClock())

	const callers = 50
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.StartRental(ctx, bikeID, "user")
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)

	count, err := store.CountActiveRentals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	requireInvariant(t, store)
}

func TestEndRental_DoubleCloseConcurrent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	m := newManager(store, clock)

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if errors.Is(err, ErrConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	requireInvariant(t, store)
}

func TestEndRental_IdempotentRejection(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	m := newManager(store, clock)

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	first, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.NoError(t, err)
	require.NotNil(t, first.TotalCost)

	clock.Advance(5 * time.Hour)
	second, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonAlreadyReturned, ReasonOf(err))
	assert.Nil(t, second)

	stored, err := store.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.TotalCost, *stored.TotalCost)
	assert.Equal(t, *first.EndTime, *stored.EndTime)
}

func TestEndRental_Authorization(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	m := newManager(store, newFakeClock())

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)

	_, err = m.EndRental(ctx, rental.ID, Actor{ID: "user2"})
	require.ErrorIs(t, err, ErrUnauthorized)

	stored, err := store.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RentalActive, stored.Status)

	done, err := m.EndRental(ctx, rental.ID, Actor{ID: "admin", Privileged: true})
	require.NoError(t, err)
	assert.Equal(t, models.RentalCompleted, done.Status)
	requireInvariant(t, store)
}

func TestEndRental_UnknownRental(t *testing.T) {
	_, err := newManager(repository.NewMemoryStore(), newFakeClock()).EndRental(context.Background(), "missing", Actor{ID: "user1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndRental_ZeroDurationBillsOneHour(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 12.5)
	m := newManager(store, newFakeClock())

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	done, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, *done.TotalCost)
}

func TestStartRental_CompensatesFailedInsert(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	rentals := &flakyRentals{MemoryStore: store, insertErr: errors.New("deadlock found")}
	m := NewRentalManager(store, rentals, WithRetryPolicy(testRetry))

	_, err := m.StartRental(ctx, bikeID, "user1")
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, testRetry.Attempts, rentals.Inserts())

	bike, err := store.GetBike(ctx, bikeID)
	require.NoError(t, err)
	assert.Equal(t, models.BikeAvailable, bike.Status)
	requireInvariant(t, store)
}

func TestStartRental_InsertCommittedDespiteError(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	rentals := &flakyRentals{MemoryStore: store, commitThenFail: true}
	m := NewRentalManager(store, rentals, WithRetryPolicy(testRetry))

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, rentals.Inserts(), "a committed insert must not be retried")

	count, err := store.CountActiveRentals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	_, err = store.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	requireInvariant(t, store)
}

func TestEndRental_ReleaseRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := repository.NewMemoryStore()
	store.SetClock(clock.Now)
	bikeID := addBike(t, store, 10)
	bikes := &flakyBikes{MemoryStore: store}
	m := NewRentalManager(bikes, store, WithClock(clock.Now), WithRetryPolicy(testRetry))

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)

	bikes.failRelease = true
	clock.Advance(time.Hour)
	_, err = m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, testRetry.Attempts, bikes.Releases())

	stored, err := store.GetRental(ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RentalCompleted, stored.Status)

	// The reconciler restores availability once the grace period has passed.
	clock.Advance(10 * time.Minute)
	r := NewReconciler(store, store, 2*time.Minute, nil)
	r.SetClock(clock.Now)
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BikesReleased)
	requireInvariant(t, store)
}

// cancelingBikes cancels the caller context as soon as the bike write lands.
type cancelingBikes struct {
	*repository.MemoryStore
	cancel context.CancelFunc
}

func (c *cancelingBikes) CompareAndSetBikeStatus(ctx context.Context, id string, from, to models.BikeStatus) (bool, error) {
	ok, err := c.MemoryStore.CompareAndSetBikeStatus(ctx, id, from, to)
	c.cancel()
	return ok, err
}

// ctxCheckingRentals refuses writes on a done context, like a real driver would.
type ctxCheckingRentals struct {
	*repository.MemoryStore
}

func (c *ctxCheckingRentals) InsertRental(ctx context.Context, rental *models.Rental) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.MemoryStore.InsertRental(ctx, rental)
}

func TestStartRental_CallerCancellationDoesNotAbortWrites(t *testing.T) {
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewRentalManager(&cancelingBikes{MemoryStore: store, cancel: cancel}, &ctxCheckingRentals{MemoryStore: store}, WithRetryPolicy(testRetry))

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	assert.Error(t, ctx.Err())

	_, err = store.GetRental(context.Background(), rental.ID)
	require.NoError(t, err)
	requireInvariant(t, store)
}

func TestRentalManager_InvalidatesAfterTransitions(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bikeID := addBike(t, store, 10)
	inv := &countingInvalidator{}
	m := newManager(store, newFakeClock(), WithInvalidator(inv))

	rental, err := m.StartRental(ctx, bikeID, "user1")
	require.NoError(t, err)
	_, err = m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
	require.NoError(t, err)
	_, _ = m.StartRental(ctx, "missing", "user1")

	assert.Equal(t, 2, inv.calls)
}

func TestRentalManager_EdgePaths(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T, ctx context.Context, store *repository.MemoryStore, clock *fakeClock, bikeID string)
	}{
		{
			name: "end time clamped to start on clock skew",
			run: func(t *testing.T, ctx context.Context, store *repository.MemoryStore, clock *fakeClock, bikeID string) {
				m := newManager(store, clock)
				rental, err := m.StartRental(ctx, bikeID, "user1")
				require.NoError(t, err)

				clock.Advance(-10 * time.Minute)
				done, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
				require.NoError(t, err)
				require.NotNil(t, done.EndTime)
				assert.Equal(t, rental.StartTime, *done.EndTime)
				assert.Equal(t, 10.0, *done.TotalCost)
			},
		},
		{
			name: "bike already available on return is not an error",
			run: func(t *testing.T, ctx context.Context, store *repository.MemoryStore, clock *fakeClock, bikeID string) {
				m := newManager(store, clock)
				rental, err := m.StartRental(ctx, bikeID, "user1")
				require.NoError(t, err)
				ok, err := store.CompareAndSetBikeStatus(ctx, bikeID, models.BikeRented, models.BikeAvailable)
				require.NoError(t, err)
				require.True(t, ok)

				clock.Advance(30 * time.Minute)
				done, err := m.EndRental(ctx, rental.ID, Actor{ID: "user1"})
				require.NoError(t, err)
				assert.Equal(t, models.RentalCompleted, done.Status)
			},
		},
		{
			name: "duplicate key on retry means the first insert committed",
			run: func(t *testing.T, ctx context.Context, store *repository.MemoryStore, clock *fakeClock, bikeID string) {
				rentals := &flakyRentals{MemoryStore: store, commitThenFail: true, hideReads: 1}
				m := NewRentalManager(store, rentals, WithClock(clock.Now), WithRetryPolicy(testRetry))

				rental, err := m.StartRental(ctx, bikeID, "user1")
				require.NoError(t, err)
				assert.Equal(t, 2, rentals.Inserts())

				count, err := store.CountActiveRentals(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(1), count)
				_, err = store.GetRental(ctx, rental.ID)
				require.NoError(t, err)
			},
		},
		{
			name: "reserve write error is a storage failure with no rental",
			run: func(t *testing.T, ctx context.Context, store *repository.MemoryStore, clock *fakeClock, bikeID string) {
				bikes := &flakyBikes{MemoryStore: store, failReserve: true}
				m := NewRentalManager(bikes, store, WithClock(clock.Now), WithRetryPolicy(testRetry))

				_, err := m.StartRental(ctx, bikeID, "user1")
				require.ErrorIs(t, err, ErrStorageFailure)

				count, err := store.CountActiveRentals(ctx)
				require.NoError(t, err)
				assert.Zero(t, count)
				bike, err := store.GetBike(ctx, bikeID)
				require.NoError(t, err)
				assert.Equal(t, models.BikeAvailable, bike.Status)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			store := repository.NewMemoryStore()
			store.SetClock(clock.Now)
			bikeID := addBike(t, store, 10)

			tc.run(t, ctx, store, clock, bikeID)
			requireInvariant(t, store)
		})
	}
}

func TestStartRental_ConcurrentCompensation(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	const n = 16
	ids := make([]string, n)
	for i := range ids {
		ids[i] = addBike(t, store, 10)
	}
	bikes := &flakyBikes{MemoryStore: store}
	rentals := &flakyRentals{MemoryStore: store, insertErr: errors.New("deadlock found")}
	m := NewRentalManager(bikes, rentals, WithRetryPolicy(testRetry))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(bikeID string) {
			defer wg.Done()
			_, err := m.StartRental(ctx, bikeID, "user1")
			assert.ErrorIs(t, err, ErrStorageFailure)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, n*testRetry.Attempts, rentals.Inserts())
	assert.Equal(t, n, bikes.Releases())
	requireInvariant(t, store)
}
