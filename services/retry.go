package services

import (
	"context"
	"log"
	"time"
)

// RetryPolicy bounds retries of idempotent reads and compensation writes.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Interval: 100 * time.Millisecond}

// do 重試機制：最多 Attempts 次，stop 回傳 true 的錯誤不重試
func (p RetryPolicy) do(ctx context.Context, op string, stop func(error) bool, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if stop != nil && stop(err) {
			return err
		}
		log.Printf("Failed to %s (attempt %d/%d): %v", op, i+1, attempts, err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(p.Interval):
			}
		}
	}
	return err
}
