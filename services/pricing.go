package services

import (
	"fmt"
	"math"
	"time"
)

// ComputeCost 依起訖時間與每小時費率計算租金，不足一小時以一小時計，最少收一小時
func ComputeCost(startTime, endTime time.Time, hourlyRate float64) (float64, error) {
	if endTime.Before(startTime) {
		return 0, fmt.Errorf("end_time %v cannot be earlier than start_time %v", endTime, startTime)
	}
	if hourlyRate <= 0 || math.IsNaN(hourlyRate) || math.IsInf(hourlyRate, 0) {
		return 0, fmt.Errorf("invalid hourly_rate %.2f", hourlyRate)
	}

	hours := BilledHours(startTime, endTime)
	return roundCurrency(float64(hours) * hourlyRate), nil
}

// BilledHours rounds elapsed time up to whole hours, with a one-hour minimum for zero-length rentals.
func BilledHours(startTime, endTime time.Time) int64 {
	elapsed := endTime.Sub(startTime)
	if elapsed <= 0 {
		return 1
	}
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	return hours
}

func roundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
