package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RentalStatus 租借狀態
type RentalStatus string

const (
	RentalActive    RentalStatus = "active"
	RentalCompleted RentalStatus = "completed"
)

// Rental 租借紀錄；EndTime 與 TotalCost 只在 completed 時有值
type Rental struct {
	ID        string       `json:"id" gorm:"primaryKey;type:char(36)"`
	BikeID    string       `json:"bike_id" gorm:"type:char(36);not null;index:idx_rental_bike_status,priority:1"`
	RenterID  string       `json:"renter_id" gorm:"type:varchar(64);not null;index"`
	StartTime time.Time    `json:"start_time" gorm:"type:datetime(3);not null"`
	EndTime   *time.Time   `json:"end_time" gorm:"type:datetime(3);default:null"`
	TotalCost *float64     `json:"total_cost" gorm:"type:decimal(10,2);default:null"`
	Status    RentalStatus `json:"status" gorm:"type:enum('active', 'completed');not null;default:active;index:idx_rental_bike_status,priority:2"`
	CreatedAt time.Time    `json:"created_at" gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"type:datetime(3);not null"`
	Bike      *Bike        `json:"-" gorm:"foreignKey:BikeID;references:ID"`
}

func (Rental) TableName() string {
	return "rentals"
}

func (r *Rental) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type StartRentalRequest struct {
	BikeID string `json:"bike_id" binding:"required,uuid"`
}

type RentalResponse struct {
	ID        string        `json:"id"`
	BikeID    string        `json:"bike_id"`
	RenterID  string        `json:"renter_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time"`
	TotalCost *float64      `json:"total_cost"`
	Status    RentalStatus  `json:"status"`
	Bike      *BikeResponse `json:"bike,omitempty"`
}

func (r *Rental) ToResponse() RentalResponse {
	resp := RentalResponse{
		ID:        r.ID,
		BikeID:    r.BikeID,
		RenterID:  r.RenterID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		TotalCost: r.TotalCost,
		Status:    r.Status,
	}
	if r.Bike != nil {
		bike := r.Bike.ToResponse()
		resp.Bike = &bike
	}
	return resp
}

// Stats 後台統計
type Stats struct {
	TotalBikes    int64 `json:"total_bikes"`
	ActiveRentals int64 `json:"active_rentals"`
}
