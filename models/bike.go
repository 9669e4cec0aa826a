package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BikeStatus 車輛狀態
type BikeStatus string

const (
	BikeAvailable BikeStatus = "available"
	BikeRented    BikeStatus = "rented"
)

// BikeTypes lists the accepted values of Bike.Type.
var BikeTypes = []string{"Mountain", "Road", "City", "Electric", "Hybrid"}

type Bike struct {
	ID          string     `json:"id" gorm:"primaryKey;type:char(36)"`
	Name        string     `json:"name" gorm:"type:varchar(100);not null"`
	Type        string     `json:"type" gorm:"type:enum('Mountain', 'Road', 'City', 'Electric', 'Hybrid');not null"`
	HourlyRate  float64    `json:"hourly_rate" gorm:"type:decimal(10,2);not null"`
	Status      BikeStatus `json:"status" gorm:"type:enum('available', 'rented');not null;default:available;index"`
	Location    *string    `json:"location" gorm:"type:varchar(200);default:null"`
	Description *string    `json:"description" gorm:"type:varchar(500);default:null"`
	CreatedAt   time.Time  `json:"created_at" gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"type:datetime(3);not null;index"`
}

func (Bike) TableName() string {
	return "bikes"
}

// BeforeCreate 產生 UUID
func (b *Bike) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// CreateBikeRequest is the admin payload for adding a bike to the fleet.
type CreateBikeRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Type        string  `json:"type" binding:"required,oneof=Mountain Road City Electric Hybrid"`
	HourlyRate  float64 `json:"hourly_rate" binding:"required,gt=0"`
	Location    string  `json:"location" binding:"omitempty,max=200"`
	Description string  `json:"description" binding:"omitempty,max=500"`
}

// ToBike 轉換為 Bike，新車一律為 available
func (r *CreateBikeRequest) ToBike() *Bike {
	bike := &Bike{
		Name:       r.Name,
		Type:       r.Type,
		HourlyRate: r.HourlyRate,
		Status:     BikeAvailable,
	}
	if r.Location != "" {
		loc := r.Location
		bike.Location = &loc
	}
	if r.Description != "" {
		desc := r.Description
		bike.Description = &desc
	}
	return bike
}

type BikeResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	HourlyRate  float64    `json:"hourly_rate"`
	Status      BikeStatus `json:"status"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (b *Bike) ToResponse() BikeResponse {
	resp := BikeResponse{
		ID:         b.ID,
		Name:       b.Name,
		Type:       b.Type,
		HourlyRate: b.HourlyRate,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
	}
	if b.Location != nil {
		resp.Location = *b.Location
	}
	if b.Description != nil {
		resp.Description = *b.Description
	}
	return resp
}

// BikeFilter narrows a bike listing. Empty fields match everything.
type BikeFilter struct {
	Status BikeStatus
	Type   string
}
