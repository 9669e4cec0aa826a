package handlers

import (
	"log"
	"net/http"

	"bikerental/models"

	"github.com/gin-gonic/gin"
)

// StartRental 租車
func (h *Handler) StartRental(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req models.StartRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid rental input: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "invalid input", "bike_id is required", "ERR_INVALID_INPUT")
		return
	}

	rental, err := h.Rentals.StartRental(c.Request.Context(), req.BikeID, actor.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "rental started", rental.ToResponse())
}

// ReturnBike 還車並結算費用
func (h *Handler) ReturnBike(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	rental, err := h.Rentals.EndRental(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "bike returned", rental.ToResponse())
}

// ListMyRentals 查詢自己的租借紀錄
func (h *Handler) ListMyRentals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	rentals, err := h.Catalog.ListRentals(c.Request.Context(), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := make([]models.RentalResponse, len(rentals))
	for i := range rentals {
		resp[i] = rentals[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "rentals fetched", resp)
}

func (h *Handler) GetRental(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	rental, err := h.Catalog.GetRental(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "rental fetched", rental.ToResponse())
}
