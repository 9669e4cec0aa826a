package handlers

import (
	"log"
	"net/http"

	"bikerental/models"

	"github.com/gin-gonic/gin"
)

// ListBikes 查詢車輛，可依 status / type 篩選
func (h *Handler) ListBikes(c *gin.Context) {
	filter := models.BikeFilter{
		Status: models.BikeStatus(c.Query("status")),
		Type:   c.Query("type"),
	}
	bikes, err := h.Catalog.ListBikes(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := make([]models.BikeResponse, len(bikes))
	for i := range bikes {
		resp[i] = bikes[i].ToResponse()
	}
	SuccessResponse(c, http.StatusOK, "bikes fetched", resp)
}

func (h *Handler) GetBike(c *gin.Context) {
	bike, err := h.Catalog.GetBike(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "bike fetched", bike.ToResponse())
}

// CreateBike 新增車輛（管理員）
func (h *Handler) CreateBike(c *gin.Context) {
	var req models.CreateBikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid bike input: %v", err)
		ErrorResponse(c, http.StatusBadRequest, "invalid input", err.Error(), "ERR_INVALID_INPUT")
		return
	}

	bike, err := h.Catalog.CreateBike(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "bike created", bike.ToResponse())
}

// Stats 後台統計
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Catalog.Stats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "stats fetched", stats)
}
