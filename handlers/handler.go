package handlers

import (
	"net/http"

	"bikerental/services"
	"bikerental/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware.
const (
	ActorIDKey = "actor_id"
	RoleKey    = "role"
)

// Handler groups the HTTP handlers and the services behind them.
type Handler struct {
	Rentals *services.RentalManager
	Catalog *services.CatalogService
}

func New(rentals *services.RentalManager, catalog *services.CatalogService) *Handler {
	return &Handler{Rentals: rentals, Catalog: catalog}
}

// currentActor 從 context 取出目前操作者
func currentActor(c *gin.Context) (services.Actor, bool) {
	actorID := c.GetString(ActorIDKey)
	if actorID == "" {
		ErrorResponse(c, http.StatusUnauthorized, "unauthorized", "actor not found in token", "ERR_NO_ACTOR")
		return services.Actor{}, false
	}
	return services.Actor{
		ID:         actorID,
		Privileged: c.GetString(RoleKey) == utils.RoleAdmin,
	}, true
}
