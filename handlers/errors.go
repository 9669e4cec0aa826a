package handlers

import (
	"log"
	"net/http"

	"bikerental/services"

	"github.com/gin-gonic/gin"
)

// writeServiceError 依錯誤分類回應對應的 HTTP 狀態碼與使用者訊息
func writeServiceError(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindNotFound:
		ErrorResponse(c, http.StatusNotFound, "resource not found", err.Error(), "ERR_NOT_FOUND")
	case services.KindConflict:
		ErrorResponse(c, http.StatusConflict, conflictMessage(services.ReasonOf(err)), err.Error(), "ERR_CONFLICT")
	case services.KindUnauthorized:
		ErrorResponse(c, http.StatusForbidden, "not allowed", err.Error(), "ERR_FORBIDDEN")
	case services.KindInvalid:
		ErrorResponse(c, http.StatusBadRequest, "invalid input", err.Error(), "ERR_INVALID_INPUT")
	case services.KindStorageFailure:
		log.Printf("Storage failure on %s %s: %v", c.Request.Method, c.FullPath(), err)
		ErrorResponse(c, http.StatusServiceUnavailable, "service temporarily unavailable, refresh and try again", "storage failure", "ERR_STORAGE")
	default:
		log.Printf("Unexpected error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		ErrorResponse(c, http.StatusInternalServerError, "internal error", "internal error", "ERR_INTERNAL")
	}
}

func conflictMessage(reason string) string {
	switch reason {
	case services.ReasonBikeUnavailable:
		return "bike no longer available"
	case services.ReasonAlreadyReturned:
		return "already returned"
	default:
		return "request conflicts with current state"
	}
}
