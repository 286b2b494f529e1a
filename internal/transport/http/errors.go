package httptransport

import (
	"net/http"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/pkg/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status and a client-safe body. Internal errors
// are logged and replaced by a generic message.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), nil).Error("request_failed", zap.Error(err))
		c.JSON(status, gin.H{"error": errorBody{Code: "internal", Message: "internal server error"}})
		return
	}
	c.JSON(status, gin.H{"error": errorBody{Code: domain.CodeOf(err), Message: err.Error()}})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: msg}})
}
