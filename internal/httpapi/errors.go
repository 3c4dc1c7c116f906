package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	msgInternal         = "Something went wrong."
	msgAccessDenied     = "Access denied"
	msgInvalidSignature = "Invalid signature"
)

func errorBody(message string) gin.H {
	return gin.H{"error": message}
}

// statusFor сопоставляет доменную ошибку HTTP-коду и безопасному сообщению.
// Неизвестные ошибки превращаются в 500 без подробностей.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, msgAccessDenied
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, msgInvalidSignature
	case errors.Is(err, domain.ErrInvalidCart):
		return http.StatusBadRequest, "Invalid cart"
	case errors.Is(err, domain.ErrInvalidZipcode):
		return http.StatusBadRequest, "Invalid ZIP Code"
	case errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusBadRequest, "Invalid address"
	case errors.Is(err, domain.ErrPasswordTooLong):
		return http.StatusBadRequest, "Password must be at most 72 bytes"
	case errors.Is(err, domain.ErrDeliveryInProgress):
		return http.StatusConflict, "Delivery in progress"
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusBadRequest, "Email already registered"
	case errors.Is(err, domain.ErrPaymentLink):
		return http.StatusBadRequest, "Payment URL could not be created"
	case errors.Is(err, domain.ErrSessionUnresolved), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, domain.ErrCategoryNotFound):
		return http.StatusNotFound, "Category not found"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, domain.ErrAddressNotFound):
		return http.StatusNotFound, "Address not found"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// fail пишет ошибку в конверт {"error": ...}; 5xx логируются с причиной.
func (a *api) fail(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, errorBody(message))
}

// invalid отвечает 400 для запросов, не прошедших валидацию.
func invalid(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(message))
}
