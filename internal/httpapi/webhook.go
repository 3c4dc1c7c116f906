package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// maxWebhookBody: предел тела уведомления; Stripe шлёт события заметно меньше.
	maxWebhookBody  = 1 << 20
	signatureHeader = "Stripe-Signature"
)

// stripeWebhook передаёт обработчику тело запроса байт-в-байт, без разбора JSON.
func (a *api) stripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		invalid(c, msgInvalidSignature)
		return
	}

	outcome, err := a.webhooks.HandleGatewayEvent(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if errors.Is(err, domain.ErrInvalidSignature) {
		invalid(c, msgInvalidSignature)
		return
	}
	if err != nil {
		// 409 и 5xx заставляют провайдера повторить доставку
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "received": true, "outcome": outcome})
}
