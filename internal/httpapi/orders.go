package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderSummaryBody struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderItemProductBody struct {
	ID    int64   `json:"id"`
	Label string  `json:"label"`
	Price float64 `json:"price"`
	Image *string `json:"image"`
}

type orderItemBody struct {
	ID       string               `json:"id"`
	Quantity int32                `json:"quantity"`
	Price    float64              `json:"price"`
	Product  orderItemProductBody `json:"product"`
}

type orderDetailBody struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	Total              float64         `json:"total"`
	ShippingCost       float64         `json:"shippingCost"`
	ShippingDays       int32           `json:"shippingDays"`
	ShippingZipcode    string          `json:"shippingZipcode"`
	ShippingStreet     string          `json:"shippingStreet"`
	ShippingNumber     string          `json:"shippingNumber"`
	ShippingCity       string          `json:"shippingCity"`
	ShippingState      string          `json:"shippingState"`
	ShippingCountry    string          `json:"shippingCountry"`
	ShippingComplement *string         `json:"shippingComplement"`
	CreatedAt          time.Time       `json:"createdAt"`
	OrderItems         []orderItemBody `json:"orderItems"`
}

type sessionQuery struct {
	SessionID string `form:"session_id" binding:"required,max=255"`
}

func (a *api) listOrders(c *gin.Context, id Identity) {
	list, err := a.orders.ListOrders(c.Request.Context(), id.UserID)
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]orderSummaryBody, 0, len(list))
	for _, o := range list {
		out = append(out, orderSummaryBody{
			ID:        o.ID,
			Status:    string(o.Status),
			Total:     domain.DecimalFromMinor(o.TotalMinor),
			CreatedAt: o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "orders": out})
}

func (a *api) getOrder(c *gin.Context, id Identity) {
	orderID := c.Param("id")
	if _, err := uuid.Parse(orderID); err != nil {
		invalid(c, "Invalid id")
		return
	}

	detail, err := a.orders.GetOrder(c.Request.Context(), id.UserID, orderID)
	if err != nil {
		a.fail(c, err)
		return
	}

	body := orderDetailBody{
		ID:              detail.ID,
		Status:          string(detail.Status),
		Total:           domain.DecimalFromMinor(detail.TotalMinor),
		ShippingCost:    domain.DecimalFromMinor(detail.ShippingCostMinor),
		ShippingDays:    detail.ShippingDays,
		ShippingZipcode: detail.Shipping.Zipcode,
		ShippingStreet:  detail.Shipping.Street,
		ShippingNumber:  detail.Shipping.Number,
		ShippingCity:    detail.Shipping.City,
		ShippingState:   detail.Shipping.State,
		ShippingCountry: detail.Shipping.Country,
		CreatedAt:       detail.CreatedAt,
		OrderItems:      make([]orderItemBody, 0, len(detail.Items)),
	}
	if detail.Shipping.Complement != "" {
		complement := detail.Shipping.Complement
		body.ShippingComplement = &complement
	}
	for _, item := range detail.Items {
		body.OrderItems = append(body.OrderItems, orderItemBody{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    domain.DecimalFromMinor(item.PriceMinor),
			Product: orderItemProductBody{
				ID:    item.Product.ID,
				Label: item.Product.Label,
				Price: domain.DecimalFromMinor(item.Product.PriceMinor),
				Image: a.optionalMedia("products", item.Product.Image),
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "order": body})
}

func (a *api) orderFromSession(c *gin.Context, id Identity) {
	var q sessionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalid(c, "Invalid session")
		return
	}

	orderID, err := a.orders.OrderIDFromSession(c.Request.Context(), id.UserID, q.SessionID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "orderId": orderID})
}
