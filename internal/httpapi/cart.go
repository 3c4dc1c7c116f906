package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type cartMountRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1,max=100,dive,gt=0"`
}

type shippingQuery struct {
	Zipcode string `form:"zipcode" binding:"required,zipcode"`
}

type cartItemRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int32 `json:"quantity" binding:"required,gt=0,lte=1000"`
}

type finishRequest struct {
	Cart      []cartItemRequest `json:"cart" binding:"required,min=1,max=100,dive"`
	AddressID int64             `json:"addressId" binding:"required,gt=0"`
}

func (a *api) cartMount(c *gin.Context) {
	var req cartMountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "Invalid array of ids")
		return
	}

	products, err := a.checkout.PreviewCart(c.Request.Context(), req.IDs)
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]productSummary, 0, len(products))
	for _, p := range products {
		out = append(out, productSummary{
			ID:    p.ID,
			Label: p.Label,
			Price: domain.DecimalFromMinor(p.PriceMinor),
			Image: a.optionalMedia("products", p.Image),
		})
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "products": out})
}

func (a *api) cartShipping(c *gin.Context) {
	var q shippingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalid(c, "Invalid ZIP Code")
		return
	}

	quote, err := a.checkout.EstimateShipping(q.Zipcode)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":   nil,
		"zipcode": quote.Zipcode,
		"cost":    domain.DecimalFromMinor(quote.CostMinor),
		"days":    quote.Days,
	})
}

func (a *api) cartFinish(c *gin.Context, id Identity) {
	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "Invalid cart")
		return
	}

	cart := make([]domain.CartItem, 0, len(req.Cart))
	for _, item := range req.Cart {
		cart = append(cart, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := a.checkout.AssembleOrder(c.Request.Context(), id.UserID, cart, req.AddressID)
	if errors.Is(err, domain.ErrPaymentLink) {
		status, message := statusFor(err)
		c.AbortWithStatusJSON(status, gin.H{"error": message, "orderId": result.OrderID})
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"error": nil, "url": result.URL, "orderId": result.OrderID})
}
