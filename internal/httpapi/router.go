package httpapi

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/webhook"
)

// Deps: зависимости HTTP API.
type Deps struct {
	Catalog  domain.CatalogRepository
	Accounts *account.Service
	Checkout *checkout.Service
	Orders   *orders.Service
	Webhooks *webhook.Handler
	Metrics  *metrics.HTTPMetrics
	Logger   *log.Entry
	// BaseURL: публичный адрес сервиса для абсолютных ссылок на медиа.
	BaseURL string
}

type api struct {
	catalog  domain.CatalogRepository
	accounts *account.Service
	checkout *checkout.Service
	orders   *orders.Service
	webhooks *webhook.Handler
	logger   *log.Entry
	baseURL  string
}

var registerValidators sync.Once

// registerZipcode подключает тег binding:"zipcode" с проверкой формата индекса.
func registerZipcode(v *validator.Validate) error {
	return v.RegisterValidation("zipcode", func(fl validator.FieldLevel) bool {
		return checkout.ValidZipcode(strings.TrimSpace(fl.Field().String()))
	})
}

// NewRouter собирает gin.Engine со всеми маршрутами магазина.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := registerZipcode(v); err != nil {
				logger.WithError(err).Fatal("register zipcode validation")
			}
		}
	})

	a := &api{
		catalog:  deps.Catalog,
		accounts: deps.Accounts,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		webhooks: deps.Webhooks,
		logger:   logger,
		baseURL:  strings.TrimRight(deps.BaseURL, "/"),
	}

	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger), observe(deps.Metrics))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, errorBody("Not found"))
	})

	r.GET("/ping", a.ping)
	r.GET("/banners", a.banners)
	r.GET("/products", a.listProducts)
	r.GET("/product/:id", a.getProduct)
	r.GET("/product/:id/related", a.relatedProducts)
	r.GET("/category/:slug/metadata", a.categoryMetadata)

	r.POST("/cart/mount", a.cartMount)
	r.GET("/cart/shipping", a.cartShipping)
	r.POST("/cart/finish", a.authed(a.cartFinish))

	r.POST("/user/register", a.register)
	r.POST("/user/login", a.login)
	r.GET("/user/addresses", a.authed(a.listAddresses))
	r.POST("/user/addresses", a.authed(a.addAddress))
	r.DELETE("/user/addresses/:id", a.authed(a.deleteAddress))

	r.GET("/orders", a.authed(a.listOrders))
	r.GET("/orders/session", a.authed(a.orderFromSession))
	r.GET("/orders/:id", a.authed(a.getOrder))

	r.POST("/webhook/stripe", a.stripeWebhook)

	return r
}

// mediaURL строит ссылку на файл из public/media.
func (a *api) mediaURL(kind, file string) string {
	if file == "" {
		return ""
	}
	path := "media/" + kind + "/" + file
	if a.baseURL == "" {
		return path
	}
	return a.baseURL + "/" + path
}
