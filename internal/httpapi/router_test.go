package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
	"github.com/vladislavdragonenkov/shop/internal/service/webhook"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

const testWebhookSecret = "whsec_test"

type testServer struct {
	router  *gin.Engine
	orders  domain.OrderRepository
	users   domain.UserRepository
	gateway *payment.MockGateway
}

func loggerForTests() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := loggerForTests()
	catalog := memory.NewDemoCatalogRepository()
	users := memory.NewUserRepository()
	orderRepo := memory.NewOrderRepository()
	gateway := payment.NewMockGateway("http://pay.local", testWebhookSecret)

	router := NewRouter(Deps{
		Catalog:  catalog,
		Accounts: account.NewService(users, bcrypt.MinCost, logger),
		Checkout: checkout.NewService(catalog, users, orderRepo, gateway, logger),
		Orders:   orders.NewService(orderRepo, catalog, gateway, 0, logger),
		Webhooks: webhook.NewHandler(gateway, orderRepo, logger,
			webhook.WithDeliveries(memory.NewIdempotencyRepository())),
		Metrics: metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:  logger,
		BaseURL: "http://shop.local/",
	})
	return testServer{router: router, orders: orderRepo, users: users, gateway: gateway}
}

func (s testServer) do(t *testing.T, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

// signIn регистрирует покупателя, добавляет адрес и возвращает токен и id адреса.
func (s testServer) signIn(t *testing.T, email string) (string, int64) {
	t.Helper()

	rec, _ := s.do(t, http.MethodPost, "/user/register", gin.H{
		"name": "Ann", "email": email, "password": "secret",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/user/login", gin.H{"email": email, "password": "secret"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	rec, body = s.do(t, http.MethodPost, "/user/addresses", gin.H{
		"zipcode": "01001-000",
		"street":  "Main St",
		"number":  "10",
		"city":    "Springfield",
		"state":   "SP",
		"country": "US",
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	address := body["address"].(map[string]any)
	return token, int64(address["id"].(float64))
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/ping", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["pong"])
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/nope", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Not found", body["error"])
}

func TestBannersUseAbsoluteMediaURLs(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/banners", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	banners := body["banners"].([]any)
	require.Len(t, banners, 2)
	first := banners[0].(map[string]any)
	require.Equal(t, "http://shop.local/media/banners/banner_promo_1.jpg", first["img"])
}

func TestListProductsByCategoryAndMetadata(t *testing.T) {
	s := newTestServer(t)

	query := url.Values{"category": {"shirts"}, "metadata": {`{"minimalist":"beach"}`}}
	rec, body := s.do(t, http.MethodGet, "/products?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	products := body["products"].([]any)
	require.Len(t, products, 1)
	p := products[0].(map[string]any)
	require.Equal(t, float64(2), p["id"])
	require.Equal(t, 94.5, p["price"])
	require.Equal(t, "http://shop.local/media/products/product_2_1.jpg", p["image"])
}

func TestListProductsRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/products?orderBy=random", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := s.do(t, http.MethodGet, "/products?category=missing", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Category not found", body["error"])
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/product/1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	product := body["product"].(map[string]any)
	require.Equal(t, "Shirt 1", product["label"])
	require.Equal(t, 89.9, product["price"])
	require.Len(t, product["images"], 2)
	require.Equal(t, "shirts", body["category"].(map[string]any)["slug"])

	rec, _ = s.do(t, http.MethodGet, "/product/99", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/product/abc", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelatedProductsExcludeSelf(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/product/1/related?limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, raw := range body["products"].([]any) {
		require.NotEqual(t, float64(1), raw.(map[string]any)["id"])
	}
}

func TestCategoryMetadata(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/category/shirts/metadata", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	metadata := body["metadata"].([]any)
	require.Len(t, metadata, 1)
	require.Len(t, metadata[0].(map[string]any)["values"], 4)
}

func TestCartMount(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/cart/mount", gin.H{"ids": []int64{1, 99}}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["products"], 1)

	rec, body = s.do(t, http.MethodPost, "/cart/mount", gin.H{"ids": []int64{}}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid array of ids", body["error"])
}

func TestCartShipping(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/cart/shipping?zipcode=01001-000", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, body["error"])
	require.Equal(t, "01001-000", body["zipcode"])
	require.Equal(t, float64(10), body["cost"])
	require.Equal(t, float64(3), body["days"])

	rec, body = s.do(t, http.MethodGet, "/cart/shipping?zipcode=!!", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid ZIP Code", body["error"])
}

func TestCartFinishRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart": []gin.H{{"productId": 1, "quantity": 1}}, "addressId": 1,
	}, "bogus")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Access denied", body["error"])
}

func TestCheckoutThroughWebhookToOrderHistory(t *testing.T) {
	s := newTestServer(t)
	token, addressID := s.signIn(t, "ann@example.com")

	rec, body := s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart":      []gin.H{{"productId": 1, "quantity": 2}, {"productId": 99, "quantity": 1}},
		"addressId": addressID,
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Nil(t, body["error"])
	orderID := body["orderId"].(string)
	require.Equal(t, "http://pay.local/mock-checkout/"+payment.MockSessionID(orderID), body["url"])

	rec, body = s.do(t, http.MethodGet, "/orders/"+orderID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	order := body["order"].(map[string]any)
	require.Equal(t, "pending", order["status"])
	require.Equal(t, 189.8, order["total"])
	require.Len(t, order["orderItems"], 1)

	rec, body = s.do(t, http.MethodGet, "/orders/session?session_id="+payment.MockSessionID(orderID), nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orderID, body["orderId"])

	event, err := json.Marshal(payment.MockEvent{
		ID:            "evt_1",
		Type:          domain.GatewayEventCheckoutCompleted,
		SessionID:     payment.MockSessionID(orderID),
		OrderID:       orderID,
		PaymentStatus: domain.GatewayPaymentStatusPaid,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(event))
	req.Header.Set("Stripe-Signature", testWebhookSecret)
	webhookRec := httptest.NewRecorder()
	s.router.ServeHTTP(webhookRec, req)
	require.Equal(t, http.StatusOK, webhookRec.Code, webhookRec.Body.String())

	stored, err := s.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, stored.Status)

	rec, body = s.do(t, http.MethodGet, "/orders", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["orders"].([]any)
	require.Len(t, list, 1)
	require.Equal(t, "paid", list[0].(map[string]any)["status"])
}

func TestOrderOfAnotherUserIsHidden(t *testing.T) {
	s := newTestServer(t)
	owner, addressID := s.signIn(t, "owner@example.com")
	stranger, _ := s.signIn(t, "stranger@example.com")

	rec, body := s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart": []gin.H{{"productId": 3, "quantity": 1}}, "addressId": addressID,
	}, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := body["orderId"].(string)

	rec, _ = s.do(t, http.MethodGet, "/orders/"+orderID, nil, stranger)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart": []gin.H{{"productId": 3, "quantity": 1}}, "addressId": addressID,
	}, stranger)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid address", body["error"])
}

func TestCartFinishPaymentLinkFailureReturnsOrderID(t *testing.T) {
	s := newTestServer(t)
	token, addressID := s.signIn(t, "ann@example.com")
	s.gateway.LinkErr = errors.New("stripe down")

	rec, body := s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart": []gin.H{{"productId": 1, "quantity": 1}}, "addressId": addressID,
	}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Payment URL could not be created", body["error"])

	orderID, _ := body["orderId"].(string)
	require.NotEmpty(t, orderID)
	stored, err := s.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestCartFinishInvalidBody(t *testing.T) {
	s := newTestServer(t)
	token, addressID := s.signIn(t, "ann@example.com")

	rec, body := s.do(t, http.MethodPost, "/cart/finish", gin.H{
		"cart": []gin.H{{"productId": 1, "quantity": 0}}, "addressId": addressID,
	}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid cart", body["error"])
}

func TestRegisterDuplicateAndBadLogin(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t, "ann@example.com")

	rec, body := s.do(t, http.MethodPost, "/user/register", gin.H{
		"name": "Ann", "email": "ANN@example.com", "password": "secret",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Email already registered", body["error"])

	rec, _ = s.do(t, http.MethodPost, "/user/login", gin.H{"email": "ann@example.com", "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	s := newTestServer(t)

	// проходит binding max=72 по символам, но занимает 144 байта
	rec, body := s.do(t, http.MethodPost, "/user/register", gin.H{
		"name": "Ann", "email": "ann@example.com", "password": strings.Repeat("я", 72),
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Password must be at most 72 bytes", body["error"])

	_, err := s.users.GetUserByEmail(context.Background(), "ann@example.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStatusForDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "delivery in progress", err: fmt.Errorf("claim: %w", domain.ErrDeliveryInProgress), want: http.StatusConflict},
		{name: "password too long", err: domain.ErrPasswordTooLong, want: http.StatusBadRequest},
		{name: "invalid signature", err: domain.ErrInvalidSignature, want: http.StatusBadRequest},
		{name: "order not found", err: domain.ErrOrderNotFound, want: http.StatusNotFound},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, message := statusFor(tc.err)
			require.Equal(t, tc.want, got)
			require.NotEmpty(t, message)
		})
	}
}

func TestRegisterZipcodeValidation(t *testing.T) {
	v := validator.New()
	require.NoError(t, registerZipcode(v))

	require.NoError(t, v.Var("01001-000", "zipcode"))
	require.Error(t, v.Var("12", "zipcode"))
	require.Error(t, v.Var("0100#000", "zipcode"))
}

func TestAddressesLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, addressID := s.signIn(t, "ann@example.com")

	rec, body := s.do(t, http.MethodGet, "/user/addresses", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["addresses"], 1)

	rec, _ = s.do(t, http.MethodPost, "/user/addresses", gin.H{"zipcode": "?"}, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/user/addresses/"+strconv.FormatInt(addressID, 10), nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/user/addresses", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, body["addresses"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "forged")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
}

func TestRecoveryAnswersInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(recovery(loggerForTests()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Something went wrong."}`, rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer  abc "))
	require.Equal(t, "abc", bearerToken("abc"))
	require.Empty(t, bearerToken(""))
}
