package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestMockGateway_LinkAndResolve(t *testing.T) {
	ctx := context.Background()
	mock := NewMockGateway("http://localhost:8080/", "whsec")

	items := []domain.PricedItem{{ProductID: 1, Label: "Shirt 1", PriceMinor: 8990, Quantity: 2}}
	url, err := mock.CreateCheckoutLink(ctx, items, 1000, "order-1")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/mock-checkout/cs_mock_order-1", url)
	require.Equal(t, 1, mock.CreateCalls)
	require.Equal(t, int64(1000), mock.LastShipping)
	require.Equal(t, items, mock.LastItems)

	orderID, err := mock.ResolveOrderID(ctx, MockSessionID("order-1"))
	require.NoError(t, err)
	require.Equal(t, "order-1", orderID)

	_, err = mock.ResolveOrderID(ctx, "cs_unknown")
	require.ErrorIs(t, err, domain.ErrSessionUnresolved)
}

func TestMockGateway_LinkFailures(t *testing.T) {
	ctx := context.Background()
	mock := NewMockGateway("", "")

	mock.LinkErr = errors.New("gateway down")
	_, err := mock.CreateCheckoutLink(ctx, nil, 0, "order-1")
	require.Error(t, err)

	mock.LinkErr = nil
	mock.EmptyURL = true
	_, err = mock.CreateCheckoutLink(ctx, nil, 0, "order-1")
	require.ErrorIs(t, err, domain.ErrPaymentLink)
	require.Equal(t, 2, mock.CreateCalls)
}

func TestMockGateway_VerifyWebhook(t *testing.T) {
	mock := NewMockGateway("", "whsec")
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","sessionId":"cs_1","orderId":"o-1","paymentStatus":"paid"}`)

	ev, err := mock.VerifyWebhook(body, "whsec")
	require.NoError(t, err)
	require.Equal(t, domain.GatewayEvent{
		ID: "evt_1", Type: domain.GatewayEventCheckoutCompleted, SessionID: "cs_1", OrderID: "o-1", PaymentStatus: "paid",
	}, ev)

	_, err = mock.VerifyWebhook(body, "wrong")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = mock.VerifyWebhook([]byte("not json"), "whsec")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = NewMockGateway("", "").VerifyWebhook(body, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}
