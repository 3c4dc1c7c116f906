package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const defaultHistoryLimit = 100

// Summary: строка истории заказов.
type Summary struct {
	ID         string
	Status     domain.OrderStatus
	TotalMinor int64
	CreatedAt  time.Time
}

// ItemProduct: товар позиции с первым изображением.
type ItemProduct struct {
	ID         int64
	Label      string
	PriceMinor int64
	Image      string
}

// DetailItem: позиция заказа с зафиксированной ценой.
type DetailItem struct {
	ID         string
	Quantity   int32
	PriceMinor int64
	Product    ItemProduct
}

// Detail: заказ со снимком адреса и позициями.
type Detail struct {
	ID                string
	Status            domain.OrderStatus
	TotalMinor        int64
	ShippingCostMinor int64
	ShippingDays      int32
	Shipping          domain.ShippingAddress
	CreatedAt         time.Time
	Items             []DetailItem
}

// Service отдаёт историю заказов покупателя.
type Service struct {
	orders  domain.OrderRepository
	catalog domain.CatalogRepository
	gateway domain.PaymentGateway
	limit   int
	logger  *log.Entry
}

// NewService создаёт сервис истории заказов. limit <= 0 означает 100 последних заказов.
func NewService(orders domain.OrderRepository, catalog domain.CatalogRepository, gateway domain.PaymentGateway, limit int, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Service{
		orders:  orders,
		catalog: catalog,
		gateway: gateway,
		limit:   limit,
		logger:  logger,
	}
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]Summary, error) {
	list, err := s.orders.ListByUser(ctx, userID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	out := make([]Summary, 0, len(list))
	for _, o := range list {
		out = append(out, Summary{
			ID:         o.ID,
			Status:     o.Status,
			TotalMinor: o.TotalMinor,
			CreatedAt:  o.CreatedAt,
		})
	}
	return out, nil
}

// GetOrder возвращает заказ пользователя. Чужой заказ неотличим от отсутствующего.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (Detail, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	if order.UserID != userID {
		return Detail{}, domain.ErrOrderNotFound
	}

	detail := Detail{
		ID:                order.ID,
		Status:            order.Status,
		TotalMinor:        order.TotalMinor,
		ShippingCostMinor: order.ShippingCostMinor,
		ShippingDays:      order.ShippingDays,
		Shipping:          order.Shipping,
		CreatedAt:         order.CreatedAt,
		Items:             make([]DetailItem, 0, len(order.Items)),
	}

	products := make(map[int64]ItemProduct, len(order.Items))
	for _, item := range order.Items {
		product, ok := products[item.ProductID]
		if !ok {
			product, err = s.itemProduct(ctx, item.ProductID)
			if err != nil {
				return Detail{}, err
			}
			products[item.ProductID] = product
		}
		detail.Items = append(detail.Items, DetailItem{
			ID:         item.ID,
			Quantity:   item.Quantity,
			PriceMinor: item.PriceMinor,
			Product:    product,
		})
	}
	return detail, nil
}

// OrderIDFromSession находит заказ пользователя по сессии оплаты для страницы возврата.
func (s *Service) OrderIDFromSession(ctx context.Context, userID int64, sessionID string) (string, error) {
	orderID, err := s.gateway.ResolveOrderID(ctx, sessionID)
	if err != nil {
		return "", err
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.UserID != userID {
		s.logger.WithFields(log.Fields{
			"user_id":  userID,
			"order_id": orderID,
		}).Warn("payment session belongs to another user")
		return "", domain.ErrOrderNotFound
	}
	return order.ID, nil
}

// itemProduct возвращает текущие данные товара. Снятый с продажи товар
// отдаётся только с id: цена позиции остаётся снимком из заказа.
func (s *Service) itemProduct(ctx context.Context, productID int64) (ItemProduct, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrProductNotFound) {
		return ItemProduct{ID: productID}, nil
	}
	if err != nil {
		return ItemProduct{}, fmt.Errorf("load product %d: %w", productID, err)
	}

	out := ItemProduct{ID: p.ID, Label: p.Label, PriceMinor: p.PriceMinor}
	if len(p.Images) > 0 {
		out.Image = p.Images[0].URL
	}
	return out, nil
}
