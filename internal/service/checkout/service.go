package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const defaultLookupConcurrency = 8

// Причины неудачи для метрики shop_checkout_failed_total.
const (
	failureInvalidCart    = "invalid_cart"
	failureInvalidAddress = "invalid_address"
	failureAddressLookup  = "address_lookup"
	failurePricing        = "pricing"
	failurePersistence    = "persistence"
	failurePaymentLink    = "payment_link"
)

// Result: итог оформления. OrderID заполнен, даже если ссылку получить не удалось.
type Result struct {
	OrderID string
	URL     string
}

// CartProduct: позиция предпросмотра корзины.
type CartProduct struct {
	ID         int64
	Label      string
	PriceMinor int64
	// Image: относительный путь первого изображения, пустой если изображений нет.
	Image string
}

// Service превращает корзину в заказ и ссылку на оплату.
type Service struct {
	catalog domain.CatalogRepository
	users   domain.UserRepository
	orders  domain.OrderRepository
	gateway domain.PaymentGateway
	outbox  domain.OutboxRepository

	shipping          FlatRate
	lookupConcurrency int
	newID             func() string

	metrics *metrics.CheckoutMetrics
	logger  *log.Entry
}

// NewService создаёт сервис оформления заказа.
func NewService(
	catalog domain.CatalogRepository,
	users domain.UserRepository,
	orders domain.OrderRepository,
	gateway domain.PaymentGateway,
	logger *log.Entry,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	s := &Service{
		catalog:           catalog,
		users:             users,
		orders:            orders,
		gateway:           gateway,
		shipping:          DefaultFlatRate(),
		lookupConcurrency: defaultLookupConcurrency,
		newID:             uuid.NewString,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EstimateShipping возвращает оценку доставки по индексу.
func (s *Service) EstimateShipping(zipcode string) (ShippingQuote, error) {
	return s.shipping.Quote(zipcode)
}

// PreviewCart возвращает актуальные данные товаров корзины. Неизвестные id пропускаются.
func (s *Service) PreviewCart(ctx context.Context, ids []int64) ([]CartProduct, error) {
	cart := make([]domain.CartItem, 0, len(ids))
	for _, id := range ids {
		cart = append(cart, domain.CartItem{ProductID: id, Quantity: 1})
	}

	products, err := s.lookupProducts(ctx, cart)
	if err != nil {
		return nil, err
	}

	out := make([]CartProduct, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		item := CartProduct{ID: p.ID, Label: p.Label, PriceMinor: p.PriceMinor}
		if len(p.Images) > 0 {
			item.Image = p.Images[0].URL
		}
		out = append(out, item)
	}
	return out, nil
}

// AssembleOrder проверяет адрес, считает корзину, сохраняет заказ в статусе pending
// и запрашивает ссылку на оплату. Если ссылку получить не удалось, заказ остаётся
// pending, а ошибка оборачивает domain.ErrPaymentLink.
func (s *Service) AssembleOrder(ctx context.Context, userID int64, cart []domain.CartItem, addressID int64) (Result, error) {
	start := time.Now()
	s.metrics.RecordStarted()
	defer func() {
		s.metrics.RecordFinished(time.Since(start))
	}()

	logger := s.logger.WithFields(log.Fields{
		"user_id":    userID,
		"address_id": addressID,
	})

	if err := validateCart(cart); err != nil {
		s.metrics.RecordFailed(failureInvalidCart)
		return Result{}, err
	}

	stepStart := time.Now()
	address, err := s.users.GetAddress(ctx, userID, addressID)
	s.metrics.RecordStepDuration(metrics.StepAddress, time.Since(stepStart))
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) {
			s.metrics.RecordFailed(failureInvalidAddress)
			logger.Warn("checkout rejected: address does not belong to user")
			return Result{}, domain.ErrInvalidAddress
		}
		s.metrics.RecordFailed(failureAddressLookup)
		return Result{}, fmt.Errorf("load address: %w", err)
	}

	stepStart = time.Now()
	priced, dropped, err := s.priceCart(ctx, cart)
	s.metrics.RecordStepDuration(metrics.StepPricing, time.Since(stepStart))
	if err != nil {
		s.metrics.RecordFailed(failurePricing)
		logger.WithError(err).Error("cart pricing failed")
		return Result{}, err
	}
	if len(dropped) > 0 {
		s.metrics.RecordDroppedItems(len(dropped))
		logger.WithField("product_ids", dropped).Warn("unknown products dropped from cart")
	}

	order := s.buildOrder(userID, address, priced)
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.metrics.RecordFailed(failureInvalidCart)
		return Result{}, errors.Join(append([]error{domain.ErrInvalidCart}, errs...)...)
	}

	stepStart = time.Now()
	err = s.orders.Create(ctx, order)
	s.metrics.RecordStepDuration(metrics.StepPersist, time.Since(stepStart))
	if err != nil {
		s.metrics.RecordFailed(failurePersistence)
		logger.WithError(err).Error("order persistence failed")
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return Result{}, err
	}
	logger = logger.WithField("order_id", order.ID)
	logger.WithFields(log.Fields{
		"items":       len(order.Items),
		"total_minor": order.TotalMinor,
	}).Info("order created")

	s.emitOrderCreated(ctx, order, logger)

	stepStart = time.Now()
	url, err := s.gateway.CreateCheckoutLink(ctx, priced, order.ShippingCostMinor, order.ID)
	s.metrics.RecordStepDuration(metrics.StepPayment, time.Since(stepStart))
	if err != nil || url == "" {
		s.metrics.RecordFailed(failurePaymentLink)
		s.metrics.RecordPaymentLinkFailure()
		logger.WithError(err).Warn("payment link not created, order left pending")
		if err == nil || !errors.Is(err, domain.ErrPaymentLink) {
			err = paymentLinkError(err)
		}
		return Result{OrderID: order.ID}, err
	}

	s.metrics.RecordCompleted()
	return Result{OrderID: order.ID, URL: url}, nil
}

func paymentLinkError(cause error) error {
	if cause == nil {
		return domain.ErrPaymentLink
	}
	return fmt.Errorf("%w: %v", domain.ErrPaymentLink, cause)
}

func validateCart(cart []domain.CartItem) error {
	if len(cart) == 0 {
		return domain.ErrInvalidCart
	}
	for _, item := range cart {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return domain.ErrInvalidCart
		}
	}
	return nil
}

// priceCart разрешает товары корзины и возвращает позиции с ценами в исходном порядке.
// Товары, которых нет в каталоге, пропускаются; их id возвращаются вторым значением.
func (s *Service) priceCart(ctx context.Context, cart []domain.CartItem) ([]domain.PricedItem, []int64, error) {
	products, err := s.lookupProducts(ctx, cart)
	if err != nil {
		return nil, nil, err
	}

	priced := make([]domain.PricedItem, 0, len(cart))
	var dropped []int64
	for i, item := range cart {
		p := products[i]
		if p == nil {
			dropped = append(dropped, item.ProductID)
			continue
		}
		priced = append(priced, domain.PricedItem{
			ProductID:  p.ID,
			Label:      p.Label,
			PriceMinor: p.PriceMinor,
			Quantity:   item.Quantity,
		})
	}
	return priced, dropped, nil
}

// lookupProducts запрашивает товары параллельно; результат выровнен по индексам корзины,
// nil означает, что товар не найден. Любая другая ошибка хранилища прерывает расчёт.
func (s *Service) lookupProducts(ctx context.Context, cart []domain.CartItem) ([]*domain.Product, error) {
	products := make([]*domain.Product, len(cart))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookupConcurrency)
	for i, item := range cart {
		i, item := i, item
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, item.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lookup product %d: %w", item.ProductID, err)
			}
			products[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Service) buildOrder(userID int64, address domain.Address, priced []domain.PricedItem) domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:                s.newID(),
		UserID:            userID,
		Status:            domain.OrderStatusPending,
		ShippingCostMinor: s.shipping.CostMinor,
		ShippingDays:      s.shipping.Days,
		Shipping:          address.Snapshot(),
		Items:             make([]domain.OrderItem, 0, len(priced)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, item := range priced {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         s.newID(),
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceMinor: item.PriceMinor,
		})
	}
	order.TotalMinor = order.SubtotalMinor() + order.ShippingCostMinor
	return order
}

// emitOrderCreated пишет событие в outbox. Ошибка записи не отменяет оформление.
func (s *Service) emitOrderCreated(ctx context.Context, order domain.Order, logger *log.Entry) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"status":      string(order.Status),
		"total_minor": order.TotalMinor,
		"items_count": len(order.Items),
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.WithError(err).Error("marshal order created event failed")
		return
	}

	_, err = s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.OutboxEventOrderCreated,
		Payload:       payload,
	})
	if err != nil {
		logger.WithError(err).Error("enqueue order created event failed")
	}
}
