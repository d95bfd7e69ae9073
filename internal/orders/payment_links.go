package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/mpesa"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	paymentLinkTTL      = 24 * time.Hour
	paymentLinkAttempts = 3

	MessageLinkUnavailable = "This payment link is no longer available"
)

// CreatePaymentLink stores an order without buyer details that the buyer
// completes later through the public link.
func (s *Service) CreatePaymentLink(ctx context.Context, actor Actor, request models.PaymentLinkRequest) (entities.Order, error) {
	v := validation.New(orderDomain)

	v.Check("warehouse", validation.Char{MaxLength: 20}, request.Warehouse)

	if request.DeliveryFee != "" {
		v.Check("delivery_fee", priceKind, request.DeliveryFee)
	}

	if len(request.Positions) == 0 {
		v.Add("positions", validation.CodeRequiredField, "positions is a required field")
	}

	positions := checkPositions(v, request.Positions)

	if err := v.Err(); err != nil {
		return entities.Order{}, err
	}

	shop, err := s.storage.GetShop(ctx, actor.ShopID)
	if err != nil {
		return entities.Order{}, fmt.Errorf("error get shop: %w", err)
	}

	warehouse, err := s.storage.GetWarehouseByCode(ctx, actor.ShopID, request.Warehouse)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, validation.New(orderDomain).
				Add("warehouse", validation.CodeInvalidValue, "warehouse is invalid").
				Err()
		}

		return entities.Order{}, fmt.Errorf("error get warehouse: %w", err)
	}

	deliveryFee := shop.DefaultDeliveryFee
	if request.DeliveryFee != "" {
		deliveryFee = decimal.RequireFromString(strings.TrimSpace(request.DeliveryFee))
	}

	for attempt := 1; ; attempt++ {
		linkID := s.newLinkID()

		order := entities.Order{
			Status:        entities.OrderStatusNew,
			ShopID:        actor.ShopID,
			WarehouseID:   &warehouse.ID,
			DeliveryFee:   deliveryFee,
			PaymentMethod: entities.PaymentMethodCash,
			IsPaymentLink: true,
			PaymentLinkID: &linkID,
			Comment:       request.Comment,
			Positions:     positions,
		}

		err := s.storage.CreateOrder(ctx, &order)
		if err == nil {
			return order, nil
		}

		if !errors.Is(err, storage.ErrConflict) || attempt == paymentLinkAttempts {
			return entities.Order{}, fmt.Errorf("error create payment link: %w", err)
		}

		zap.L().Info("payment link id collision, retrying", zap.String("link_id", linkID))
	}
}

// GetPaymentLink returns the order behind a link that is still valid.
func (s *Service) GetPaymentLink(ctx context.Context, linkID string) (entities.Order, error) {
	order, err := s.storage.GetOrderByPaymentLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, ErrOrderNotFound
		}

		return entities.Order{}, fmt.Errorf("error get payment link: %w", err)
	}

	if !order.IsPaymentLink || s.now().Sub(order.CreatedAt) > paymentLinkTTL {
		return entities.Order{}, ErrPaymentLinkExpired
	}

	return order, nil
}

// CheckoutPaymentLink fills in the buyer details. With pay set on an MPesa
// order of a shop that takes prepayment, the payment is submitted at once.
func (s *Service) CheckoutPaymentLink(ctx context.Context, linkID string, request models.PaymentLinkCheckoutRequest) (entities.Order, error) {
	order, err := s.GetPaymentLink(ctx, linkID)
	if err != nil {
		return entities.Order{}, err
	}

	v := validation.New(orderDomain)

	v.Check("buyer_name", validation.Char{MaxLength: 128}, request.BuyerName)
	v.Check("buyer_phone", validation.Char{MaxLength: 20}, request.BuyerPhone)
	v.Check("buyer_email", validation.Email{Char: validation.Char{AllowBlank: true, MaxLength: 254}}, request.BuyerEmail)
	v.Check("shipping_address.address", validation.Char{MaxLength: 255}, request.ShippingAddress.Address)

	checkLocation(v, "shipping_address", request.ShippingAddress)

	if !request.PaymentMethod.Valid() {
		v.Add("payment_method", validation.CodeInvalidValue, "payment_method is invalid")
	}

	if err := v.Err(); err != nil {
		return entities.Order{}, err
	}

	shop, err := s.storage.GetShop(ctx, order.ShopID)
	if err != nil {
		return entities.Order{}, fmt.Errorf("error get shop: %w", err)
	}

	order, result, err := s.checkoutLocked(ctx, order.ID, request, request.Pay && shop.AllowPrepayment)
	if err != nil {
		return entities.Order{}, err
	}

	s.simulate(ctx, result)

	if result.Success && s.gateway.TestMode() {
		order, err = s.storage.GetOrder(ctx, order.ID)
		if err != nil {
			return entities.Order{}, fmt.Errorf("error reload order: %w", err)
		}
	}

	return order, nil
}

func (s *Service) checkoutLocked(ctx context.Context, orderID int64, request models.PaymentLinkCheckoutRequest, ableToPay bool) (entities.Order, mpesa.SubmitResult, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, err
	}

	defer unlock()

	order, err := s.storage.GetOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, fmt.Errorf("error get order: %w", err)
	}

	if order.Status.Terminal() || order.IsPaid {
		return entities.Order{}, mpesa.SubmitResult{}, newStateError(ErrInvalidTransition, MessageLinkUnavailable)
	}

	order.BuyerName = request.BuyerName
	order.BuyerPhone = request.BuyerPhone
	order.BuyerEmail = request.BuyerEmail
	order.Address = request.ShippingAddress.Address
	order.Latitude = request.ShippingAddress.Latitude
	order.Longitude = request.ShippingAddress.Longitude
	order.PaymentMethod = request.PaymentMethod
	order.Status = entities.OrderStatusNew

	if err := s.storage.DeletePayment(ctx, order.ID); err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, fmt.Errorf("error delete payment: %w", err)
	}

	var result mpesa.SubmitResult

	if order.IsMpesa() && ableToPay {
		result, err = s.pay(ctx, &order)
		if err != nil {
			return entities.Order{}, mpesa.SubmitResult{}, err
		}
	}

	if err := s.storage.UpdateOrder(ctx, order); err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, fmt.Errorf("error update order: %w", err)
	}

	return order, result, nil
}

func (s *Service) CancelPaymentLink(ctx context.Context, actor Actor, linkID string) (entities.Order, error) {
	order, err := s.storage.GetOrderByPaymentLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, ErrOrderNotFound
		}

		return entities.Order{}, fmt.Errorf("error get payment link: %w", err)
	}

	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err = s.loadOrder(ctx, actor.ShopID, order.ID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status.Terminal() {
		return entities.Order{}, newStateError(ErrInvalidTransition, MessageCannotCancel)
	}

	if err := s.refundPaid(ctx, order); err != nil {
		return entities.Order{}, err
	}

	previous := order.Status
	completedAt := s.now()

	order.Status = entities.OrderStatusCanceled
	order.CompletedAt = &completedAt

	if err := s.save(ctx, order, previous); err != nil {
		return entities.Order{}, err
	}

	return order, nil
}
