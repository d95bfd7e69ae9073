package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/mpesa"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"github.com/shopspring/decimal"
)

const orderDomain = "order"

var (
	priceKind     = validation.Decimal{MaxDigits: 9, DecimalPlaces: 2}
	latitudeKind  = validation.Float{Min: bound(-90), Max: bound(90)}
	longitudeKind = validation.Float{Min: bound(-180), Max: bound(180)}
)

func bound(v float64) *float64 {
	return &v
}

// Create validates and stores a new order for the shop. MPesa orders are
// submitted for payment straight away.
func (s *Service) Create(ctx context.Context, actor Actor, request models.CreateOrderRequest) (entities.Order, error) {
	order, err := s.newOrder(ctx, actor.ShopID, request)
	if err != nil {
		return entities.Order{}, err
	}

	if err := s.storage.CreateOrder(ctx, &order); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return entities.Order{}, errors.Join(
				ErrOrderNumberTaken,
				validation.New(orderDomain).Add("order_number", validation.CodeInvalidValue, "order number is already taken").Err(),
			)
		}

		return entities.Order{}, fmt.Errorf("error create order: %w", err)
	}

	if !order.IsMpesa() {
		return order, nil
	}

	order, result, err := s.payNew(ctx, order)
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

func (s *Service) payNew(ctx context.Context, order entities.Order) (entities.Order, mpesa.SubmitResult, error) {
	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, err
	}

	defer unlock()

	result, err := s.pay(ctx, &order)
	if err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, err
	}

	if err := s.storage.UpdateOrder(ctx, order); err != nil {
		return entities.Order{}, mpesa.SubmitResult{}, fmt.Errorf("error update order: %w", err)
	}

	return order, result, nil
}

func (s *Service) newOrder(ctx context.Context, shopID int64, request models.CreateOrderRequest) (entities.Order, error) {
	v := validation.New(orderDomain)

	v.Check("order_number", validation.Char{MaxLength: 18}, request.OrderNumber)
	v.Check("buyer_name", validation.Char{MaxLength: 128}, request.BuyerName)
	v.Check("buyer_phone", validation.Char{MaxLength: 20}, request.BuyerPhone)
	v.Check("buyer_email", validation.Email{Char: validation.Char{AllowBlank: true, MaxLength: 254}}, request.BuyerEmail)
	v.Check("shipping_address.address", validation.Char{MaxLength: 255}, request.ShippingAddress.Address)
	v.Check("warehouse", validation.Char{MaxLength: 20}, request.Warehouse)

	checkLocation(v, "shipping_address", request.ShippingAddress)

	if request.DeliveryFee != "" {
		v.Check("delivery_fee", priceKind, request.DeliveryFee)
	}

	if !request.PaymentMethod.Valid() {
		v.Add("payment_method", validation.CodeInvalidValue, "payment_method is invalid")
	}

	var number int64
	if request.OrderNumber != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(request.OrderNumber), 10, 64)
		if err != nil || parsed < 1 {
			v.Add("order_number", validation.CodeInvalidValue, "order_number is invalid")
		}
		number = parsed
	}

	positions := checkPositions(v, request.Positions)

	if err := v.Err(); err != nil {
		return entities.Order{}, err
	}

	shop, err := s.storage.GetShop(ctx, shopID)
	if err != nil {
		return entities.Order{}, fmt.Errorf("error get shop: %w", err)
	}

	warehouse, err := s.storage.GetWarehouseByCode(ctx, shopID, request.Warehouse)
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

	return entities.Order{
		Number:        number,
		Status:        entities.OrderStatusNew,
		ShopID:        shopID,
		WarehouseID:   &warehouse.ID,
		Address:       request.ShippingAddress.Address,
		Latitude:      request.ShippingAddress.Latitude,
		Longitude:     request.ShippingAddress.Longitude,
		DeliveryFee:   deliveryFee,
		BuyerName:     request.BuyerName,
		BuyerPhone:    request.BuyerPhone,
		BuyerEmail:    request.BuyerEmail,
		PaymentMethod: request.PaymentMethod,
		Comment:       request.Comment,
		Positions:     positions,
	}, nil
}

func checkLocation(v *validation.Validator, prefix string, location models.LocationRequest) {
	if location.Latitude != nil {
		v.Check(prefix+".latitude", latitudeKind, strconv.FormatFloat(*location.Latitude, 'f', -1, 64))
	}

	if location.Longitude != nil {
		v.Check(prefix+".longitude", longitudeKind, strconv.FormatFloat(*location.Longitude, 'f', -1, 64))
	}
}

func checkPositions(v *validation.Validator, requests []models.PositionRequest) []entities.Position {
	positions := make([]entities.Position, 0, len(requests))

	for i, request := range requests {
		field := fmt.Sprintf("positions.%d.", i)

		v.Check(field+"item_id", validation.Char{AllowBlank: true, MaxLength: 255}, request.ItemID)
		v.Check(field+"name", validation.Char{MaxLength: 255}, request.Name)
		v.Check(field+"price", priceKind, request.Price.String())

		if request.Quantity < 1 {
			v.Add(field+"quantity", validation.CodeMinValue, field+"quantity value is less than min value (1)")
		}

		if request.Price.IsNegative() {
			v.Add(field+"price", validation.CodeMinValue, field+"price value is less than min value (0)")
		}

		positions = append(positions, entities.Position{
			ItemID:   request.ItemID,
			Name:     request.Name,
			Quantity: request.Quantity,
			Price:    request.Price,
			Currency: entities.DefaultCurrency,
		})
	}

	return positions
}
