package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusAssigned  OrderStatus = "ASSIGNED"
	OrderStatusPickedUp  OrderStatus = "PICKED_UP"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusProcessed OrderStatus = "PROCESSED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusSubmitted, OrderStatusAccepted,
		OrderStatusAssigned, OrderStatusPickedUp, OrderStatusDelivered,
		OrderStatusCompleted, OrderStatusCanceled, OrderStatusProcessed:
		return true
	}

	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "CASH"
	PaymentMethodMpesa PaymentMethod = "MPESA"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodMpesa
}

const DefaultCurrency = "KES"

type Order struct {
	ID                   int64           `db:"id"`
	Number               int64           `db:"order_number"`
	Status               OrderStatus     `db:"status"`
	ShopID               int64           `db:"shop_id"`
	DriverID             *int64          `db:"driver_id"`
	WarehouseID          *int64          `db:"warehouse_id"`
	Address              string          `db:"address"`
	Latitude             *float64        `db:"latitude"`
	Longitude            *float64        `db:"longitude"`
	DeliveryFee          decimal.Decimal `db:"delivery_fee"`
	BuyerName            string          `db:"buyer_name"`
	BuyerPhone           string          `db:"buyer_phone"`
	BuyerEmail           string          `db:"buyer_email"`
	PaymentMethod        PaymentMethod   `db:"payment_method"`
	IsPaid               bool            `db:"is_paid"`
	IsPaymentLink        bool            `db:"is_payment_link"`
	PaymentLinkID        *string         `db:"payment_link_id"`
	VerificationRequired bool            `db:"verification_required"`
	PendingTransaction   bool            `db:"pending_transaction"`
	VerificationCode     string          `db:"verification_code"`
	Comment              string          `db:"comment"`
	CreatedAt            time.Time       `db:"created_at"`
	CompletedAt          *time.Time      `db:"completed_at"`

	Positions []Position `db:"-"`
}

type Position struct {
	ID       int64           `db:"id"`
	OrderID  int64           `db:"order_id"`
	ItemID   string          `db:"item_id"`
	Name     string          `db:"name"`
	Quantity int             `db:"quantity"`
	Price    decimal.Decimal `db:"price"`
	Currency string          `db:"currency"`
}

func (o Order) IsActive() bool {
	return !o.Status.Terminal()
}

func (o Order) IsMpesa() bool {
	return o.PaymentMethod == PaymentMethodMpesa
}

// PaymentRanByDriver is true when the driver started the payment at the door
// after delivering, so a successful callback completes the order directly.
func (o Order) PaymentRanByDriver() bool {
	return !o.VerificationRequired && o.Status == OrderStatusDelivered
}

func (o Order) PositionsPrice() decimal.Decimal {
	total := decimal.Zero
	for _, position := range o.Positions {
		total = total.Add(position.Price.Mul(decimal.NewFromInt(int64(position.Quantity))))
	}

	return total
}

func (o Order) TotalPrice() decimal.Decimal {
	return o.PositionsPrice().Add(o.DeliveryFee)
}

func (o Order) HasDriver(driverID int64) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}
