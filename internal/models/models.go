package models

import (
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/shopspring/decimal"
)

type AuthorizationRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthorizationResponse struct {
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LocationRequest struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type PositionRequest struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// CreateOrderRequest keeps numeric fields as strings so field validation can
// report them with its own codes.
type CreateOrderRequest struct {
	OrderNumber     string                 `json:"order_number"`
	ShippingAddress LocationRequest        `json:"shipping_address"`
	DeliveryFee     string                 `json:"delivery_fee"`
	BuyerName       string                 `json:"buyer_name"`
	BuyerPhone      string                 `json:"buyer_phone"`
	BuyerEmail      string                 `json:"buyer_email"`
	PaymentMethod   entities.PaymentMethod `json:"payment_method"`
	Positions       []PositionRequest      `json:"positions"`
	Warehouse       string                 `json:"warehouse"`
	Comment         string                 `json:"comment"`
}

type AssignDriverRequest struct {
	DriverID int64 `json:"driver_id" validate:"required"`
}

type ConfirmOrderRequest struct {
	VerificationCode string `json:"verification_code"`
}

type UpdateOrderStatusRequest struct {
	Status entities.OrderStatus `json:"status" validate:"required"`
}

type DeviceRequest struct {
	RegistrationID string `json:"registration_id" validate:"required"`
}

type PaymentLinkRequest struct {
	DeliveryFee string            `json:"delivery_fee"`
	Positions   []PositionRequest `json:"positions"`
	Warehouse   string            `json:"warehouse"`
	Comment     string            `json:"comment"`
}

type PaymentLinkCheckoutRequest struct {
	BuyerName       string                 `json:"buyer_name"`
	BuyerPhone      string                 `json:"buyer_phone"`
	BuyerEmail      string                 `json:"buyer_email"`
	ShippingAddress LocationRequest        `json:"shipping_address"`
	PaymentMethod   entities.PaymentMethod `json:"payment_method"`
	Pay             bool                   `json:"pay"`
}

type PositionResponse struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

type LocationResponse struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type OrderResponse struct {
	ID                   int64                  `json:"id"`
	OrderNumber          int64                  `json:"order_number"`
	Status               entities.OrderStatus   `json:"status"`
	IsActive             bool                   `json:"is_active"`
	ShippingAddress      LocationResponse       `json:"shipping_address"`
	DeliveryFee          decimal.Decimal        `json:"delivery_fee"`
	TotalAmount          decimal.Decimal        `json:"total_amount"`
	BuyerName            string                 `json:"buyer_name"`
	BuyerPhone           string                 `json:"buyer_phone"`
	BuyerEmail           string                 `json:"buyer_email"`
	PaymentMethod        entities.PaymentMethod `json:"payment_method"`
	IsPaid               bool                   `json:"is_paid"`
	PendingTransaction   bool                   `json:"pending_transaction"`
	VerificationRequired bool                   `json:"verification_required"`
	IsPaymentLink        bool                   `json:"is_payment_link"`
	PaymentLinkID        string                 `json:"payment_link_id,omitempty"`
	DriverID             *int64                 `json:"driver_id,omitempty"`
	Positions            []PositionResponse     `json:"positions"`
	Comment              string                 `json:"comment,omitempty"`
	CreatedAt            string                 `json:"created_at"`
	CompletedAt          string                 `json:"completed_at,omitempty"`
}

func NewOrderResponse(order entities.Order) OrderResponse {
	response := OrderResponse{
		ID:          order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
		IsActive:    order.IsActive(),
		ShippingAddress: LocationResponse{
			Address:   order.Address,
			Latitude:  order.Latitude,
			Longitude: order.Longitude,
		},
		DeliveryFee:          order.DeliveryFee,
		TotalAmount:          order.TotalPrice(),
		BuyerName:            order.BuyerName,
		BuyerPhone:           order.BuyerPhone,
		BuyerEmail:           order.BuyerEmail,
		PaymentMethod:        order.PaymentMethod,
		IsPaid:               order.IsPaid,
		PendingTransaction:   order.PendingTransaction,
		VerificationRequired: order.VerificationRequired,
		IsPaymentLink:        order.IsPaymentLink,
		DriverID:             order.DriverID,
		Positions:            make([]PositionResponse, 0, len(order.Positions)),
		Comment:              order.Comment,
		CreatedAt:            order.CreatedAt.Format(time.RFC3339),
	}

	if order.PaymentLinkID != nil {
		response.PaymentLinkID = *order.PaymentLinkID
	}

	if order.CompletedAt != nil {
		response.CompletedAt = order.CompletedAt.Format(time.RFC3339)
	}

	for _, position := range order.Positions {
		response.Positions = append(response.Positions, PositionResponse{
			ItemID:   position.ItemID,
			Name:     position.Name,
			Quantity: position.Quantity,
			Price:    position.Price,
			Currency: position.Currency,
		})
	}

	return response
}

type GetOrdersResponse []OrderResponse

type TransactionResponse struct {
	ID                  int64                      `json:"id"`
	Status              entities.TransactionStatus `json:"status"`
	ResponseCode        string                     `json:"response_code"`
	ResponseDescription string                     `json:"response_description"`
	ResultCode          *int                       `json:"result_code"`
	ResultDesc          string                     `json:"result_desc"`
	CustomerMessage     string                     `json:"customer_message"`
	Amount              decimal.Decimal            `json:"amount"`
	CreatedAt           string                     `json:"created_at"`
}

func NewTransactionResponse(txn entities.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                  txn.ID,
		Status:              txn.Status,
		ResponseCode:        txn.ResponseCode,
		ResponseDescription: txn.ResponseDescription,
		ResultCode:          txn.ResultCode,
		ResultDesc:          txn.ResultDesc,
		CustomerMessage:     txn.CustomerMessage,
		Amount:              txn.Amount,
		CreatedAt:           txn.CreatedAt.Format(time.RFC3339),
	}
}

type PaymentLinkResponse struct {
	LinkID string        `json:"link_id"`
	URL    string        `json:"url"`
	Order  OrderResponse `json:"order"`
}
