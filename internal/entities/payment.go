package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusNew         TransactionStatus = "NEW"
	TransactionStatusSuccess     TransactionStatus = "SUCCESS"
	TransactionStatusWrongPin    TransactionStatus = "WRONG_PIN"
	TransactionStatusCancel      TransactionStatus = "CANCEL"
	TransactionStatusWrongNumber TransactionStatus = "WRONG_NUMBER"
	TransactionStatusExpired     TransactionStatus = "EXPIRED"
	TransactionStatusWrongData   TransactionStatus = "WRONG_DATA"
	TransactionStatusFailed      TransactionStatus = "FAILED"
)

type TransactionType string

const (
	TransactionTypePayment  TransactionType = "PAYMENT"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// Transaction is one attempt at the gateway. Rows are never deleted.
type Transaction struct {
	ID                  int64             `db:"id"`
	Type                TransactionType   `db:"type"`
	Amount              decimal.Decimal   `db:"amount"`
	PartyA              string            `db:"party_a"`
	PartyB              string            `db:"party_b"`
	PhoneNumber         string            `db:"phone_number"`
	Description         string            `db:"description"`
	Status              TransactionStatus `db:"status"`
	ResponseCode        string            `db:"response_code"`
	ResponseDescription string            `db:"response_description"`
	MerchantRequestID   string            `db:"merchant_request_id"`
	CheckoutRequestID   string            `db:"checkout_request_id"`
	ResultCode          *int              `db:"result_code"`
	ResultDesc          string            `db:"result_desc"`
	CustomerMessage     string            `db:"customer_message"`
	ResponseData        string            `db:"response_data"`
	CallbackData        string            `db:"callback_data"`
	CreatedAt           time.Time         `db:"created_at"`
}

func (t Transaction) IsSuccessful() bool {
	return t.ResultCode != nil && *t.ResultCode == 0
}

// Payment links an order to its latest gateway transaction.
type Payment struct {
	ID            int64      `db:"id"`
	OrderID       int64      `db:"order_id"`
	TransactionID *int64     `db:"transaction_id"`
	CreatedAt     time.Time  `db:"created_at"`
	ProcessedAt   *time.Time `db:"processed_at"`
}
