// Package callback applies the provider's asynchronous payment results to
// transactions and orders.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/lock"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"go.uber.org/zap"
)

const (
	cancelledByUserDesc  = "Request cancelled by user"
	invalidInitiatorDesc = "The initiator information is invalid."

	emailSubject  = "Your verification code"
	emailTemplate = "New verification code for the order #%d.\n\nOrder amount: %s\n\nCode: %s"
	smsTemplate   = "Your verification code is: %s"
)

type Notifier interface {
	NotifyDriver(driverID int64, order entities.Order, status entities.PushStatus, extra map[string]any)
	SendSMS(phone string, message string)
	SendEmail(to string, subject string, body string)
}

type Processor struct {
	storage  storage.Storage
	locker   lock.Locker
	notifier Notifier
	testMode bool

	now     func() time.Time
	newCode func() string
}

func NewProcessor(storage storage.Storage, locker lock.Locker, notifier Notifier, testMode bool) *Processor {
	return &Processor{
		storage:  storage,
		locker:   locker,
		notifier: notifier,
		testMode: testMode,
		now:      time.Now,
		newCode:  newVerificationCode,
	}
}

// newVerificationCode returns a five digit code.
func newVerificationCode() string {
	return strconv.Itoa(10000 + rand.Intn(90000))
}

// Process applies one result callback and returns the JSON body and HTTP
// status to answer the provider with.
func (p *Processor) Process(ctx context.Context, callback models.MpesaCallback) (any, int) {
	body, status, err := p.process(ctx, callback)
	if err != nil {
		zap.L().Info("error process mpesa callback", zap.Error(err))
		return map[string]any{"Error": "Failed to process webhook"}, http.StatusInternalServerError
	}

	return body, status
}

func (p *Processor) process(ctx context.Context, callback models.MpesaCallback) (any, int, error) {
	result := callback.Body.STKCallback

	txn, err := p.storage.GetLatestTransaction(ctx, result.MerchantRequestID, result.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			zap.L().Warn(
				"transaction not found",
				zap.String("merchant_request_id", result.MerchantRequestID),
				zap.String("checkout_request_id", result.CheckoutRequestID),
			)
			return map[string]any{"Error": "Failed to process webhook"}, http.StatusBadRequest, nil
		}

		return nil, 0, fmt.Errorf("error get transaction: %w", err)
	}

	payment, err := p.storage.GetPaymentByTransaction(ctx, txn.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			zap.L().Warn("callback for a replaced payment", zap.Int64("transaction_id", txn.ID))
			return map[string]any{"success": false}, http.StatusBadRequest, nil
		}

		return nil, 0, fmt.Errorf("error get payment: %w", err)
	}

	unlock, err := p.locker.Lock(ctx, lock.OrderKey(payment.OrderID))
	if err != nil {
		return nil, 0, fmt.Errorf("error lock order %d: %w", payment.OrderID, err)
	}

	defer unlock()

	raw, err := json.Marshal(callback)
	if err != nil {
		return nil, 0, fmt.Errorf("error encode callback: %w", err)
	}

	txn.ResultCode = result.ResultCode
	txn.ResultDesc = result.ResultDesc
	txn.CallbackData = string(raw)

	if err := p.storage.UpdateTransaction(ctx, txn); err != nil {
		return nil, 0, fmt.Errorf("error update transaction: %w", err)
	}

	if err := p.storage.MarkPaymentProcessed(ctx, payment.ID, p.now()); err != nil {
		return nil, 0, fmt.Errorf("error mark payment processed: %w", err)
	}

	order, err := p.storage.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, 0, fmt.Errorf("error get order: %w", err)
	}

	if !order.PendingTransaction {
		zap.L().Warn("callback for an order without pending transaction", zap.Int64("order_id", order.ID))
		return map[string]any{"success": false}, http.StatusBadRequest, nil
	}

	order.PendingTransaction = false

	if txn.IsSuccessful() {
		return p.succeed(ctx, txn, order)
	}

	return p.fail(ctx, txn, order)
}

func (p *Processor) succeed(ctx context.Context, txn entities.Transaction, order entities.Order) (any, int, error) {
	txn.Status = entities.TransactionStatusSuccess

	if err := p.storage.UpdateTransaction(ctx, txn); err != nil {
		return nil, 0, fmt.Errorf("error update transaction: %w", err)
	}

	order.IsPaid = true

	if order.PaymentRanByDriver() {
		completedAt := p.now()
		order.Status = entities.OrderStatusCompleted
		order.CompletedAt = &completedAt

		if err := p.storage.UpdateOrder(ctx, order); err != nil {
			return nil, 0, fmt.Errorf("error update order: %w", err)
		}

		p.notifyAssignedDriver(ctx, order, entities.PushOrderPaySucceed, nil)

		return map[string]any{"success": true}, http.StatusOK, nil
	}

	order.VerificationCode = p.newCode()

	if err := p.storage.UpdateOrder(ctx, order); err != nil {
		return nil, 0, fmt.Errorf("error update order: %w", err)
	}

	if !p.testMode {
		p.sendVerificationCode(order)
	}

	return map[string]any{"verification_code": order.VerificationCode}, http.StatusOK, nil
}

func (p *Processor) fail(ctx context.Context, txn entities.Transaction, order entities.Order) (any, int, error) {
	txn.Status = FailureStatus(txn.ResultDesc)

	if err := p.storage.UpdateTransaction(ctx, txn); err != nil {
		return nil, 0, fmt.Errorf("error update transaction: %w", err)
	}

	if err := p.storage.UpdateOrder(ctx, order); err != nil {
		return nil, 0, fmt.Errorf("error update order: %w", err)
	}

	var code any
	if txn.ResultCode != nil {
		code = *txn.ResultCode
	}

	p.notifyAssignedDriver(ctx, order, entities.PushOrderPayFailed, map[string]any{
		"code":        code,
		"description": txn.ResultDesc,
	})

	return map[string]any{}, http.StatusBadRequest, nil
}

// FailureStatus classifies a failed result by its description.
func FailureStatus(resultDesc string) entities.TransactionStatus {
	switch {
	case strings.Contains(resultDesc, cancelledByUserDesc):
		return entities.TransactionStatusCancel
	case resultDesc == invalidInitiatorDesc:
		return entities.TransactionStatusWrongPin
	default:
		return entities.TransactionStatusWrongData
	}
}

func (p *Processor) notifyAssignedDriver(ctx context.Context, order entities.Order, status entities.PushStatus, extra map[string]any) {
	var assignments []entities.Assignment

	if order.DriverID == nil {
		var err error

		assignments, err = p.storage.GetAssignments(ctx, order.ID)
		if err != nil {
			zap.L().Info("error get assignments", zap.Int64("order_id", order.ID), zap.Error(err))
			return
		}
	}

	driverID, ok := entities.AssignedDriver(order, assignments)
	if !ok {
		return
	}

	p.notifier.NotifyDriver(driverID, order, status, extra)
}

func (p *Processor) sendVerificationCode(order entities.Order) {
	if order.BuyerEmail != "" {
		p.notifier.SendEmail(
			order.BuyerEmail,
			emailSubject,
			fmt.Sprintf(emailTemplate, order.Number, order.TotalPrice().StringFixed(2), order.VerificationCode),
		)
	}

	if order.BuyerPhone != "" {
		p.notifier.SendSMS(order.BuyerPhone, fmt.Sprintf(smsTemplate, order.VerificationCode))
	}
}

// Timeout acknowledges the provider's queue timeout notification. Nothing is
// changed; stale transactions are failed by the expiry sweep.
func (p *Processor) Timeout(payload json.RawMessage) (any, int) {
	zap.L().Info("mpesa queue timeout", zap.ByteString("payload", payload))

	return map[string]any{}, http.StatusOK
}
