// Package orders is the order state machine: creation, driver assignment,
// payment, confirmation and cancellation, each run under the order's lock.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/lock"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/mpesa"
	"github.com/VladKvetkin/ofinta/internal/services/converter"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const paymentDescription = "payment"

type Gateway interface {
	TestMode() bool
	SubmitPayment(ctx context.Context, payment entities.Payment, amount decimal.Decimal, phone string, description string) (mpesa.SubmitResult, error)
	Refund(ctx context.Context, txn entities.Transaction) (bool, error)
	CheckTimeout(ctx context.Context, txn entities.Transaction) (entities.Transaction, error)
}

type Notifier interface {
	NotifyDriver(driverID int64, order entities.Order, status entities.PushStatus, extra map[string]any)
}

// Simulator plays the provider's result callback back into the webhook
// processor. Only used in test mode.
type Simulator interface {
	Process(ctx context.Context, callback models.MpesaCallback) (any, int)
}

// Actor is the authenticated user an operation runs for.
type Actor struct {
	UserID int64
	ShopID int64
	Role   entities.Role
}

type Service struct {
	storage   storage.Storage
	locker    lock.Locker
	gateway   Gateway
	notifier  Notifier
	simulator Simulator

	now       func() time.Time
	newLinkID func() string
}

func NewService(storage storage.Storage, locker lock.Locker, gateway Gateway, notifier Notifier, simulator Simulator) *Service {
	return &Service{
		storage:   storage,
		locker:    locker,
		gateway:   gateway,
		notifier:  notifier,
		simulator: simulator,
		now:       time.Now,
		newLinkID: newLinkID,
	}
}

// newLinkID returns ten hex characters, the width of payment_link_id.
func newLinkID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:5])
}

func (s *Service) lockOrder(ctx context.Context, orderID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("error lock order %d: %w", orderID, err)
	}

	return unlock, nil
}

// loadOrder fetches the order and hides orders of other shops.
func (s *Service) loadOrder(ctx context.Context, shopID int64, orderID int64) (entities.Order, error) {
	order, err := s.storage.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, ErrOrderNotFound
		}

		return entities.Order{}, fmt.Errorf("error get order: %w", err)
	}

	if order.ShopID != shopID {
		return entities.Order{}, ErrOrderNotFound
	}

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID int64) (entities.Order, error) {
	return s.loadOrder(ctx, actor.ShopID, orderID)
}

func (s *Service) AssignedDriver(ctx context.Context, order entities.Order) (int64, bool, error) {
	if order.DriverID != nil {
		return *order.DriverID, true, nil
	}

	assignments, err := s.storage.GetAssignments(ctx, order.ID)
	if err != nil {
		return 0, false, fmt.Errorf("error get assignments: %w", err)
	}

	driverID, ok := entities.AssignedDriver(order, assignments)

	return driverID, ok, nil
}

func (s *Service) notifyAssignedDriver(ctx context.Context, order entities.Order, status entities.PushStatus, extra map[string]any) {
	driverID, ok, err := s.AssignedDriver(ctx, order)
	if err != nil {
		zap.L().Info("error resolve assigned driver", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	if !ok {
		return
	}

	s.notifier.NotifyDriver(driverID, order, status, extra)
}

// save persists order and, when it has just moved to CANCELED, tells the
// driver who had it. The driver is resolved before the write.
func (s *Service) save(ctx context.Context, order entities.Order, previous entities.OrderStatus) error {
	driverID, hasDriver, err := s.AssignedDriver(ctx, order)
	if err != nil {
		return err
	}

	if err := s.storage.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("error update order: %w", err)
	}

	if !hasDriver || previous == order.Status || order.Status != entities.OrderStatusCanceled {
		return nil
	}

	if previous == entities.OrderStatusAssigned {
		s.notifier.NotifyDriver(driverID, order, entities.PushOrderRemoved, nil)
	} else {
		s.notifier.NotifyDriver(driverID, order, entities.PushOrderCanceled, nil)
	}

	return nil
}

// pay replaces the order's payment and submits it. The caller holds the
// order lock and saves the order afterwards.
func (s *Service) pay(ctx context.Context, order *entities.Order) (mpesa.SubmitResult, error) {
	payment, err := s.storage.ReplacePayment(ctx, order.ID)
	if err != nil {
		return mpesa.SubmitResult{}, fmt.Errorf("error create payment: %w", err)
	}

	result, err := s.gateway.SubmitPayment(
		ctx,
		payment,
		order.TotalPrice(),
		converter.NormalizePhone(order.BuyerPhone),
		paymentDescription,
	)
	if err != nil {
		return mpesa.SubmitResult{}, fmt.Errorf("error submit payment: %w", err)
	}

	if result.Success {
		order.PendingTransaction = true
		return result, nil
	}

	zap.L().Info(
		"payment submission failed",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(result.Transaction.Status)),
		zap.String("response_code", result.Transaction.ResponseCode),
	)

	s.notifyAssignedDriver(ctx, *order, entities.PushOrderPayFailed, map[string]any{
		"code":        result.Transaction.ResponseCode,
		"description": result.Transaction.ResponseDescription,
	})

	return result, nil
}

// simulate feeds the canned provider result for an accepted submission
// into the webhook processor. Must run after the order lock is released.
func (s *Service) simulate(ctx context.Context, result mpesa.SubmitResult) {
	if !result.Success || !s.gateway.TestMode() || s.simulator == nil {
		return
	}

	body, status := s.simulator.Process(ctx, mpesa.TestCallback(result.Transaction))

	zap.L().Debug(
		"simulated payment callback",
		zap.Int64("transaction_id", result.Transaction.ID),
		zap.Int("status", status),
		zap.Any("body", body),
	)
}

// Pay starts a new MPesa payment for the order. It reports whether the
// provider accepted the request; a rejected request is not an error.
func (s *Service) Pay(ctx context.Context, actor Actor, orderID int64) (bool, error) {
	result, err := s.payLocked(ctx, actor, orderID)
	if err != nil {
		return false, err
	}

	s.simulate(ctx, result)

	return result.Success, nil
}

func (s *Service) payLocked(ctx context.Context, actor Actor, orderID int64) (mpesa.SubmitResult, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return mpesa.SubmitResult{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, actor.ShopID, orderID)
	if err != nil {
		return mpesa.SubmitResult{}, err
	}

	if order.Status.Terminal() || order.IsPaid {
		return mpesa.SubmitResult{}, newStateError(ErrInvalidTransition, MessageCannotPay)
	}

	result, err := s.pay(ctx, &order)
	if err != nil {
		return mpesa.SubmitResult{}, err
	}

	// A payment started from here is collected by the driver at the door,
	// so the buyer is not asked for a code afterwards.
	order.VerificationRequired = false

	if err := s.storage.UpdateOrder(ctx, order); err != nil {
		return mpesa.SubmitResult{}, fmt.Errorf("error update order: %w", err)
	}

	return result, nil
}

func (s *Service) Cancel(ctx context.Context, actor Actor, orderID int64) (entities.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, actor.ShopID, orderID)
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

// refundPaid reverses the order's mobile money payment when it settled and
// fails with ErrRefundFailed when the provider refuses the reversal.
func (s *Service) refundPaid(ctx context.Context, order entities.Order) error {
	txn, paid, err := s.mpesaPayment(ctx, order)
	if err != nil {
		return err
	}

	if !paid {
		return nil
	}

	refunded, err := s.gateway.Refund(ctx, txn)
	if err != nil {
		return fmt.Errorf("error refund order payment: %w", err)
	}

	if !refunded {
		zap.L().Warn("failed to refund canceled order", zap.Int64("order_id", order.ID), zap.Int64("transaction_id", txn.ID))
		return newStateError(ErrRefundFailed, MessageRefundFailed)
	}

	return nil
}

// mpesaPayment returns the transaction behind the order's payment and
// whether it settled successfully.
func (s *Service) mpesaPayment(ctx context.Context, order entities.Order) (entities.Transaction, bool, error) {
	txn, err := s.currentTransaction(ctx, order)
	if err != nil {
		if errors.Is(err, ErrNoTransaction) {
			return entities.Transaction{}, false, nil
		}

		return entities.Transaction{}, false, err
	}

	return txn, txn.Status == entities.TransactionStatusSuccess, nil
}

func (s *Service) currentTransaction(ctx context.Context, order entities.Order) (entities.Transaction, error) {
	payment, err := s.storage.GetOrderPayment(ctx, order.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Transaction{}, ErrNoTransaction
		}

		return entities.Transaction{}, fmt.Errorf("error get order payment: %w", err)
	}

	if payment.TransactionID == nil {
		return entities.Transaction{}, ErrNoTransaction
	}

	txn, err := s.storage.GetTransaction(ctx, *payment.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Transaction{}, ErrNoTransaction
		}

		return entities.Transaction{}, fmt.Errorf("error get transaction: %w", err)
	}

	return txn, nil
}

// TransactionStatus returns the order's current transaction, failing it
// first if it has waited for a callback for too long.
func (s *Service) TransactionStatus(ctx context.Context, actor Actor, orderID int64) (entities.Transaction, error) {
	order, err := s.loadOrder(ctx, actor.ShopID, orderID)
	if err != nil {
		return entities.Transaction{}, err
	}

	txn, err := s.currentTransaction(ctx, order)
	if err != nil {
		return entities.Transaction{}, err
	}

	return s.gateway.CheckTimeout(ctx, txn)
}

func (s *Service) AssignDriver(ctx context.Context, actor Actor, orderID int64, driverID int64) (entities.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, actor.ShopID, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	driver, err := s.storage.GetUser(ctx, driverID)
	if err != nil && !errors.Is(err, storage.ErrNoRows) {
		return entities.Order{}, fmt.Errorf("error get driver: %w", err)
	}

	if err != nil || driver.Role != entities.RoleDriver || driver.ShopID != order.ShopID {
		return entities.Order{}, ErrDriverNotInShop
	}

	if !order.IsActive() {
		return entities.Order{}, newStateError(ErrInvalidTransition, MessageCannotAssign)
	}

	current, hasCurrent, err := s.AssignedDriver(ctx, order)
	if err != nil {
		return entities.Order{}, err
	}

	if hasCurrent && current == driverID {
		return entities.Order{}, newStateError(ErrDriverAlreadyAssigned, MessageAlreadyDriver)
	}

	order.Status = entities.OrderStatusAssigned
	order.DriverID = nil

	assignment := entities.Assignment{
		DriverID: driverID,
		Status:   entities.AssignmentStatusAssigned,
	}

	removed, err := s.storage.ReassignOrder(ctx, order, &assignment)
	if err != nil {
		return entities.Order{}, fmt.Errorf("error reassign order: %w", err)
	}

	for _, previous := range removed {
		s.notifier.NotifyDriver(previous.DriverID, order, entities.PushOrderReassigned, nil)
	}

	s.notifier.NotifyDriver(driverID, order, entities.PushOrderAssigned, nil)

	return order, nil
}

// ShopOrders lists the shop's orders. A nil active lists everything; true
// lists open paid orders and false the finished ones.
func (s *Service) ShopOrders(ctx context.Context, actor Actor, active *bool) ([]entities.Order, error) {
	filter := storage.OrderFilterAll
	if active != nil {
		if *active {
			filter = storage.OrderFilterOpen
		} else {
			filter = storage.OrderFilterRecent
		}
	}

	orders, err := s.storage.GetShopOrders(ctx, actor.ShopID, filter)
	if err != nil {
		return nil, fmt.Errorf("error get shop orders: %w", err)
	}

	return orders, nil
}
