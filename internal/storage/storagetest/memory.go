// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/storage"
)

type Memory struct {
	mu sync.Mutex

	now func() time.Time

	users        map[int64]entities.User
	shops        map[int64]entities.Shop
	warehouses   map[int64]entities.Warehouse
	orders       map[int64]entities.Order
	payments     map[int64]entities.Payment
	transactions map[int64]entities.Transaction
	assignments  map[int64]entities.Assignment
	devices      map[int64]entities.Device

	nextID      int64
	orderNumber int64
}

var _ storage.Storage = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:          time.Now,
		users:        make(map[int64]entities.User),
		shops:        make(map[int64]entities.Shop),
		warehouses:   make(map[int64]entities.Warehouse),
		orders:       make(map[int64]entities.Order),
		payments:     make(map[int64]entities.Payment),
		transactions: make(map[int64]entities.Transaction),
		assignments:  make(map[int64]entities.Assignment),
		devices:      make(map[int64]entities.Device),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) AddShop(shop entities.Shop) entities.Shop {
	m.mu.Lock()
	defer m.mu.Unlock()

	if shop.ID == 0 {
		shop.ID = m.id()
	}
	m.shops[shop.ID] = shop

	return shop
}

func (m *Memory) AddUser(user entities.User) entities.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == 0 {
		user.ID = m.id()
	}
	m.users[user.ID] = user

	return user
}

func (m *Memory) AddWarehouse(warehouse entities.Warehouse) entities.Warehouse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if warehouse.ID == 0 {
		warehouse.ID = m.id()
	}
	m.warehouses[warehouse.ID] = warehouse

	return warehouse
}

// Transactions returns every stored transaction in creation order.
func (m *Memory) Transactions() []entities.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	txns := make([]entities.Transaction, 0, len(m.transactions))
	for _, txn := range m.transactions {
		txns = append(txns, txn)
	}

	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })

	return txns
}

func (m *Memory) GetUser(_ context.Context, userID int64) (entities.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return entities.User{}, storage.ErrNoRows
	}

	return user, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (entities.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}

	return entities.User{}, storage.ErrNoRows
}

func (m *Memory) GetShop(_ context.Context, shopID int64) (entities.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shop, ok := m.shops[shopID]
	if !ok {
		return entities.Shop{}, storage.ErrNoRows
	}

	return shop, nil
}

func (m *Memory) GetWarehouseByCode(_ context.Context, shopID int64, code string) (entities.Warehouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, warehouse := range m.warehouses {
		if warehouse.ShopID == shopID && warehouse.Code == code {
			return warehouse, nil
		}
	}

	return entities.Warehouse{}, storage.ErrNoRows
}

func (m *Memory) CreateOrder(_ context.Context, order *entities.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.Number == 0 {
		m.orderNumber++
		order.Number = m.orderNumber
	} else if order.Number > m.orderNumber {
		m.orderNumber = order.Number
	}

	for _, existing := range m.orders {
		if existing.Number == order.Number {
			return storage.ErrConflict
		}

		if order.PaymentLinkID != nil && existing.PaymentLinkID != nil && *existing.PaymentLinkID == *order.PaymentLinkID {
			return storage.ErrConflict
		}
	}

	order.ID = m.id()
	order.CreatedAt = m.now()

	for i := range order.Positions {
		order.Positions[i].ID = m.id()
		order.Positions[i].OrderID = order.ID

		if order.Positions[i].Currency == "" {
			order.Positions[i].Currency = entities.DefaultCurrency
		}
	}

	m.orders[order.ID] = copyOrder(*order)

	return nil
}

func (m *Memory) UpdateOrder(_ context.Context, order entities.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.updateOrder(order)
}

func (m *Memory) updateOrder(order entities.Order) error {
	existing, ok := m.orders[order.ID]
	if !ok {
		return storage.ErrNoRows
	}

	order.Positions = existing.Positions
	order.CreatedAt = existing.CreatedAt
	order.Number = existing.Number
	m.orders[order.ID] = copyOrder(order)

	return nil
}

func (m *Memory) GetOrder(_ context.Context, orderID int64) (entities.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return entities.Order{}, storage.ErrNoRows
	}

	return copyOrder(order), nil
}

func (m *Memory) GetOrderByPaymentLink(_ context.Context, linkID string) (entities.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, order := range m.orders {
		if order.IsPaymentLink && order.PaymentLinkID != nil && *order.PaymentLinkID == linkID {
			return copyOrder(order), nil
		}
	}

	return entities.Order{}, storage.ErrNoRows
}

func (m *Memory) GetShopOrders(_ context.Context, shopID int64, filter storage.OrderFilter) ([]entities.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []entities.Order
	for _, order := range m.orders {
		if order.ShopID != shopID {
			continue
		}

		switch filter {
		case storage.OrderFilterOpen:
			if !m.paid(order) || order.Status.Terminal() {
				continue
			}
		case storage.OrderFilterRecent:
			if !m.paid(order) || !order.Status.Terminal() {
				continue
			}
		}

		orders = append(orders, copyOrder(order))
	}

	sortOrders(orders, filter == storage.OrderFilterRecent)

	return orders, nil
}

func (m *Memory) GetDriverOrders(_ context.Context, shopID int64, driverID int64, history bool) ([]entities.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []entities.Order
	for _, order := range m.orders {
		if order.ShopID != shopID || !m.paid(order) {
			continue
		}

		var last *entities.Assignment
		for _, assignment := range m.orderAssignments(order.ID) {
			if assignment.DriverID == driverID {
				assignment := assignment
				last = &assignment
			}
		}

		if last == nil {
			continue
		}

		if history {
			if last.Status != entities.AssignmentStatusAccepted || !order.Status.Terminal() {
				continue
			}
		} else if last.Status == entities.AssignmentStatusRejected || order.Status.Terminal() {
			continue
		}

		orders = append(orders, copyOrder(order))
	}

	sortOrders(orders, history)

	return orders, nil
}

func (m *Memory) paid(order entities.Order) bool {
	if order.PaymentMethod == entities.PaymentMethodCash || order.IsPaymentLink {
		return true
	}

	for _, payment := range m.payments {
		if payment.OrderID != order.ID || payment.TransactionID == nil {
			continue
		}

		if txn, ok := m.transactions[*payment.TransactionID]; ok && txn.Status == entities.TransactionStatusSuccess {
			return true
		}
	}

	return false
}

func (m *Memory) orderAssignments(orderID int64) []entities.Assignment {
	var assignments []entities.Assignment
	for _, assignment := range m.assignments {
		if assignment.OrderID == orderID {
			assignments = append(assignments, assignment)
		}
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })

	return assignments
}

func (m *Memory) GetAssignments(_ context.Context, orderID int64) ([]entities.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.orderAssignments(orderID), nil
}

func (m *Memory) ReassignOrder(_ context.Context, order entities.Order, assignment *entities.Assignment) ([]entities.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; !ok {
		return nil, storage.ErrNoRows
	}

	var removed []entities.Assignment
	for _, existing := range m.orderAssignments(order.ID) {
		if existing.Status == entities.AssignmentStatusAssigned || existing.Status == entities.AssignmentStatusAccepted {
			removed = append(removed, existing)
			delete(m.assignments, existing.ID)
		}
	}

	assignment.ID = m.id()
	assignment.OrderID = order.ID
	assignment.CreatedAt = m.now()
	m.assignments[assignment.ID] = *assignment

	return removed, m.updateOrder(order)
}

func (m *Memory) SaveAssignment(_ context.Context, order entities.Order, assignment entities.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assignments[assignment.ID]; !ok {
		return storage.ErrNoRows
	}

	m.assignments[assignment.ID] = assignment

	return m.updateOrder(order)
}

func (m *Memory) GetOrderPayment(_ context.Context, orderID int64) (entities.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, payment := range m.payments {
		if payment.OrderID == orderID {
			return payment, nil
		}
	}

	return entities.Payment{}, storage.ErrNoRows
}

func (m *Memory) GetPaymentByTransaction(_ context.Context, transactionID int64) (entities.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, payment := range m.payments {
		if payment.TransactionID != nil && *payment.TransactionID == transactionID {
			return payment, nil
		}
	}

	return entities.Payment{}, storage.ErrNoRows
}

func (m *Memory) ReplacePayment(_ context.Context, orderID int64) (entities.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletePayment(orderID)

	payment := entities.Payment{ID: m.id(), OrderID: orderID, CreatedAt: m.now()}
	m.payments[payment.ID] = payment

	return payment, nil
}

func (m *Memory) DeletePayment(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletePayment(orderID)

	return nil
}

func (m *Memory) deletePayment(orderID int64) {
	for id, payment := range m.payments {
		if payment.OrderID == orderID {
			delete(m.payments, id)
		}
	}
}

func (m *Memory) AttachTransaction(_ context.Context, paymentID int64, transactionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[paymentID]
	if !ok {
		return nil
	}

	payment.TransactionID = &transactionID
	m.payments[paymentID] = payment

	return nil
}

func (m *Memory) MarkPaymentProcessed(_ context.Context, paymentID int64, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[paymentID]
	if !ok {
		return nil
	}

	payment.ProcessedAt = &processedAt
	m.payments[paymentID] = payment

	return nil
}

func (m *Memory) CreateTransaction(_ context.Context, txn *entities.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn.ID = m.id()
	txn.CreatedAt = m.now()
	m.transactions[txn.ID] = *txn

	return nil
}

func (m *Memory) UpdateTransaction(_ context.Context, txn entities.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transactions[txn.ID]
	if !ok {
		return storage.ErrNoRows
	}

	txn.CreatedAt = existing.CreatedAt
	m.transactions[txn.ID] = txn

	return nil
}

func (m *Memory) MarkTransactionExpired(_ context.Context, transactionID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[transactionID]
	if !ok || txn.Status != entities.TransactionStatusNew {
		return false, nil
	}

	txn.Status = entities.TransactionStatusFailed
	m.transactions[transactionID] = txn

	return true, nil
}

func (m *Memory) GetTransaction(_ context.Context, transactionID int64) (entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[transactionID]
	if !ok {
		return entities.Transaction{}, storage.ErrNoRows
	}

	return txn, nil
}

func (m *Memory) GetLatestTransaction(_ context.Context, merchantRequestID string, checkoutRequestID string) (entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		latest entities.Transaction
		found  bool
	)

	for _, txn := range m.transactions {
		if txn.MerchantRequestID != merchantRequestID || txn.CheckoutRequestID != checkoutRequestID {
			continue
		}

		if !found || txn.ID > latest.ID {
			latest, found = txn, true
		}
	}

	if !found {
		return entities.Transaction{}, storage.ErrNoRows
	}

	return latest, nil
}

func (m *Memory) GetStaleTransactions(_ context.Context, createdBefore time.Time, limit int) ([]entities.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txns []entities.Transaction
	for _, txn := range m.transactions {
		if txn.Type == entities.TransactionTypePayment && txn.Status == entities.TransactionStatusNew && txn.CreatedAt.Before(createdBefore) {
			txns = append(txns, txn)
		}
	}

	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })

	if len(txns) > limit {
		txns = txns[:limit]
	}

	return txns, nil
}

// SetClock replaces the clock used for created_at stamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

func (m *Memory) SaveDevice(_ context.Context, userID int64, registrationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, device := range m.devices {
		if device.RegistrationID == registrationID {
			delete(m.devices, id)
		}
	}

	device := entities.Device{
		ID:             m.id(),
		UserID:         userID,
		RegistrationID: registrationID,
		Active:         true,
		CreatedAt:      m.now(),
	}
	m.devices[device.ID] = device

	return nil
}

func (m *Memory) GetActiveDevice(_ context.Context, userID int64) (entities.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		latest entities.Device
		found  bool
	)

	for _, device := range m.devices {
		if device.UserID != userID || !device.Active {
			continue
		}

		if !found || device.ID > latest.ID {
			latest, found = device, true
		}
	}

	if !found {
		return entities.Device{}, storage.ErrNoRows
	}

	return latest, nil
}

func copyOrder(order entities.Order) entities.Order {
	positions := make([]entities.Position, len(order.Positions))
	copy(positions, order.Positions)
	order.Positions = positions

	return order
}

func sortOrders(orders []entities.Order, byCompletion bool) {
	sort.Slice(orders, func(i, j int) bool {
		if byCompletion {
			a, b := orders[i].CompletedAt, orders[j].CompletedAt
			if a != nil && b != nil && !a.Equal(*b) {
				return a.After(*b)
			}
		}

		return orders[i].ID > orders[j].ID
	})
}
