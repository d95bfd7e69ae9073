package orders

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"testing"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verificationCodePattern = regexp.MustCompile(`^\d{5}$`)

func TestCreateMpesaOrderInTestModeGetsPaid(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1001")

	assert.EqualValues(t, 1001, order.Number)
	assert.True(t, order.IsPaid)
	assert.False(t, order.PendingTransaction)
	assert.Regexp(t, verificationCodePattern, order.VerificationCode)
	assert.True(t, order.TotalPrice().Equal(decimal.NewFromInt(100)))

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, entities.TransactionStatusSuccess, txns[0].Status)
	assert.Equal(t, "100", txns[0].Amount.String())
	assert.Equal(t, "254700000001", txns[0].PhoneNumber)
	assert.Equal(t, "payment", txns[0].Description)
	require.NotNil(t, txns[0].ResultCode)
	assert.Equal(t, 0, *txns[0].ResultCode)

	payment, err := f.store.GetOrderPayment(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, txns[0].ID, *payment.TransactionID)
	assert.NotNil(t, payment.ProcessedAt)

	assert.Empty(t, f.notifier.sms, "no buyer messages in test mode")
	assert.Empty(t, f.notifier.emails)
}

func TestCreateMpesaOrderRejectedByProvider(t *testing.T) {
	f := newFixture(t, withSTKStatus(http.StatusBadRequest))

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1001")

	assert.False(t, order.IsPaid)
	assert.False(t, order.PendingTransaction)
	assert.Empty(t, order.VerificationCode)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, entities.TransactionStatusWrongNumber, txns[0].Status)
}

func TestCreateCashOrder(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodCash, "7")

	assert.Equal(t, entities.OrderStatusNew, order.Status)
	assert.False(t, order.IsPaid)
	assert.False(t, order.VerificationRequired)
	require.NotNil(t, order.WarehouseID)
	assert.Equal(t, f.warehouse.ID, *order.WarehouseID)
	assert.Empty(t, f.store.Transactions())
}

func TestCreateUsesShopDeliveryFee(t *testing.T) {
	f := newFixture(t)

	request := orderRequest(entities.PaymentMethodCash)
	request.OrderNumber = "12"
	request.DeliveryFee = ""

	order, err := f.service.Create(context.Background(), f.manager, request)
	require.NoError(t, err)

	assert.True(t, order.DeliveryFee.Equal(decimal.NewFromInt(50)))
	assert.True(t, order.TotalPrice().Equal(decimal.NewFromInt(150)))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *models.CreateOrderRequest)
		field  string
		code   validation.Code
	}{
		{name: "buyer name required", modify: func(r *models.CreateOrderRequest) { r.BuyerName = "" }, field: "buyer_name", code: validation.CodeRequiredField},
		{name: "buyer phone required", modify: func(r *models.CreateOrderRequest) { r.BuyerPhone = " " }, field: "buyer_phone", code: validation.CodeRequiredField},
		{name: "order number required", modify: func(r *models.CreateOrderRequest) { r.OrderNumber = "" }, field: "order_number", code: validation.CodeRequiredField},
		{name: "order number numeric", modify: func(r *models.CreateOrderRequest) { r.OrderNumber = "A-12" }, field: "order_number", code: validation.CodeInvalidValue},
		{name: "address required", modify: func(r *models.CreateOrderRequest) { r.ShippingAddress.Address = "" }, field: "shipping_address.address", code: validation.CodeRequiredField},
		{name: "email syntax", modify: func(r *models.CreateOrderRequest) { r.BuyerEmail = "not-an-email" }, field: "buyer_email", code: validation.CodeInvalidValue},
		{name: "delivery fee places", modify: func(r *models.CreateOrderRequest) { r.DeliveryFee = "1.234" }, field: "delivery_fee", code: validation.CodeInvalidValue},
		{name: "payment method", modify: func(r *models.CreateOrderRequest) { r.PaymentMethod = "CARD" }, field: "payment_method", code: validation.CodeInvalidValue},
		{name: "position quantity", modify: func(r *models.CreateOrderRequest) { r.Positions[0].Quantity = 0 }, field: "positions.0.quantity", code: validation.CodeMinValue},
		{name: "latitude range", modify: func(r *models.CreateOrderRequest) { lat := 91.0; r.ShippingAddress.Latitude = &lat }, field: "shipping_address.latitude", code: validation.CodeMaxValue},
		{name: "unknown warehouse", modify: func(r *models.CreateOrderRequest) { r.Warehouse = "WH9" }, field: "warehouse", code: validation.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			request := orderRequest(entities.PaymentMethodCash)
			request.OrderNumber = "5"
			tt.modify(&request)

			_, err := f.service.Create(context.Background(), f.manager, request)
			require.Error(t, err)

			var errs validation.Errors
			require.True(t, errors.As(err, &errs))
			assert.True(t, errs.Has(tt.field, tt.code), "got %v", errs)

			assert.Empty(t, f.store.Transactions())
		})
	}
}

func TestCreateDuplicateOrderNumber(t *testing.T) {
	f := newFixture(t)

	f.createOrder(t, entities.PaymentMethodCash, "42")

	request := orderRequest(entities.PaymentMethodCash)
	request.OrderNumber = "42"

	_, err := f.service.Create(context.Background(), f.manager, request)
	require.ErrorIs(t, err, ErrOrderNumberTaken)

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("order_number", validation.CodeInvalidValue))
}

func TestAssignDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.createOrder(t, entities.PaymentMethodCash, "1")

	order, err := f.service.AssignDriver(ctx, f.manager, order.ID, f.driver.UserID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusAssigned, order.Status)
	assert.Nil(t, order.DriverID)
	assert.Equal(t, []entities.PushStatus{entities.PushOrderAssigned}, f.notifier.statuses(f.driver.UserID))

	_, err = f.service.AssignDriver(ctx, f.manager, order.ID, f.driver.UserID)
	assert.ErrorIs(t, err, ErrDriverAlreadyAssigned)

	_, err = f.service.AssignDriver(ctx, f.manager, order.ID, f.other.UserID)
	require.NoError(t, err)

	assert.Equal(t, []entities.PushStatus{entities.PushOrderAssigned, entities.PushOrderReassigned}, f.notifier.statuses(f.driver.UserID))
	assert.Equal(t, []entities.PushStatus{entities.PushOrderAssigned}, f.notifier.statuses(f.other.UserID))

	assignments, err := f.store.GetAssignments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, f.other.UserID, assignments[0].DriverID)
	assert.Equal(t, entities.AssignmentStatusAssigned, assignments[0].Status)
}

func TestAssignDriverRejectsForeignDriver(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodCash, "1")

	_, err := f.service.AssignDriver(context.Background(), f.manager, order.ID, f.stranger.UserID)
	assert.ErrorIs(t, err, ErrDriverNotInShop)

	_, err = f.service.AssignDriver(context.Background(), f.manager, order.ID, f.manager.UserID)
	assert.ErrorIs(t, err, ErrDriverNotInShop)

	_, err = f.service.AssignDriver(context.Background(), f.manager, order.ID, 9999)
	assert.ErrorIs(t, err, ErrDriverNotInShop)
}

func TestOrdersOfOtherShopsAreHidden(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodCash, "1")
	outsider := Actor{UserID: f.stranger.UserID, ShopID: f.stranger.ShopID, Role: entities.RoleManager}

	_, err := f.service.GetOrder(context.Background(), outsider, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.service.Cancel(context.Background(), outsider, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, entities.OrderStatusNew, f.reload(t, order.ID).Status)
}

func TestCancelRefundsMpesaPayment(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1")
	require.True(t, order.IsPaid)

	order, err := f.service.Cancel(context.Background(), f.manager, order.ID)
	require.NoError(t, err)

	assert.Equal(t, entities.OrderStatusCanceled, order.Status)
	assert.NotNil(t, order.CompletedAt)

	txns := f.store.Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, entities.TransactionStatusSuccess, txns[0].Status, "payment is kept")
	assert.Equal(t, entities.TransactionTypeReversal, txns[1].Type)
	assert.Equal(t, "Refund of transaction "+strconv.FormatInt(txns[0].ID, 10), txns[1].Description)
}

func TestCancelKeepsOrderWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	f.service.gateway = refusingGateway{f.gateway}

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1")
	require.True(t, order.IsPaid)

	_, err := f.service.Cancel(context.Background(), f.manager, order.ID)
	require.ErrorIs(t, err, ErrRefundFailed)

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, MessageRefundFailed, stateErr.Message)

	reloaded := f.reload(t, order.ID)
	assert.Equal(t, entities.OrderStatusNew, reloaded.Status)
	assert.Nil(t, reloaded.CompletedAt)
}

func TestCancelNotifiesDriver(t *testing.T) {
	t.Run("assigned order is removed", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t, entities.PaymentMethodCash, "1")
		_, err := f.service.AssignDriver(context.Background(), f.manager, order.ID, f.driver.UserID)
		require.NoError(t, err)

		_, err = f.service.Cancel(context.Background(), f.manager, order.ID)
		require.NoError(t, err)

		assert.Equal(t, []entities.PushStatus{entities.PushOrderAssigned, entities.PushOrderRemoved}, f.notifier.statuses(f.driver.UserID))
	})

	t.Run("accepted order is canceled", func(t *testing.T) {
		f := newFixture(t)

		order := f.acceptedOrder(t, "1")

		_, err := f.service.Cancel(context.Background(), f.manager, order.ID)
		require.NoError(t, err)

		assert.Equal(t, []entities.PushStatus{entities.PushOrderAssigned, entities.PushOrderCanceled}, f.notifier.statuses(f.driver.UserID))
	})

	t.Run("order without driver", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t, entities.PaymentMethodCash, "1")

		_, err := f.service.Cancel(context.Background(), f.manager, order.ID)
		require.NoError(t, err)

		assert.Empty(t, f.notifier.pushes)
	})

	t.Run("canceled order stays canceled", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t, entities.PaymentMethodCash, "1")

		_, err := f.service.Cancel(context.Background(), f.manager, order.ID)
		require.NoError(t, err)

		_, err = f.service.Cancel(context.Background(), f.manager, order.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestPayFailureNotifiesDriver(t *testing.T) {
	f := newFixture(t, withSTKStatus(http.StatusBadRequest))
	ctx := context.Background()

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1")

	_, err := f.service.AssignDriver(ctx, f.manager, order.ID, f.driver.UserID)
	require.NoError(t, err)

	ok, err := f.service.Pay(ctx, f.driver, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, f.notifier.pushes, 2)
	failed := f.notifier.pushes[1]
	assert.Equal(t, f.driver.UserID, failed.DriverID)
	assert.Equal(t, entities.PushOrderPayFailed, failed.Status)
	assert.Equal(t, "Bad Request - Invalid PhoneNumer", failed.Extra["description"])

	reloaded := f.reload(t, order.ID)
	assert.False(t, reloaded.VerificationRequired)
	assert.False(t, reloaded.PendingTransaction)
	assert.Len(t, f.store.Transactions(), 2)
}

func TestPayRejectsPaidOrder(t *testing.T) {
	f := newFixture(t)

	order := f.createOrder(t, entities.PaymentMethodMpesa, "1")
	require.True(t, order.IsPaid)

	_, err := f.service.Pay(context.Background(), f.manager, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, f.store.Transactions(), 1)
}

func TestTransactionStatus(t *testing.T) {
	f := newFixture(t)

	cash := f.createOrder(t, entities.PaymentMethodCash, "1")

	_, err := f.service.TransactionStatus(context.Background(), f.manager, cash.ID)
	assert.ErrorIs(t, err, ErrNoTransaction)

	mpesaOrder := f.createOrder(t, entities.PaymentMethodMpesa, "2")

	txn, err := f.service.TransactionStatus(context.Background(), f.manager, mpesaOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusSuccess, txn.Status)
}

func TestShopOrders(t *testing.T) {
	f := newFixture(t, withSTKStatus(http.StatusBadRequest))
	ctx := context.Background()

	cash := f.createOrder(t, entities.PaymentMethodCash, "1")
	unpaid := f.createOrder(t, entities.PaymentMethodMpesa, "2")
	done := f.createOrder(t, entities.PaymentMethodCash, "3")

	_, err := f.service.Cancel(ctx, f.manager, done.ID)
	require.NoError(t, err)

	all, err := f.service.ShopOrders(ctx, f.manager, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active := true
	open, err := f.service.ShopOrders(ctx, f.manager, &active)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, cash.ID, open[0].ID)

	active = false
	recent, err := f.service.ShopOrders(ctx, f.manager, &active)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, done.ID, recent[0].ID)

	assert.NotEqual(t, unpaid.ID, open[0].ID)
}
