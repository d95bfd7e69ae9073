package orders

import (
	"context"
	"testing"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkRequest() models.PaymentLinkRequest {
	return models.PaymentLinkRequest{
		Warehouse: "WH1",
		Positions: []models.PositionRequest{
			{ItemID: "sku-2", Name: "Cooking oil", Quantity: 2, Price: decimal.NewFromInt(250)},
		},
	}
}

func checkoutRequest(method entities.PaymentMethod, pay bool) models.PaymentLinkCheckoutRequest {
	return models.PaymentLinkCheckoutRequest{
		BuyerName:       "Otieno",
		BuyerPhone:      "0722 000 111",
		ShippingAddress: models.LocationRequest{Address: "Kenyatta Avenue 3, Nairobi"},
		PaymentMethod:   method,
		Pay:             pay,
	}
}

func (f *fixture) createLink(t *testing.T) entities.Order {
	t.Helper()

	order, err := f.service.CreatePaymentLink(context.Background(), f.manager, linkRequest())
	require.NoError(t, err)
	require.NotNil(t, order.PaymentLinkID)

	return order
}

func TestCreatePaymentLink(t *testing.T) {
	f := newFixture(t)

	order := f.createLink(t)

	assert.True(t, order.IsPaymentLink)
	assert.Len(t, *order.PaymentLinkID, 10)
	assert.Equal(t, entities.PaymentMethodCash, order.PaymentMethod)
	assert.Positive(t, order.Number)
	assert.True(t, order.DeliveryFee.Equal(decimal.NewFromInt(50)), "shop default fee")
	assert.True(t, order.TotalPrice().Equal(decimal.NewFromInt(550)))

	got, err := f.service.GetPaymentLink(context.Background(), *order.PaymentLinkID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestCreatePaymentLinkValidation(t *testing.T) {
	f := newFixture(t)

	request := linkRequest()
	request.Positions = nil

	_, err := f.service.CreatePaymentLink(context.Background(), f.manager, request)

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("positions", validation.CodeRequiredField))
}

func TestCreatePaymentLinkRetriesTakenID(t *testing.T) {
	f := newFixture(t)

	ids := []string{"aaaaaaaaaa", "aaaaaaaaaa", "bbbbbbbbbb"}
	f.service.newLinkID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := f.createLink(t)
	second := f.createLink(t)

	assert.Equal(t, "aaaaaaaaaa", *first.PaymentLinkID)
	assert.Equal(t, "bbbbbbbbbb", *second.PaymentLinkID)
}

func TestGetPaymentLink(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetPaymentLink(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	order := f.createLink(t)

	f.service.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	_, err = f.service.GetPaymentLink(context.Background(), *order.PaymentLinkID)
	assert.ErrorIs(t, err, ErrPaymentLinkExpired)

	_, err = f.service.CheckoutPaymentLink(context.Background(), *order.PaymentLinkID, checkoutRequest(entities.PaymentMethodCash, false))
	assert.ErrorIs(t, err, ErrPaymentLinkExpired)
}

func TestCheckoutPaymentLinkWithPrepayment(t *testing.T) {
	f := newFixture(t, withPrepayment())

	link := f.createLink(t)

	order, err := f.service.CheckoutPaymentLink(context.Background(), *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodMpesa, true))
	require.NoError(t, err)

	assert.Equal(t, "Otieno", order.BuyerName)
	assert.Equal(t, entities.PaymentMethodMpesa, order.PaymentMethod)
	assert.True(t, order.IsPaid)
	assert.False(t, order.PendingTransaction)
	assert.Regexp(t, verificationCodePattern, order.VerificationCode)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, "0722000111", txns[0].PhoneNumber)
	assert.Equal(t, "550", txns[0].Amount.String())

	_, err = f.service.CheckoutPaymentLink(context.Background(), *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodMpesa, true))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckoutPaymentLinkWithoutPrepayment(t *testing.T) {
	f := newFixture(t)

	link := f.createLink(t)

	order, err := f.service.CheckoutPaymentLink(context.Background(), *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodMpesa, true))
	require.NoError(t, err)

	assert.Equal(t, entities.PaymentMethodMpesa, order.PaymentMethod)
	assert.False(t, order.IsPaid)
	assert.Empty(t, f.store.Transactions())
}

func TestCheckoutPaymentLinkValidation(t *testing.T) {
	f := newFixture(t)

	link := f.createLink(t)

	request := checkoutRequest(entities.PaymentMethod("CHEQUE"), false)
	request.BuyerName = ""

	_, err := f.service.CheckoutPaymentLink(context.Background(), *link.PaymentLinkID, request)

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("buyer_name", validation.CodeRequiredField))
	assert.True(t, errs.Has("payment_method", validation.CodeInvalidValue))

	assert.Empty(t, f.reload(t, link.ID).BuyerName)
}

func TestCancelPaymentLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	link := f.createLink(t)

	_, err := f.service.CancelPaymentLink(ctx, f.stranger, *link.PaymentLinkID)
	require.ErrorIs(t, err, ErrOrderNotFound)

	order, err := f.service.CancelPaymentLink(ctx, f.manager, *link.PaymentLinkID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCanceled, order.Status)

	_, err = f.service.CheckoutPaymentLink(ctx, *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodCash, false))
	require.ErrorIs(t, err, ErrInvalidTransition)

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, MessageLinkUnavailable, stateErr.Message)

	_, err = f.service.CancelPaymentLink(ctx, f.manager, *link.PaymentLinkID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelPaymentLinkRefundsPrepayment(t *testing.T) {
	f := newFixture(t, withPrepayment())
	ctx := context.Background()

	link := f.createLink(t)

	order, err := f.service.CheckoutPaymentLink(ctx, *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodMpesa, true))
	require.NoError(t, err)
	require.True(t, order.IsPaid)

	order, err = f.service.CancelPaymentLink(ctx, f.manager, *link.PaymentLinkID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCanceled, order.Status)

	txns := f.store.Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, entities.TransactionTypeReversal, txns[1].Type)
}

func TestCancelPaymentLinkKeepsOrderWhenRefundFails(t *testing.T) {
	f := newFixture(t, withPrepayment())
	ctx := context.Background()

	link := f.createLink(t)

	_, err := f.service.CheckoutPaymentLink(ctx, *link.PaymentLinkID, checkoutRequest(entities.PaymentMethodMpesa, true))
	require.NoError(t, err)

	f.service.gateway = refusingGateway{f.gateway}

	_, err = f.service.CancelPaymentLink(ctx, f.manager, *link.PaymentLinkID)
	require.ErrorIs(t, err, ErrRefundFailed)

	reloaded := f.reload(t, link.ID)
	assert.Equal(t, entities.OrderStatusNew, reloaded.Status)
	assert.True(t, reloaded.IsPaid)
	assert.Nil(t, reloaded.CompletedAt)
}
