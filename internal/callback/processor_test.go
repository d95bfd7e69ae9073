package callback

import (
	"context"
	"net/http"
	"testing"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/lock"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/storage/storagetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type push struct {
	driverID int64
	status   entities.PushStatus
	extra    map[string]any
}

type message struct {
	to      string
	subject string
	body    string
}

type recordingNotifier struct {
	pushes []push
	sms    []message
	emails []message
}

func (r *recordingNotifier) NotifyDriver(driverID int64, _ entities.Order, status entities.PushStatus, extra map[string]any) {
	r.pushes = append(r.pushes, push{driverID: driverID, status: status, extra: extra})
}

func (r *recordingNotifier) SendSMS(phone string, body string) {
	r.sms = append(r.sms, message{to: phone, body: body})
}

func (r *recordingNotifier) SendEmail(to string, subject string, body string) {
	r.emails = append(r.emails, message{to: to, subject: subject, body: body})
}

type pending struct {
	order   entities.Order
	payment entities.Payment
	txn     entities.Transaction
}

func newPending(t *testing.T, store *storagetest.Memory, order entities.Order) pending {
	t.Helper()

	ctx := context.Background()

	order.PaymentMethod = entities.PaymentMethodMpesa
	order.PendingTransaction = true
	order.DeliveryFee = decimal.NewFromInt(50)
	order.Positions = []entities.Position{{Name: "Sugar", Quantity: 2, Price: decimal.RequireFromString("99.5")}}

	require.NoError(t, store.CreateOrder(ctx, &order))

	payment, err := store.ReplacePayment(ctx, order.ID)
	require.NoError(t, err)

	txn := entities.Transaction{
		Type:              entities.TransactionTypePayment,
		Status:            entities.TransactionStatusNew,
		Amount:            order.TotalPrice(),
		MerchantRequestID: "29115-34620561-1",
		CheckoutRequestID: "ws_CO_191220191020363925",
	}
	require.NoError(t, store.CreateTransaction(ctx, &txn))
	require.NoError(t, store.AttachTransaction(ctx, payment.ID, txn.ID))

	return pending{order: order, payment: payment, txn: txn}
}

func resultFor(txn entities.Transaction, code int, desc string) models.MpesaCallback {
	return models.MpesaCallback{
		Body: models.MpesaCallbackBody{
			STKCallback: models.MpesaSTKCallback{
				MerchantRequestID: txn.MerchantRequestID,
				CheckoutRequestID: txn.CheckoutRequestID,
				ResultCode:        &code,
				ResultDesc:        desc,
			},
		},
	}
}

func newTestProcessor(store *storagetest.Memory, notifier *recordingNotifier, testMode bool) *Processor {
	p := NewProcessor(store, lock.NewLocalLocker(), notifier, testMode)
	p.newCode = func() string { return "48213" }

	return p
}

func TestProcessSuccessSendsVerificationCode(t *testing.T) {
	store := storagetest.NewMemory()
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, notifier, false)

	pend := newPending(t, store, entities.Order{
		Number:     77,
		Status:     entities.OrderStatusNew,
		BuyerPhone: "+254700000001",
		BuyerEmail: "amina@example.com",
	})

	body, status := p.Process(context.Background(), resultFor(pend.txn, 0, "The service request is processed successfully."))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"verification_code": "48213"}, body)

	order, err := store.GetOrder(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.True(t, order.IsPaid)
	assert.False(t, order.PendingTransaction)
	assert.Equal(t, "48213", order.VerificationCode)
	assert.Equal(t, entities.OrderStatusNew, order.Status)

	txn, err := store.GetTransaction(context.Background(), pend.txn.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusSuccess, txn.Status)
	assert.Contains(t, txn.CallbackData, `"stkCallback"`)

	payment, err := store.GetOrderPayment(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.NotNil(t, payment.ProcessedAt)

	require.Len(t, notifier.emails, 1)
	assert.Equal(t, "amina@example.com", notifier.emails[0].to)
	assert.Equal(t, "New verification code for the order #77.\n\nOrder amount: 249.00\n\nCode: 48213", notifier.emails[0].body)

	require.Len(t, notifier.sms, 1)
	assert.Equal(t, "+254700000001", notifier.sms[0].to)
	assert.Equal(t, "Your verification code is: 48213", notifier.sms[0].body)

	assert.Empty(t, notifier.pushes)
}

func TestProcessSuccessInTestModeSendsNothing(t *testing.T) {
	store := storagetest.NewMemory()
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, notifier, true)

	pend := newPending(t, store, entities.Order{Status: entities.OrderStatusNew, BuyerPhone: "+254700000001"})

	_, status := p.Process(context.Background(), resultFor(pend.txn, 0, "ok"))
	assert.Equal(t, http.StatusOK, status)

	assert.Empty(t, notifier.sms)
	assert.Empty(t, notifier.emails)
}

func TestProcessSuccessForDoorPaymentCompletesOrder(t *testing.T) {
	store := storagetest.NewMemory()
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, notifier, false)

	driverID := int64(31)
	pend := newPending(t, store, entities.Order{
		Status:     entities.OrderStatusDelivered,
		DriverID:   &driverID,
		BuyerPhone: "+254700000001",
	})

	body, status := p.Process(context.Background(), resultFor(pend.txn, 0, "ok"))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"success": true}, body)

	order, err := store.GetOrder(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.CompletedAt)
	assert.Empty(t, order.VerificationCode)

	require.Len(t, notifier.pushes, 1)
	assert.Equal(t, driverID, notifier.pushes[0].driverID)
	assert.Equal(t, entities.PushOrderPaySucceed, notifier.pushes[0].status)
	assert.Empty(t, notifier.sms)
}

func TestProcessFailureNotifiesDriver(t *testing.T) {
	store := storagetest.NewMemory()
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, notifier, false)

	driverID := int64(31)
	pend := newPending(t, store, entities.Order{Status: entities.OrderStatusAccepted, DriverID: &driverID})

	body, status := p.Process(context.Background(), resultFor(pend.txn, 1032, "Request cancelled by user"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{}, body)

	order, err := store.GetOrder(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.False(t, order.IsPaid)
	assert.False(t, order.PendingTransaction)

	txn, err := store.GetTransaction(context.Background(), pend.txn.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCancel, txn.Status)
	require.NotNil(t, txn.ResultCode)
	assert.Equal(t, 1032, *txn.ResultCode)

	require.Len(t, notifier.pushes, 1)
	assert.Equal(t, entities.PushOrderPayFailed, notifier.pushes[0].status)
	assert.Equal(t, map[string]any{"code": 1032, "description": "Request cancelled by user"}, notifier.pushes[0].extra)
}

func TestProcessRejectsUnknownTransaction(t *testing.T) {
	store := storagetest.NewMemory()
	p := newTestProcessor(store, &recordingNotifier{}, false)

	body, status := p.Process(context.Background(), resultFor(entities.Transaction{MerchantRequestID: "x", CheckoutRequestID: "y"}, 0, "ok"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"Error": "Failed to process webhook"}, body)
}

func TestProcessIgnoresRepeatedCallback(t *testing.T) {
	store := storagetest.NewMemory()
	notifier := &recordingNotifier{}
	p := newTestProcessor(store, notifier, false)

	pend := newPending(t, store, entities.Order{Status: entities.OrderStatusNew, BuyerPhone: "+254700000001"})

	_, status := p.Process(context.Background(), resultFor(pend.txn, 0, "ok"))
	require.Equal(t, http.StatusOK, status)

	p.newCode = func() string { return "99999" }

	body, status := p.Process(context.Background(), resultFor(pend.txn, 0, "ok"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"success": false}, body)

	order, err := store.GetOrder(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "48213", order.VerificationCode)
	assert.Len(t, notifier.sms, 1)
}

func TestProcessRejectsReplacedPayment(t *testing.T) {
	store := storagetest.NewMemory()
	p := newTestProcessor(store, &recordingNotifier{}, false)

	pend := newPending(t, store, entities.Order{Status: entities.OrderStatusNew})

	_, err := store.ReplacePayment(context.Background(), pend.order.ID)
	require.NoError(t, err)

	body, status := p.Process(context.Background(), resultFor(pend.txn, 0, "ok"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, map[string]any{"success": false}, body)

	order, err := store.GetOrder(context.Background(), pend.order.ID)
	require.NoError(t, err)
	assert.False(t, order.IsPaid)
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		desc string
		want entities.TransactionStatus
	}{
		{desc: "Request cancelled by user", want: entities.TransactionStatusCancel},
		{desc: "[STK_CB - ]Request cancelled by user", want: entities.TransactionStatusCancel},
		{desc: "The initiator information is invalid.", want: entities.TransactionStatusWrongPin},
		{desc: "The balance is insufficient for the transaction.", want: entities.TransactionStatusWrongData},
		{desc: "", want: entities.TransactionStatusWrongData},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureStatus(tt.desc))
		})
	}
}

func TestTimeoutAcknowledges(t *testing.T) {
	p := newTestProcessor(storagetest.NewMemory(), &recordingNotifier{}, false)

	body, status := p.Timeout([]byte(`{"Result":{}}`))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{}, body)
}
