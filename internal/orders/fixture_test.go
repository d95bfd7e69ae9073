package orders

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/VladKvetkin/ofinta/internal/callback"
	"github.com/VladKvetkin/ofinta/internal/config"
	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/lock"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/mpesa"
	"github.com/VladKvetkin/ofinta/internal/storage/storagetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type push struct {
	DriverID int64
	Status   entities.PushStatus
	Extra    map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []push
	sms    []string
	emails []string
}

func (r *recordingNotifier) NotifyDriver(driverID int64, _ entities.Order, status entities.PushStatus, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushes = append(r.pushes, push{DriverID: driverID, Status: status, Extra: extra})
}

func (r *recordingNotifier) SendSMS(phone string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sms = append(r.sms, phone+": "+message)
}

func (r *recordingNotifier) SendEmail(to string, subject string, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.emails = append(r.emails, to+": "+subject)
}

func (r *recordingNotifier) statuses(driverID int64) []entities.PushStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var statuses []entities.PushStatus
	for _, p := range r.pushes {
		if p.DriverID == driverID {
			statuses = append(statuses, p.Status)
		}
	}

	return statuses
}

// refusingGateway accepts payments but never manages to refund them.
type refusingGateway struct {
	*mpesa.Gateway
}

func (refusingGateway) Refund(context.Context, entities.Transaction) (bool, error) {
	return false, nil
}

type fixture struct {
	store    *storagetest.Memory
	notifier *recordingNotifier
	gateway  *mpesa.Gateway
	service  *Service

	shop      entities.Shop
	warehouse entities.Warehouse
	manager   Actor
	driver    Actor
	other     Actor
	stranger  Actor
}

type fixtureOption func(*config.MpesaConfig, *entities.Shop)

func withSTKStatus(status int) fixtureOption {
	return func(cfg *config.MpesaConfig, _ *entities.Shop) {
		cfg.TestResponseStatusCode = status
	}
}

func withPrepayment() fixtureOption {
	return func(_ *config.MpesaConfig, shop *entities.Shop) {
		shop.AllowPrepayment = true
	}
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()

	cfg := config.MpesaConfig{
		TestMode:               true,
		TestResponseStatusCode: http.StatusOK,
		BusinessShortCode:      "174379",
		RequestTimeout:         2 * time.Minute,
	}
	shop := entities.Shop{Name: "Duka", DefaultDeliveryFee: decimal.NewFromInt(50)}

	for _, option := range options {
		option(&cfg, &shop)
	}

	store := storagetest.NewMemory()
	locker := lock.NewLocalLocker()
	notifier := &recordingNotifier{}
	gateway := mpesa.NewGateway(cfg, store)
	processor := callback.NewProcessor(store, locker, notifier, cfg.TestMode)

	f := &fixture{
		store:    store,
		notifier: notifier,
		gateway:  gateway,
		service:  NewService(store, locker, gateway, notifier, processor),
	}

	f.shop = store.AddShop(shop)
	otherShop := store.AddShop(entities.Shop{Name: "Other"})
	f.warehouse = store.AddWarehouse(entities.Warehouse{ShopID: f.shop.ID, Code: "WH1", Name: "Main"})

	manager := store.AddUser(entities.User{Email: "manager@duka.co.ke", Role: entities.RoleManager, ShopID: f.shop.ID})
	driver := store.AddUser(entities.User{Email: "driver@duka.co.ke", Role: entities.RoleDriver, ShopID: f.shop.ID})
	other := store.AddUser(entities.User{Email: "other@duka.co.ke", Role: entities.RoleDriver, ShopID: f.shop.ID})
	stranger := store.AddUser(entities.User{Email: "driver@other.co.ke", Role: entities.RoleDriver, ShopID: otherShop.ID})

	f.manager = Actor{UserID: manager.ID, ShopID: f.shop.ID, Role: manager.Role}
	f.driver = Actor{UserID: driver.ID, ShopID: f.shop.ID, Role: driver.Role}
	f.other = Actor{UserID: other.ID, ShopID: f.shop.ID, Role: other.Role}
	f.stranger = Actor{UserID: stranger.ID, ShopID: otherShop.ID, Role: stranger.Role}

	return f
}

func orderRequest(method entities.PaymentMethod) models.CreateOrderRequest {
	return models.CreateOrderRequest{
		ShippingAddress: models.LocationRequest{Address: "Moi Avenue 1, Nairobi"},
		DeliveryFee:     "0",
		BuyerName:       "Wanjiku",
		BuyerPhone:      "+254 700 000 001",
		BuyerEmail:      "wanjiku@example.com",
		PaymentMethod:   method,
		Warehouse:       "WH1",
		OrderNumber:     "",
		Positions: []models.PositionRequest{
			{ItemID: "sku-1", Name: "Maize flour", Quantity: 1, Price: decimal.NewFromInt(100)},
		},
	}
}

func (f *fixture) createOrder(t *testing.T, method entities.PaymentMethod, number string) entities.Order {
	t.Helper()

	request := orderRequest(method)
	request.OrderNumber = number

	order, err := f.service.Create(context.Background(), f.manager, request)
	require.NoError(t, err)

	return order
}

// acceptedOrder creates a cash order the fixture driver has accepted.
func (f *fixture) acceptedOrder(t *testing.T, number string) entities.Order {
	t.Helper()

	order := f.createOrder(t, entities.PaymentMethodCash, number)

	_, err := f.service.AssignDriver(context.Background(), f.manager, order.ID, f.driver.UserID)
	require.NoError(t, err)

	order, err = f.service.Accept(context.Background(), f.driver, order.ID)
	require.NoError(t, err)

	return order
}

func (f *fixture) reload(t *testing.T, orderID int64) entities.Order {
	t.Helper()

	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)

	return order
}
