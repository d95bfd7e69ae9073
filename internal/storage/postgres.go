package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrConflict = errors.New("conflict")
	ErrNoRows   = errors.New("no rows")
)

type OrderFilter int

const (
	OrderFilterAll OrderFilter = iota
	OrderFilterOpen
	OrderFilterRecent
)

type Storage interface {
	GetUser(context.Context, int64) (entities.User, error)
	GetUserByEmail(context.Context, string) (entities.User, error)
	GetShop(context.Context, int64) (entities.Shop, error)
	GetWarehouseByCode(context.Context, int64, string) (entities.Warehouse, error)

	CreateOrder(context.Context, *entities.Order) error
	UpdateOrder(context.Context, entities.Order) error
	GetOrder(context.Context, int64) (entities.Order, error)
	GetOrderByPaymentLink(context.Context, string) (entities.Order, error)
	GetShopOrders(context.Context, int64, OrderFilter) ([]entities.Order, error)
	GetDriverOrders(context.Context, int64, int64, bool) ([]entities.Order, error)

	GetAssignments(context.Context, int64) ([]entities.Assignment, error)
	ReassignOrder(context.Context, entities.Order, *entities.Assignment) ([]entities.Assignment, error)
	SaveAssignment(context.Context, entities.Order, entities.Assignment) error

	GetOrderPayment(context.Context, int64) (entities.Payment, error)
	GetPaymentByTransaction(context.Context, int64) (entities.Payment, error)
	ReplacePayment(context.Context, int64) (entities.Payment, error)
	DeletePayment(context.Context, int64) error
	AttachTransaction(context.Context, int64, int64) error
	MarkPaymentProcessed(context.Context, int64, time.Time) error

	CreateTransaction(context.Context, *entities.Transaction) error
	UpdateTransaction(context.Context, entities.Transaction) error
	MarkTransactionExpired(context.Context, int64) (bool, error)
	GetTransaction(context.Context, int64) (entities.Transaction, error)
	GetLatestTransaction(context.Context, string, string) (entities.Transaction, error)
	GetStaleTransactions(context.Context, time.Time, int) ([]entities.Transaction, error)

	SaveDevice(context.Context, int64, string) error
	GetActiveDevice(context.Context, int64) (entities.Device, error)
}

type PostgresStorage struct {
	db *sqlx.DB
}

func NewPostgresStorage(db *sqlx.DB) (*PostgresStorage, error) {
	storage := &PostgresStorage{db: db}

	err := storage.runMigrations(context.Background())
	if err != nil {
		return nil, err
	}

	return storage, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pgerrcode.IsIntegrityConstraintViolation(string(pqErr.Code)) {
		return ErrConflict
	}

	return err
}

func (s *PostgresStorage) GetUser(ctx context.Context, userID int64) (entities.User, error) {
	var user entities.User

	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1;", userID)
	if err != nil {
		return entities.User{}, mapError(err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (entities.User, error) {
	var user entities.User

	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE lower(email) = lower($1);", email)
	if err != nil {
		return entities.User{}, mapError(err)
	}

	return user, nil
}

func (s *PostgresStorage) GetShop(ctx context.Context, shopID int64) (entities.Shop, error) {
	var shop entities.Shop

	err := s.db.GetContext(ctx, &shop, "SELECT * FROM shops WHERE id = $1;", shopID)
	if err != nil {
		return entities.Shop{}, mapError(err)
	}

	return shop, nil
}

func (s *PostgresStorage) GetWarehouseByCode(ctx context.Context, shopID int64, code string) (entities.Warehouse, error) {
	var warehouse entities.Warehouse

	err := s.db.GetContext(ctx, &warehouse, "SELECT * FROM warehouses WHERE shop_id = $1 AND code = $2;", shopID, code)
	if err != nil {
		return entities.Warehouse{}, mapError(err)
	}

	return warehouse, nil
}

func (s *PostgresStorage) SaveDevice(ctx context.Context, userID int64, registrationID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO devices (user_id, registration_id, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (registration_id) DO UPDATE
		SET user_id = EXCLUDED.user_id, active = TRUE, created_at = CURRENT_TIMESTAMP;`,
		userID, registrationID,
	)

	return mapError(err)
}

func (s *PostgresStorage) GetActiveDevice(ctx context.Context, userID int64) (entities.Device, error) {
	var device entities.Device

	err := s.db.GetContext(
		ctx,
		&device,
		"SELECT * FROM devices WHERE user_id = $1 AND active ORDER BY created_at DESC, id DESC LIMIT 1;",
		userID,
	)
	if err != nil {
		return entities.Device{}, mapError(err)
	}

	return device, nil
}

func (s *PostgresStorage) runMigrations(ctx context.Context) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	for _, statement := range migrations {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return err
		}
	}

	return tx.Commit()
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS shops(
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		allow_prepayment BOOLEAN NOT NULL DEFAULT FALSE,
		default_delivery_fee NUMERIC(10, 2) NOT NULL DEFAULT 0
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS users(
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role VARCHAR(16) NOT NULL,
		shop_id BIGINT NOT NULL,
		CONSTRAINT fk_shop FOREIGN KEY(shop_id) REFERENCES shops(id) ON DELETE CASCADE
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS warehouses(
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL,
		code VARCHAR(64) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		UNIQUE (shop_id, code),
		CONSTRAINT fk_shop FOREIGN KEY(shop_id) REFERENCES shops(id) ON DELETE CASCADE
	);
	`,
	`CREATE SEQUENCE IF NOT EXISTS order_number_seq START WITH 1;`,
	`
	CREATE TABLE IF NOT EXISTS orders(
		id BIGSERIAL PRIMARY KEY,
		order_number BIGINT NOT NULL UNIQUE,
		status VARCHAR(16) NOT NULL,
		shop_id BIGINT NOT NULL,
		driver_id BIGINT,
		warehouse_id BIGINT,
		address TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		delivery_fee NUMERIC(10, 2) NOT NULL DEFAULT 0,
		buyer_name VARCHAR(128) NOT NULL DEFAULT '',
		buyer_phone VARCHAR(20) NOT NULL DEFAULT '',
		buyer_email TEXT NOT NULL DEFAULT '',
		payment_method VARCHAR(8) NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		is_payment_link BOOLEAN NOT NULL DEFAULT FALSE,
		payment_link_id VARCHAR(16) UNIQUE,
		verification_required BOOLEAN NOT NULL DEFAULT FALSE,
		pending_transaction BOOLEAN NOT NULL DEFAULT FALSE,
		verification_code VARCHAR(8) NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ,
		CONSTRAINT fk_shop FOREIGN KEY(shop_id) REFERENCES shops(id) ON DELETE CASCADE,
		CONSTRAINT fk_driver FOREIGN KEY(driver_id) REFERENCES users(id) ON DELETE SET NULL,
		CONSTRAINT fk_warehouse FOREIGN KEY(warehouse_id) REFERENCES warehouses(id) ON DELETE SET NULL
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS positions(
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		item_id VARCHAR(64) NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		quantity INT NOT NULL CHECK (quantity >= 1),
		price NUMERIC(10, 2) NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'KES',
		CONSTRAINT fk_order FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE CASCADE
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS transactions(
		id BIGSERIAL PRIMARY KEY,
		type VARCHAR(16) NOT NULL,
		amount NUMERIC(10, 2) NOT NULL,
		party_a VARCHAR(32) NOT NULL DEFAULT '',
		party_b VARCHAR(32) NOT NULL DEFAULT '',
		phone_number VARCHAR(32) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		response_code VARCHAR(8) NOT NULL DEFAULT '',
		response_description TEXT NOT NULL DEFAULT '',
		merchant_request_id VARCHAR(64) NOT NULL DEFAULT '',
		checkout_request_id VARCHAR(64) NOT NULL DEFAULT '',
		result_code INT,
		result_desc TEXT NOT NULL DEFAULT '',
		customer_message TEXT NOT NULL DEFAULT '',
		response_data TEXT NOT NULL DEFAULT '',
		callback_data TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`,
	`CREATE INDEX IF NOT EXISTS transactions_request_ids ON transactions (merchant_request_id, checkout_request_id);`,
	`
	CREATE TABLE IF NOT EXISTS payments(
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL UNIQUE,
		transaction_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMPTZ,
		CONSTRAINT fk_order FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE CASCADE,
		CONSTRAINT fk_transaction FOREIGN KEY(transaction_id) REFERENCES transactions(id) ON DELETE SET NULL
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS assignments(
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		driver_id BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_order FOREIGN KEY(order_id) REFERENCES orders(id) ON DELETE CASCADE,
		CONSTRAINT fk_driver FOREIGN KEY(driver_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS devices(
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		registration_id TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_user FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`,
}
