package storage

import (
	"context"
	"fmt"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// paidCondition mirrors what the back office counts as a live order: cash,
// payment link, or MPesa with a successful transaction behind the payment.
const paidCondition = `(
	o.payment_method = 'CASH'
	OR o.is_payment_link
	OR (o.payment_method = 'MPESA' AND EXISTS (
		SELECT 1 FROM payments p JOIN transactions t ON t.id = p.transaction_id
		WHERE p.order_id = o.id AND t.status = 'SUCCESS'
	))
)`

const terminalCondition = `o.status IN ('CANCELED', 'COMPLETED')`

func (s *PostgresStorage) CreateOrder(ctx context.Context, order *entities.Order) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if order.Number == 0 {
		if err := tx.GetContext(ctx, &order.Number, "SELECT nextval('order_number_seq');"); err != nil {
			return fmt.Errorf("error allocate order number: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(
			ctx,
			"SELECT setval('order_number_seq', GREATEST($1, (SELECT last_value FROM order_number_seq)));",
			order.Number,
		); err != nil {
			return fmt.Errorf("error advance order number sequence: %w", err)
		}
	}

	row := tx.QueryRowxContext(
		ctx,
		`INSERT INTO orders (
			order_number, status, shop_id, driver_id, warehouse_id, address, latitude, longitude,
			delivery_fee, buyer_name, buyer_phone, buyer_email, payment_method, is_paid,
			is_payment_link, payment_link_id, verification_required, pending_transaction,
			verification_code, comment
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at;`,
		order.Number, order.Status, order.ShopID, order.DriverID, order.WarehouseID, order.Address,
		order.Latitude, order.Longitude, order.DeliveryFee, order.BuyerName, order.BuyerPhone,
		order.BuyerEmail, order.PaymentMethod, order.IsPaid, order.IsPaymentLink, order.PaymentLinkID,
		order.VerificationRequired, order.PendingTransaction, order.VerificationCode, order.Comment,
	)

	if err := row.Err(); err != nil {
		return mapError(err)
	}

	if err := row.Scan(&order.ID, &order.CreatedAt); err != nil {
		return mapError(err)
	}

	for i := range order.Positions {
		position := &order.Positions[i]
		position.OrderID = order.ID

		if position.Currency == "" {
			position.Currency = entities.DefaultCurrency
		}

		if err := tx.GetContext(
			ctx,
			&position.ID,
			`INSERT INTO positions (order_id, item_id, name, quantity, price, currency)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id;`,
			position.OrderID, position.ItemID, position.Name, position.Quantity, position.Price, position.Currency,
		); err != nil {
			return mapError(err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStorage) UpdateOrder(ctx context.Context, order entities.Order) error {
	return updateOrder(ctx, s.db, order)
}

func updateOrder(ctx context.Context, db sqlx.ExecerContext, order entities.Order) error {
	result, err := db.ExecContext(
		ctx,
		`UPDATE orders SET
			status = $1, driver_id = $2, warehouse_id = $3, address = $4, latitude = $5,
			longitude = $6, delivery_fee = $7, buyer_name = $8, buyer_phone = $9, buyer_email = $10,
			payment_method = $11, is_paid = $12, is_payment_link = $13, payment_link_id = $14,
			verification_required = $15, pending_transaction = $16, verification_code = $17,
			comment = $18, completed_at = $19
		WHERE id = $20;`,
		order.Status, order.DriverID, order.WarehouseID, order.Address, order.Latitude,
		order.Longitude, order.DeliveryFee, order.BuyerName, order.BuyerPhone, order.BuyerEmail,
		order.PaymentMethod, order.IsPaid, order.IsPaymentLink, order.PaymentLinkID,
		order.VerificationRequired, order.PendingTransaction, order.VerificationCode,
		order.Comment, order.CompletedAt, order.ID,
	)
	if err != nil {
		return mapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrNoRows
	}

	return nil
}

func (s *PostgresStorage) GetOrder(ctx context.Context, orderID int64) (entities.Order, error) {
	var order entities.Order

	if err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1;", orderID); err != nil {
		return entities.Order{}, mapError(err)
	}

	orders := []entities.Order{order}
	if err := s.loadPositions(ctx, orders); err != nil {
		return entities.Order{}, err
	}

	return orders[0], nil
}

func (s *PostgresStorage) GetOrderByPaymentLink(ctx context.Context, linkID string) (entities.Order, error) {
	var order entities.Order

	if err := s.db.GetContext(
		ctx,
		&order,
		"SELECT * FROM orders WHERE payment_link_id = $1 AND is_payment_link;",
		linkID,
	); err != nil {
		return entities.Order{}, mapError(err)
	}

	orders := []entities.Order{order}
	if err := s.loadPositions(ctx, orders); err != nil {
		return entities.Order{}, err
	}

	return orders[0], nil
}

func (s *PostgresStorage) GetShopOrders(ctx context.Context, shopID int64, filter OrderFilter) ([]entities.Order, error) {
	var (
		orders []entities.Order
		query  string
	)

	switch filter {
	case OrderFilterOpen:
		query = "SELECT o.* FROM orders o WHERE o.shop_id = $1 AND " + paidCondition +
			" AND NOT " + terminalCondition + " ORDER BY o.created_at DESC;"
	case OrderFilterRecent:
		query = "SELECT o.* FROM orders o WHERE o.shop_id = $1 AND " + paidCondition +
			" AND " + terminalCondition + " ORDER BY o.completed_at DESC NULLS LAST;"
	default:
		query = "SELECT o.* FROM orders o WHERE o.shop_id = $1 ORDER BY o.created_at DESC;"
	}

	if err := s.db.SelectContext(ctx, &orders, query, shopID); err != nil {
		return nil, err
	}

	if err := s.loadPositions(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetDriverOrders returns the driver's open orders whose last assignment to
// the driver is not rejected, or with history set, finished orders the
// driver accepted last.
func (s *PostgresStorage) GetDriverOrders(ctx context.Context, shopID int64, driverID int64, history bool) ([]entities.Order, error) {
	var orders []entities.Order

	query := `
		WITH last AS (
			SELECT DISTINCT ON (order_id) order_id, status
			FROM assignments
			WHERE driver_id = $2
			ORDER BY order_id, created_at DESC, id DESC
		)
		SELECT o.* FROM orders o JOIN last ON last.order_id = o.id
		WHERE o.shop_id = $1 AND ` + paidCondition

	if history {
		query += " AND last.status = 'ACCEPTED' AND " + terminalCondition + " ORDER BY o.completed_at DESC NULLS LAST;"
	} else {
		query += " AND last.status <> 'REJECTED' AND NOT " + terminalCondition + " ORDER BY o.created_at DESC;"
	}

	if err := s.db.SelectContext(ctx, &orders, query, shopID, driverID); err != nil {
		return nil, err
	}

	if err := s.loadPositions(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *PostgresStorage) loadPositions(ctx context.Context, orders []entities.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
	}

	var positions []entities.Position

	if err := s.db.SelectContext(
		ctx,
		&positions,
		"SELECT * FROM positions WHERE order_id = ANY($1) ORDER BY id;",
		pq.Array(ids),
	); err != nil {
		return err
	}

	for _, position := range positions {
		i := index[position.OrderID]
		orders[i].Positions = append(orders[i].Positions, position)
	}

	return nil
}
