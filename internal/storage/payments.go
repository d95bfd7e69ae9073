package storage

import (
	"context"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
)

func (s *PostgresStorage) GetOrderPayment(ctx context.Context, orderID int64) (entities.Payment, error) {
	var payment entities.Payment

	if err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE order_id = $1;", orderID); err != nil {
		return entities.Payment{}, mapError(err)
	}

	return payment, nil
}

func (s *PostgresStorage) GetPaymentByTransaction(ctx context.Context, transactionID int64) (entities.Payment, error) {
	var payment entities.Payment

	if err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE transaction_id = $1;", transactionID); err != nil {
		return entities.Payment{}, mapError(err)
	}

	return payment, nil
}

// ReplacePayment drops the order's previous payment and creates an empty one.
func (s *PostgresStorage) ReplacePayment(ctx context.Context, orderID int64) (entities.Payment, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return entities.Payment{}, err
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE order_id = $1;", orderID); err != nil {
		return entities.Payment{}, err
	}

	var payment entities.Payment

	if err := tx.GetContext(
		ctx,
		&payment,
		"INSERT INTO payments (order_id) VALUES ($1) RETURNING *;",
		orderID,
	); err != nil {
		return entities.Payment{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return entities.Payment{}, err
	}

	return payment, nil
}

func (s *PostgresStorage) DeletePayment(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE order_id = $1;", orderID)

	return err
}

func (s *PostgresStorage) AttachTransaction(ctx context.Context, paymentID int64, transactionID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE payments SET transaction_id = $1 WHERE id = $2;", transactionID, paymentID)

	return mapError(err)
}

func (s *PostgresStorage) MarkPaymentProcessed(ctx context.Context, paymentID int64, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE payments SET processed_at = $1 WHERE id = $2;", processedAt, paymentID)

	return err
}

func (s *PostgresStorage) CreateTransaction(ctx context.Context, txn *entities.Transaction) error {
	row := s.db.QueryRowxContext(
		ctx,
		`INSERT INTO transactions (
			type, amount, party_a, party_b, phone_number, description, status, response_code,
			response_description, merchant_request_id, checkout_request_id, result_code,
			result_desc, customer_message, response_data, callback_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at;`,
		txn.Type, txn.Amount, txn.PartyA, txn.PartyB, txn.PhoneNumber, txn.Description, txn.Status,
		txn.ResponseCode, txn.ResponseDescription, txn.MerchantRequestID, txn.CheckoutRequestID,
		txn.ResultCode, txn.ResultDesc, txn.CustomerMessage, txn.ResponseData, txn.CallbackData,
	)

	if err := row.Err(); err != nil {
		return mapError(err)
	}

	return mapError(row.Scan(&txn.ID, &txn.CreatedAt))
}

func (s *PostgresStorage) UpdateTransaction(ctx context.Context, txn entities.Transaction) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE transactions SET
			status = $1, response_code = $2, response_description = $3, merchant_request_id = $4,
			checkout_request_id = $5, result_code = $6, result_desc = $7, customer_message = $8,
			response_data = $9, callback_data = $10
		WHERE id = $11;`,
		txn.Status, txn.ResponseCode, txn.ResponseDescription, txn.MerchantRequestID,
		txn.CheckoutRequestID, txn.ResultCode, txn.ResultDesc, txn.CustomerMessage,
		txn.ResponseData, txn.CallbackData, txn.ID,
	)
	if err != nil {
		return err
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

// MarkTransactionExpired fails the transaction only while it is still NEW and
// reports whether it did.
func (s *PostgresStorage) MarkTransactionExpired(ctx context.Context, transactionID int64) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		"UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3;",
		entities.TransactionStatusFailed, transactionID, entities.TransactionStatusNew,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (s *PostgresStorage) GetTransaction(ctx context.Context, transactionID int64) (entities.Transaction, error) {
	var txn entities.Transaction

	if err := s.db.GetContext(ctx, &txn, "SELECT * FROM transactions WHERE id = $1;", transactionID); err != nil {
		return entities.Transaction{}, mapError(err)
	}

	return txn, nil
}

func (s *PostgresStorage) GetLatestTransaction(ctx context.Context, merchantRequestID string, checkoutRequestID string) (entities.Transaction, error) {
	var txn entities.Transaction

	if err := s.db.GetContext(
		ctx,
		&txn,
		`SELECT * FROM transactions
		WHERE merchant_request_id = $1 AND checkout_request_id = $2
		ORDER BY created_at DESC, id DESC LIMIT 1;`,
		merchantRequestID, checkoutRequestID,
	); err != nil {
		return entities.Transaction{}, mapError(err)
	}

	return txn, nil
}

// GetStaleTransactions returns payment transactions that are still NEW and
// were created before createdBefore, oldest first.
func (s *PostgresStorage) GetStaleTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]entities.Transaction, error) {
	var txns []entities.Transaction

	if err := s.db.SelectContext(
		ctx,
		&txns,
		`SELECT * FROM transactions
		WHERE type = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at, id LIMIT $4;`,
		entities.TransactionTypePayment, entities.TransactionStatusNew, createdBefore, limit,
	); err != nil {
		return nil, err
	}

	return txns, nil
}
