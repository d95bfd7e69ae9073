package storage

import (
	"context"

	"github.com/VladKvetkin/ofinta/internal/entities"
)

func (s *PostgresStorage) GetAssignments(ctx context.Context, orderID int64) ([]entities.Assignment, error) {
	var assignments []entities.Assignment

	err := s.db.SelectContext(
		ctx,
		&assignments,
		"SELECT * FROM assignments WHERE order_id = $1 ORDER BY created_at ASC, id ASC;",
		orderID,
	)
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

// ReassignOrder deletes the order's live assignments, records the new one and
// saves the order in a single transaction. It returns the deleted rows so
// their drivers can be told.
func (s *PostgresStorage) ReassignOrder(ctx context.Context, order entities.Order, assignment *entities.Assignment) ([]entities.Assignment, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}

	defer tx.Rollback()

	var removed []entities.Assignment

	if err := tx.SelectContext(
		ctx,
		&removed,
		"DELETE FROM assignments WHERE order_id = $1 AND status IN ($2, $3) RETURNING *;",
		order.ID, entities.AssignmentStatusAssigned, entities.AssignmentStatusAccepted,
	); err != nil {
		return nil, err
	}

	assignment.OrderID = order.ID

	row := tx.QueryRowxContext(
		ctx,
		"INSERT INTO assignments (order_id, driver_id, status) VALUES ($1, $2, $3) RETURNING id, created_at;",
		assignment.OrderID, assignment.DriverID, assignment.Status,
	)

	if err := row.Err(); err != nil {
		return nil, mapError(err)
	}

	if err := row.Scan(&assignment.ID, &assignment.CreatedAt); err != nil {
		return nil, mapError(err)
	}

	if err := updateOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return removed, nil
}

// SaveAssignment writes an assignment status change together with the order.
func (s *PostgresStorage) SaveAssignment(ctx context.Context, order entities.Order, assignment entities.Assignment) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE assignments SET status = $1 WHERE id = $2;",
		assignment.Status, assignment.ID,
	); err != nil {
		return err
	}

	if err := updateOrder(ctx, tx, order); err != nil {
		return err
	}

	return tx.Commit()
}
