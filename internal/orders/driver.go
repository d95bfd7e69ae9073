package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
)

// driverSteps are the moves a driver makes on an accepted order.
var driverSteps = map[entities.OrderStatus]entities.OrderStatus{
	entities.OrderStatusAccepted: entities.OrderStatusPickedUp,
	entities.OrderStatusPickedUp: entities.OrderStatusDelivered,
}

func (s *Service) lastDriverAssignment(ctx context.Context, orderID int64, driverID int64) (entities.Assignment, bool, error) {
	assignments, err := s.storage.GetAssignments(ctx, orderID)
	if err != nil {
		return entities.Assignment{}, false, fmt.Errorf("error get assignments: %w", err)
	}

	var (
		last  entities.Assignment
		found bool
	)

	for _, assignment := range assignments {
		if assignment.DriverID == driverID {
			last, found = assignment, true
		}
	}

	return last, found, nil
}

// respond runs an accept or skip decision for the driver's last assignment.
func (s *Service) respond(ctx context.Context, driver Actor, orderID int64, cannot string, apply func(*entities.Order, *entities.Assignment)) (entities.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, driver.ShopID, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status != entities.OrderStatusAssigned {
		return entities.Order{}, newStateError(ErrInvalidTransition, cannot)
	}

	assignment, ok, err := s.lastDriverAssignment(ctx, order.ID, driver.UserID)
	if err != nil {
		return entities.Order{}, err
	}

	if !ok {
		return entities.Order{}, newStateError(ErrNotAssigned, MessageNotAssigned)
	}

	apply(&order, &assignment)

	if err := s.storage.SaveAssignment(ctx, order, assignment); err != nil {
		return entities.Order{}, fmt.Errorf("error save assignment: %w", err)
	}

	return order, nil
}

func (s *Service) Accept(ctx context.Context, driver Actor, orderID int64) (entities.Order, error) {
	return s.respond(ctx, driver, orderID, MessageCannotAccept, func(order *entities.Order, assignment *entities.Assignment) {
		driverID := driver.UserID

		assignment.Status = entities.AssignmentStatusAccepted
		order.DriverID = &driverID
		order.Status = entities.OrderStatusAccepted
	})
}

func (s *Service) Skip(ctx context.Context, driver Actor, orderID int64) (entities.Order, error) {
	return s.respond(ctx, driver, orderID, MessageCannotSkip, func(order *entities.Order, assignment *entities.Assignment) {
		assignment.Status = entities.AssignmentStatusRejected
		order.DriverID = nil
		order.Status = entities.OrderStatusNew
	})
}

// Confirm completes a delivered order. MPesa orders need the code that was
// sent to the buyer after payment; cash orders need none.
func (s *Service) Confirm(ctx context.Context, driver Actor, orderID int64, code string) (entities.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, driver.ShopID, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status.Terminal() {
		return entities.Order{}, newStateError(ErrInvalidTransition, MessageCannotConfirm)
	}

	if order.IsMpesa() && (code == "" || code != order.VerificationCode) {
		return entities.Order{}, errors.Join(
			ErrWrongVerificationCode,
			validation.New(orderDomain).
				Add("verification_code", validation.CodeWrongVerificationCode, "Incorrect verification code").
				Err(),
		)
	}

	previous := order.Status
	completedAt := s.now()

	order.Status = entities.OrderStatusCompleted
	order.CompletedAt = &completedAt

	if err := s.save(ctx, order, previous); err != nil {
		return entities.Order{}, err
	}

	return order, nil
}

// UpdateStatus moves an order the driver has accepted one step forward.
func (s *Service) UpdateStatus(ctx context.Context, driver Actor, orderID int64, status entities.OrderStatus) (entities.Order, error) {
	unlock, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	defer unlock()

	order, err := s.loadOrder(ctx, driver.ShopID, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if !order.HasDriver(driver.UserID) {
		return entities.Order{}, newStateError(ErrNotAssigned, MessageNotAssigned)
	}

	if next, ok := driverSteps[order.Status]; !ok || next != status {
		return entities.Order{}, newStateError(ErrInvalidTransition, MessageCannotUpdate)
	}

	previous := order.Status
	order.Status = status

	if err := s.save(ctx, order, previous); err != nil {
		return entities.Order{}, err
	}

	return order, nil
}

// DriverOrders lists the orders the driver is working on, or with history
// set, the finished orders the driver had accepted.
func (s *Service) DriverOrders(ctx context.Context, driver Actor, history bool) ([]entities.Order, error) {
	orders, err := s.storage.GetDriverOrders(ctx, driver.ShopID, driver.UserID, history)
	if err != nil {
		return nil, fmt.Errorf("error get driver orders: %w", err)
	}

	return orders, nil
}
