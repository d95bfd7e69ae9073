package entities

import "time"

type AssignmentStatus string

const (
	AssignmentStatusAssigned AssignmentStatus = "ASSIGNED"
	AssignmentStatusAccepted AssignmentStatus = "ACCEPTED"
	AssignmentStatusRejected AssignmentStatus = "REJECTED"
)

type Assignment struct {
	ID        int64            `db:"id"`
	OrderID   int64            `db:"order_id"`
	DriverID  int64            `db:"driver_id"`
	Status    AssignmentStatus `db:"status"`
	CreatedAt time.Time        `db:"created_at"`
}

// PushStatus is the status code carried by driver push notifications.
type PushStatus int

const (
	PushOrderAssigned   PushStatus = 0
	PushOrderChanged    PushStatus = 1
	PushOrderCanceled   PushStatus = 2
	PushOrderRemoved    PushStatus = 3
	PushOrderReassigned PushStatus = 4
	PushOrderPaySucceed PushStatus = 5
	PushOrderPayFailed  PushStatus = 6
)

func (s PushStatus) String() string {
	switch s {
	case PushOrderAssigned:
		return "ORDER_ASSIGNED"
	case PushOrderChanged:
		return "ORDER_CHANGED"
	case PushOrderCanceled:
		return "ORDER_CANCELED"
	case PushOrderRemoved:
		return "ORDER_REMOVED"
	case PushOrderReassigned:
		return "ORDER_REASSIGNED"
	case PushOrderPaySucceed:
		return "ORDER_PAY_SUCCEED"
	case PushOrderPayFailed:
		return "ORDER_PAY_FAILED"
	}

	return "UNKNOWN"
}

// AssignedDriver picks the driver responsible for order: its own driver, or
// the driver of the last assignment unless that one was rejected.
func AssignedDriver(order Order, assignments []Assignment) (int64, bool) {
	if order.DriverID != nil {
		return *order.DriverID, true
	}

	if len(assignments) == 0 {
		return 0, false
	}

	last := assignments[len(assignments)-1]
	if last.Status == AssignmentStatusRejected {
		return 0, false
	}

	return last.DriverID, true
}
