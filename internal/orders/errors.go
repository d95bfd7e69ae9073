package orders

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidTransition     = errors.New("invalid order transition")
	ErrNotAssigned           = errors.New("order is not assigned to driver")
	ErrDriverNotInShop       = errors.New("driver does not belong to the shop")
	ErrDriverAlreadyAssigned = errors.New("driver is already assigned to the order")
	ErrWrongVerificationCode = errors.New("wrong verification code")
	ErrRefundFailed          = errors.New("refund failed")
	ErrPaymentLinkExpired    = errors.New("payment link expired")
	ErrOrderNumberTaken      = errors.New("order number is taken")
	ErrNoTransaction         = errors.New("order has no transaction")
)

const (
	MessageNotAssigned   = "This order is not assigned to you"
	MessageCannotAccept  = "Current order cannot be accepted at the moment"
	MessageCannotSkip    = "Current order cannot be skipped at the moment"
	MessageCannotConfirm = "Current order cannot be confirmed at the moment"
	MessageCannotCancel  = "Current order cannot be canceled at the moment"
	MessageCannotAssign  = "Current order cannot be assigned at the moment"
	MessageCannotUpdate  = "Current order status cannot be changed to the requested one"
	MessageCannotPay     = "Current order cannot be paid at the moment"
	MessageRefundFailed  = "Failed to refund the order payment"
	MessageAlreadyDriver = "The driver is already assigned to this order"

	MessageAccepted      = "Order accepted"
	MessageSkipped       = "Order skipped"
	MessageConfirmed     = "Order confirmed"
	MessagePaySent       = "Paid request sent successfully"
	MessagePayNotSent    = "Failed to send paid request"
	MessageStatusUpdated = "Order status updated"
)

// StateError is a rejected action that carries the message shown to the
// caller. Nothing is changed when one is returned.
type StateError struct {
	err     error
	Message string
}

func newStateError(err error, message string) *StateError {
	return &StateError{err: err, Message: message}
}

func (e *StateError) Error() string {
	if e.err == nil {
		return e.Message
	}

	return e.err.Error() + ": " + e.Message
}

func (e *StateError) Unwrap() error {
	return e.err
}
