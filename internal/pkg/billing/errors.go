package billing

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrMissingOrderID       = errors.New("missing order id")
	ErrInvalidToken         = errors.New("invalid verification token")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrPaymentNotFound      = errors.New("payment record not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrNoCreditsRemaining   = errors.New("no credits remaining")
	ErrBusy                 = errors.New("another delivery for this key is in progress")
	ErrStorage              = errors.New("storage failure")
)

// Error pairs a sentinel kind with the message returned to the caller.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func storageError(message string, cause error) *Error {
	return newError(ErrStorage, message, cause)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// MessageFor returns the caller-facing message of err.
func MessageFor(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error processing webhook"
}

// StatusFor maps an error from this package to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrMissingOrderID),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrSubscriptionNotFound),
		errors.Is(err, ErrUserNotFound):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoActiveSubscription), errors.Is(err, ErrNoCreditsRemaining):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
