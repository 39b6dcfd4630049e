package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrInternal     = errors.New("internal error")
)

// Domain sentinel errors for the session and cart state machines.
var (
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrExpiredChallenge   = errors.New("challenge expired")
	ErrChallengeConsumed  = errors.New("challenge already consumed")
	ErrOTPLocked          = errors.New("challenge locked after too many attempts")
	ErrNotPending         = errors.New("session is not pending profile completion")
	ErrUnauthenticated    = errors.New("session is not authenticated")
	ErrUnknownCart        = errors.New("unknown cart")
	ErrNotOpen            = errors.New("cart is not open")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCartBusy           = errors.New("cart is busy")
	ErrInvalidOperation   = errors.New("invalid cart operation")
	ErrDeviceUnauthorized = errors.New("device not authorized")
	ErrDisconnectedStore  = errors.New("store graph is disconnected")
	ErrUnreachableItem    = errors.New("item location unreachable")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// RateLimited creates a 429 error.
func RateLimited(message string) *AppError {
	return &AppError{
		Code:    "RATE_LIMITED",
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// InvalidOTP creates a 400 error for an OTP code mismatch.
func InvalidOTP() *AppError {
	return &AppError{
		Code:    "INVALID_OTP",
		Message: "the one-time passcode is incorrect",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidOTP,
	}
}

// ExpiredChallenge creates a 400 error for an expired or superseded OTP challenge.
func ExpiredChallenge() *AppError {
	return &AppError{
		Code:    "EXPIRED_CHALLENGE",
		Message: "the challenge has expired, request a new passcode",
		Status:  http.StatusBadRequest,
		Err:     ErrExpiredChallenge,
	}
}

// ChallengeConsumed creates a 409 error for a challenge that was already used.
func ChallengeConsumed() *AppError {
	return &AppError{
		Code:    "CHALLENGE_CONSUMED",
		Message: "the challenge has already been used",
		Status:  http.StatusConflict,
		Err:     ErrChallengeConsumed,
	}
}

// OTPLocked creates a 429 error after too many failed verification attempts.
func OTPLocked() *AppError {
	return &AppError{
		Code:    "OTP_LOCKED",
		Message: "too many failed attempts, request a new passcode",
		Status:  http.StatusTooManyRequests,
		Err:     ErrOTPLocked,
	}
}

// NotPending creates a 409 error for profile completion outside the pending window.
func NotPending() *AppError {
	return &AppError{
		Code:    "NOT_PENDING",
		Message: "session is not awaiting profile completion",
		Status:  http.StatusConflict,
		Err:     ErrNotPending,
	}
}

// Unauthenticated creates a 401 error for cart access without an active session.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthenticated,
	}
}

// UnknownCart creates a 404 error for a cart that does not exist.
func UnknownCart(cartID string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_CART",
		Message: fmt.Sprintf("cart %s not found", cartID),
		Status:  http.StatusNotFound,
		Err:     ErrUnknownCart,
	}
}

// NotOpen creates a 409 error for mutations against a closed cart.
func NotOpen(cartID string) *AppError {
	return &AppError{
		Code:    "NOT_OPEN",
		Message: fmt.Sprintf("cart %s is not open", cartID),
		Status:  http.StatusConflict,
		Err:     ErrNotOpen,
	}
}

// EmptyCart creates a 422 error for checkout of a cart with no lines.
func EmptyCart(cartID string) *AppError {
	return &AppError{
		Code:    "EMPTY_CART",
		Message: fmt.Sprintf("cart %s has no items", cartID),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrEmptyCart,
	}
}

// CartBusy creates a 503 error when the cart's serialization point could not be
// acquired in time. The caller may retry with backoff; no partial application
// has occurred.
func CartBusy(cartID string) *AppError {
	return &AppError{
		Code:    "CART_BUSY",
		Message: fmt.Sprintf("cart %s is busy, retry later", cartID),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrCartBusy,
	}
}

// InvalidOperation creates a 400 error for a mutation that cannot be applied.
func InvalidOperation(message string) *AppError {
	return &AppError{
		Code:    "INVALID_OPERATION",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidOperation,
	}
}

// DeviceUnauthorized creates a 401 error for events from unbound or unknown devices.
func DeviceUnauthorized(deviceID string) *AppError {
	return &AppError{
		Code:    "DEVICE_UNAUTHORIZED",
		Message: fmt.Sprintf("device %s is not bound to a cart", deviceID),
		Status:  http.StatusUnauthorized,
		Err:     ErrDeviceUnauthorized,
	}
}

// DisconnectedStore creates a 500 error for an invalid store layout. This is a
// load-time configuration failure, not a runtime condition.
func DisconnectedStore(detail string) *AppError {
	return &AppError{
		Code:    "DISCONNECTED_STORE",
		Message: detail,
		Status:  http.StatusInternalServerError,
		Err:     ErrDisconnectedStore,
	}
}

// UnreachableItem creates a 422 error for a product whose shelf location is not
// reachable from the shopper's position.
func UnreachableItem(productID string) *AppError {
	return &AppError{
		Code:    "UNREACHABLE_ITEM",
		Message: fmt.Sprintf("no reachable shelf location for product %s", productID),
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrUnreachableItem,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownCart):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotOpen), errors.Is(err, ErrChallengeConsumed), errors.Is(err, ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidOTP), errors.Is(err, ErrExpiredChallenge), errors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrDeviceUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrOTPLocked), errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrUnreachableItem):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCartBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
