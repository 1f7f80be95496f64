package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Registry Configuration (CFG) ----

func ErrInvalidConfiguration(reason string) *AppError {
	return New("CFG_001", fmt.Sprintf("Invalid registry configuration: %s", reason), http.StatusBadRequest)
}

// ---- Escrow & Settlement (ESC) ----

func ErrUnauthorized() *AppError {
	return New("ESC_001", "Caller is not authorized for this operation", http.StatusForbidden)
}

func ErrInvalidState(status string) *AppError {
	return New("ESC_002", fmt.Sprintf("Session status %s does not permit this operation", status), http.StatusConflict)
}

func ErrInvalidAmount() *AppError {
	return New("ESC_003", "Amount must be a positive integer", http.StatusBadRequest)
}

func ErrAssetNotAccepted(asset string) *AppError {
	return New("ESC_004", fmt.Sprintf("Asset %s is not accepted by the merchant", asset), http.StatusBadRequest)
}

func ErrAssetNotRequested(asset string) *AppError {
	return New("ESC_005", fmt.Sprintf("Asset %s is not part of the requested splits", asset), http.StatusBadRequest)
}

func ErrOverfunded(asset string) *AppError {
	return New("ESC_006", fmt.Sprintf("Deposit would exceed the requested amount for %s", asset), http.StatusUnprocessableEntity)
}

func ErrNothingToSettle() *AppError {
	return New("ESC_007", "Session holds no deposits to settle", http.StatusUnprocessableEntity)
}

func ErrSwapFailed(err error) *AppError {
	return Wrap("ESC_008", "Swap execution could not be verified", http.StatusBadGateway, err)
}

func ErrInsufficientProceeds() *AppError {
	return New("ESC_009", "Settlement proceeds are below the required amount", http.StatusUnprocessableEntity)
}

func ErrInsufficientBalance() *AppError {
	return New("ESC_010", "Insufficient balance for transfer", http.StatusPaymentRequired)
}

func ErrNotFound(entity string) *AppError {
	return New("ESC_011", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns an ESC_003-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("ESC_003", message, http.StatusBadRequest)
}
