package domain

import (
	"errors"
	"fmt"
	"net/http"

	"marketplace/pkg/payout"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrActiveSettlementExists = errors.New("seller already has an active settlement")
	ErrAlreadyLocked          = errors.New("settlement is locked by another actor")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateTransaction   = errors.New("duplicate wallet transaction")
	ErrDuplicateCode          = errors.New("duplicate settlement code")
	ErrInsufficientBalance    = errors.New("insufficient wallet balance")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrInvalidState           = errors.New("invalid state")
)

// Validation codes.
const (
	CodeRequired              = "REQUIRED"
	CodeInvalidPeriod         = "INVALID_PERIOD"
	CodePeriodInFuture        = "PERIOD_END_IN_FUTURE"
	CodePeriodLength          = "INVALID_PERIOD_LENGTH"
	CodeUnsupportedCurrency   = "UNSUPPORTED_CURRENCY"
	CodeSettlementDate        = "SETTLEMENT_DATE_TOO_FAR"
	CodeNegativeAmount        = "NEGATIVE_AMOUNT"
	CodeTooManyDecimals       = "TOO_MANY_DECIMALS"
	CodeAmountTooLarge        = "AMOUNT_TOO_LARGE"
	CodeNetMismatch           = "NET_AMOUNT_MISMATCH"
	CodeNonPositiveNet        = "NON_POSITIVE_NET"
	CodeSellerInactive        = "SELLER_INACTIVE"
	CodeSellerNotVerified     = "SELLER_NOT_VERIFIED"
	CodeGatewayNotLinked      = "GATEWAY_NOT_LINKED"
	CodeInsufficientSettlable = "INSUFFICIENT_SETTLEABLE_BALANCE"
	CodeBelowMinimum          = "BELOW_MINIMUM_PAYOUT"
	CodeHoldPeriod            = "HOLD_PERIOD_NOT_ELAPSED"
	CodeBatchSize             = "INVALID_BATCH_SIZE"
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInvalidCategory       = "INVALID_CATEGORY"
	CodeCurrencyMismatch      = "CURRENCY_MISMATCH"
	CodeReconcileMismatch     = "RECONCILIATION_MISMATCH"
	CodeInvalidStatus         = "INVALID_STATUS"
)

// Conflict codes.
const (
	ConflictActiveSettlement = "ACTIVE_SETTLEMENT_EXISTS"
	ConflictAlreadyLocked    = "ALREADY_LOCKED"
	ConflictVersionMismatch  = "VERSION_MISMATCH"
	ConflictDuplicateTxn     = "DUPLICATE_TRANSACTION"
	ConflictDuplicateCode    = "DUPLICATE_SETTLEMENT_CODE"
)

type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func NewValidationError(code, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ConflictError struct {
	Code    string
	Message string
}

func NewConflict(code, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	switch e.Code {
	case ConflictActiveSettlement:
		return target == ErrActiveSettlementExists
	case ConflictAlreadyLocked:
		return target == ErrAlreadyLocked
	case ConflictVersionMismatch:
		return target == ErrConcurrentModification
	case ConflictDuplicateTxn:
		return target == ErrDuplicateTransaction
	case ConflictDuplicateCode:
		return target == ErrDuplicateCode
	}
	return false
}

type InsufficientBalanceError struct {
	Bucket    Bucket
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %s, need %s",
		e.Bucket, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// GatewayError is a payout provider failure carrying the provider code and a retryable flag.
type GatewayError = payout.Error

type InvalidStateTransitionError struct {
	From SettlementStatus
	To   SettlementStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot transition settlement from %s to %s", e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidStateError reports an operation that is not legal in the entity's current state.
type InvalidStateError struct {
	Entity  string
	ID      string
	State   string
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s in state %s: %s", e.Entity, e.ID, e.State, e.Message)
	}
	return fmt.Sprintf("%s in state %s: %s", e.Entity, e.State, e.Message)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// IsRetryable reports whether a failed payout attempt may be retried automatically.
// Validation failures and permanent provider rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Retryable
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidTransition):
		return false
	}
	return true
}

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	var (
		verr *ValidationError
		nerr *NotFoundError
		cerr *ConflictError
		berr *InsufficientBalanceError
		gerr *GatewayError
		terr *InvalidStateTransitionError
		serr *InvalidStateError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Code
	case errors.As(err, &nerr):
		return "NOT_FOUND"
	case errors.As(err, &cerr):
		return cerr.Code
	case errors.As(err, &berr):
		return "INSUFFICIENT_BALANCE"
	case errors.As(err, &gerr):
		return gerr.Code
	case errors.As(err, &terr):
		return "INVALID_STATE_TRANSITION"
	case errors.As(err, &serr):
		return "INVALID_STATE"
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus maps the error taxonomy onto response codes.
func HTTPStatus(err error) int {
	var gerr *GatewayError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
