package models

import (
	"fmt"
	"time"
)

// Event types for Kafka messages
const (
	EventTypeReservationRequest = "reservation_request"
	EventTypeStockRejection     = "stock_rejection"
	EventTypeStockState         = "stock_state"
)

// Command types for the commands topic
const (
	CommandTypeConfirmHold = "confirm_hold"
	CommandTypeCancelHold  = "cancel_hold"
	CommandTypeRestock     = "restock"
)

// Rejection reasons
const (
	RejectionReasonInsufficientStock = "insufficient_stock"
	RejectionReasonUnknownItem       = "unknown_item"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	ErrorCodeInvalidField      ErrorCode = "INVALID_FIELD"
	ErrorCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrorCodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"
	ErrorCodeHoldNotFound      ErrorCode = "HOLD_NOT_FOUND"
	ErrorCodeItemNotFound      ErrorCode = "ITEM_NOT_FOUND"
	ErrorCodeInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError   ErrorCode = "VALIDATION_ERROR"
	ErrorCodePublishError      ErrorCode = "PUBLISH_ERROR"
)

const (
	ProblemTypeValidationError = "validation-error"
	ProblemTypeBusinessError   = "business-logic-error"
	ProblemTypeNotFound        = "not-found"
	ProblemTypeInternalError   = "internal-error"
)

// Wire contracts

// ReservationRequest is the message the basket side publishes when an item
// is added or its quantity changes. The field names are the queue contract:
// {"id": <itemId>, "quantity": <qty>, "basketId": <basket>}.
type ReservationRequest struct {
	ItemID   int    `json:"id"`
	Quantity int    `json:"quantity"`
	BasketID string `json:"basketId"`
}

// Validate checks the decoded request against the protocol preconditions.
func (r *ReservationRequest) Validate() error {
	if r.ItemID <= 0 {
		return NewValidationError("id", "item id must be positive", r.ItemID)
	}
	if r.Quantity <= 0 {
		return NewValidationError("quantity", "quantity must be positive", r.Quantity)
	}
	if r.BasketID == "" {
		return NewValidationError("basketId", "basket id is required", r.BasketID)
	}
	return nil
}

// StockCommand drives the hold transitions the request topic does not carry:
// confirming a hold into a permanent deduction, cancelling it early, or
// restocking an item through the same serialized ledger path.
type StockCommand struct {
	CommandID string    `json:"command_id"`
	Type      string    `json:"type"`
	ItemID    int       `json:"id"`
	Quantity  int       `json:"quantity,omitempty"`
	BasketID  string    `json:"basketId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks command fields against the command type.
func (c *StockCommand) Validate() error {
	if c.ItemID <= 0 {
		return NewValidationError("id", "item id must be positive", c.ItemID)
	}
	switch c.Type {
	case CommandTypeConfirmHold, CommandTypeCancelHold:
		if c.BasketID == "" {
			return NewValidationError("basketId", "basket id is required", c.BasketID)
		}
	case CommandTypeRestock:
		if c.Quantity <= 0 {
			return NewValidationError("quantity", "restock quantity must be positive", c.Quantity)
		}
	default:
		return NewValidationError("type", "unknown command type", c.Type)
	}
	return nil
}

// RejectionEvent is published when a reservation request is rejected for
// insufficient stock. Rejections are business outcomes, not errors; the
// basket side observes them through this event.
type RejectionEvent struct {
	EventID      string    `json:"event_id"`
	ItemID       int       `json:"item_id"`
	BasketID     string    `json:"basket_id"`
	RequestedQty int       `json:"requested_qty"`
	AvailableQty int       `json:"available_qty"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// StockState is the per-item availability snapshot published to the state
// topic after every ledger mutation. The reader service keeps its cache
// consistent from these.
type StockState struct {
	ItemID       int       `json:"item_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// API Request Models

// AddBasketItemRequest represents a basket item add / quantity change
type AddBasketItemRequest struct {
	ItemID   int `json:"item_id" binding:"required,min=1" validate:"required,min=1"`
	Quantity int `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// RestockRequest represents an administrative restock
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1" validate:"required,min=1"`
}

// API Response Models

// ReservationRequestedResponse acknowledges that a reservation request was
// queued. The reservation itself is eventually consistent with the basket.
type ReservationRequestedResponse struct {
	ItemID   int    `json:"item_id"`
	Quantity int    `json:"quantity"`
	BasketID string `json:"basket_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// AvailabilityResponse represents the response for stock availability
type AvailabilityResponse struct {
	ItemID       int       `json:"item_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	CacheHit     bool      `json:"cache_hit"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Error Handling Models

// ValidationError represents validation errors with detailed field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Value   any    `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// BusinessError represents business logic errors
type BusinessError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SystemError represents system-level errors (broker, cache)
type SystemError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"` // Don't expose internal error details in JSON
	Component string    `json:"component"`
}

func (e *SystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s in %s: %s (caused by: %v)", e.Code, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s in %s: %s", e.Code, e.Component, e.Message)
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}

// ProblemDetails is the RFC 7807 style error body used by all HTTP handlers
type ProblemDetails struct {
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	Status   int         `json:"status"`
	Detail   string      `json:"detail,omitempty"`
	Instance string      `json:"instance,omitempty"`
	Field    string      `json:"field,omitempty"`
	Code     string      `json:"code,omitempty"`
	Errors   interface{} `json:"errors,omitempty"`
}

func NewProblemDetails(status int, title, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   getProblemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// NewValidationProblem creates a validation error problem
func NewValidationProblem(field, message string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeValidationError,
		Title:  "Validation Failed",
		Status: 400,
		Detail: message,
		Field:  field,
		Code:   string(code),
	}
}

// NewMultiValidationProblem creates a multi-field validation error problem
func NewMultiValidationProblem(violations []ValidationError) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeValidationError,
		Title:  "Validation Failed",
		Status: 400,
		Detail: "Multiple validation errors occurred",
		Errors: violations,
	}
}

// NewBusinessLogicProblem creates a business logic error problem
func NewBusinessLogicProblem(status int, title, detail string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeBusinessError,
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   string(code),
	}
}

// NewNotFoundProblem creates a not found error problem
func NewNotFoundProblem(resource string) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeNotFound,
		Title:  "Resource Not Found",
		Status: 404,
		Detail: resource + " not found",
	}
}

func getProblemType(status int) string {
	switch status {
	case 400:
		return ProblemTypeValidationError
	case 404:
		return ProblemTypeNotFound
	case 409, 422:
		return ProblemTypeBusinessError
	default:
		return ProblemTypeInternalError
	}
}

// Error factory functions

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

func NewBusinessError(code ErrorCode, message string, details any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func NewSystemError(code ErrorCode, component, message string, cause error) *SystemError {
	return &SystemError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Component: component,
	}
}

// Error type guards

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

func IsBusinessError(err error) bool {
	_, ok := err.(*BusinessError)
	return ok
}

func IsSystemError(err error) bool {
	_, ok := err.(*SystemError)
	return ok
}
