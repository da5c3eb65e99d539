package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes surfaced to API clients.
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeCapacityExceeded = "CAPACITY_EXCEEDED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeSessionInvalid   = "SESSION_INVALID"
	ErrCodeConflictRejected = "CONFLICT_REJECTED"
	ErrCodeConflictPending  = "CONFLICT_PENDING"
	ErrCodeUnknownOperation = "UNKNOWN_OPERATION_TYPE"
	ErrCodeStorageFailure   = "STORAGE_FAILURE"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// AppError carries a machine-readable code alongside a human message.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAppError creates an AppError with the given code, message and details.
func NewAppError(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

// SendError writes a JSON error envelope with the given status.
func SendError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// SendSuccess writes a JSON data envelope.
func SendSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeCapacityExceeded, ErrCodeConflictRejected:
		return http.StatusConflict
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeSessionInvalid, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeValidation, ErrCodeUnknownOperation:
		return http.StatusBadRequest
	case ErrCodeConflictPending:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
