package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatrail/ticket-ledger/internal/domain"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeForbidden        ErrorCode = "forbidden"
	errCodeConflict         ErrorCode = "conflict"
	errCodeInvariant        ErrorCode = "invariant_violation"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

// respondValidationError sends a 400 Bad Request with validation error
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, http.StatusBadRequest, errCodeValidationFailed, "Validation failed", details)
}

// respondLedgerError maps a ledger error to an HTTP response. Errors
// without a ledger code fall through as validation failures, matching how
// field-presence checks are reported.
func respondLedgerError(c *gin.Context, err error) {
	switch domain.CodeOf(err) {
	case domain.CodeNotInitialized:
		respondWithError(c, http.StatusConflict, errCodeConflict, "Ledger not initialized", err.Error())
	case domain.CodeUnauthorized:
		respondWithError(c, http.StatusForbidden, errCodeForbidden, "Operation not permitted", err.Error())
	case domain.CodeNotFound:
		respondWithError(c, http.StatusNotFound, errCodeNotFound, "Not found", err.Error())
	case domain.CodeConflict:
		respondWithError(c, http.StatusConflict, errCodeConflict, "Conflict", err.Error())
	case domain.CodeValidation:
		respondValidationError(c, err.Error())
	case domain.CodeInvariant:
		respondWithError(c, http.StatusUnprocessableEntity, errCodeInvariant, "Invariant violation", err.Error())
	default:
		respondValidationError(c, err.Error())
	}
}
