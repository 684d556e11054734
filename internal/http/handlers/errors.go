// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These codes give clients a stable, machine-readable error taxonomy next to
// the human-readable message of the ErrorResponse envelope. Generic codes
// mirror HTTP status semantics; domain codes name what the register refused.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "validation rejected: security code: want 5"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeMalformedEntry   = "malformed_entry"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeStoreFailed      = "store_failed"
	ErrCodeEmptyBatch       = "empty_batch"
	ErrCodeListFailed       = "list_failed"
	ErrCodeCacheFailed      = "cache_failed"
)
