// Package handlers – error codes
//
// Symbolic error code constants mapped to HTTP responses via fail().
// Codes are lowercase snake_case and stable: clients branch on them.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSyncFailed = "sync_failed"
	ErrCodeListFailed = "list_failed"
)
