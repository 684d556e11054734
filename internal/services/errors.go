// Package services defines the business logic of the travel register: the
// ingest pipeline, the tagged response cache, and the register read views.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

// Ingest rejections. They are carried by Outcome.Err rather than returned,
// except ErrStoreFailure which wraps every persistence error.
var (
	// ErrAuthRejected indicates that the sender credentials or the
	// destination number did not match the configuration.
	ErrAuthRejected = errors.New("sender not authorized")

	// ErrMalformedInput indicates that the body does not split into the
	// expected number of fields.
	ErrMalformedInput = errors.New("malformed register entry")

	// ErrValidationRejected indicates a bad date or checksum mismatch.
	ErrValidationRejected = errors.New("register entry failed validation")

	// ErrStoreFailure wraps errors of the underlying persistence layer.
	ErrStoreFailure = errors.New("register store failure")
)

// Register read/write errors.
var (
	// ErrEntryNotFound indicates that no register entry has the given id.
	ErrEntryNotFound = errors.New("register entry not found")

	// ErrEmptyBatch is returned when a bulk submission has no entry line.
	ErrEmptyBatch = errors.New("batch contains no entries")

	// ErrNoTags is returned when an invalidation names no tag.
	ErrNoTags = errors.New("at least one tag is required")
)
