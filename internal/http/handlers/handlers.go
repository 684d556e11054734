// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below, and translate results
// into HTTP responses (including conditional responses on the read views).
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/services"
)

// IngestService turns inbound messages and bulk text into register entries.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IngestService interface {
	// Submit runs one inbound SMS through the pipeline. Rejections are
	// reported in the Outcome; the error is reserved for store failures.
	Submit(ctx context.Context, msg services.InboundSMS) (services.Outcome, error)
	// SubmitBatch stores newline-separated entries and reports per line.
	SubmitBatch(ctx context.Context, text string) (services.BatchReport, error)
}

// RegisterService serves the register read views and deletions.
type RegisterService interface {
	// ListPage returns a page of entries, newest first, and the total.
	ListPage(ctx context.Context, f domain.EntryFilter, page, pageSize int) ([]domain.RegisterEntry, int64, error)
	// Export renders entries in the positional text format.
	Export(ctx context.Context, f domain.EntryFilter) (string, error)
	// Get returns one entry.
	Get(ctx context.Context, id string) (*domain.RegisterEntry, error)
	// Delete removes one entry.
	Delete(ctx context.Context, id string) error
	// Stats returns the number of entries and the latest change.
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// CacheService provides Last-Modified markers for cached views.
type CacheService interface {
	// MarkerFor returns the Last-Modified time of key, creating it if absent.
	MarkerFor(ctx context.Context, key string, tags ...string) (time.Time, error)
	// Invalidate drops every marker carrying one of tags.
	Invalidate(ctx context.Context, tags ...string) (int64, error)
}

// Handlers groups the HTTP endpoints of the register.
type Handlers struct {
	ingest   IngestService
	register RegisterService
	cache    CacheService
}

// New constructs a Handlers bound to the given services. A nil cache disables
// conditional responses.
func New(ingest IngestService, register RegisterService, cache CacheService) *Handlers {
	return &Handlers{ingest: ingest, register: register, cache: cache}
}
