// Package services – RegisterService
//
// This file implements the register read views (paginated list, positional
// text export) and entry deletion. Deletion is a write: it invalidates the
// register cache tag so cached list and export responses are recomputed.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/codec"
	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/repo"
)

// DefaultExportLimit caps the number of entries rendered by Export.
const DefaultExportLimit = 100

// EntryRepo defines the repository contract for register entries.
type EntryRepo interface {
	// UpsertEntry inserts the entry or replaces the row with the same id.
	UpsertEntry(ctx context.Context, db *gorm.DB, e *domain.RegisterEntry) (bool, error)

	// GetEntry fetches an entry by id.
	GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.RegisterEntry, error)

	// ListEntriesPage returns a page of entries, newest first.
	ListEntriesPage(ctx context.Context, db *gorm.DB, f domain.EntryFilter, offset, limit int) ([]domain.RegisterEntry, error)

	// CountEntries returns the number of entries matching the filter.
	CountEntries(ctx context.Context, db *gorm.DB, f domain.EntryFilter) (int64, error)

	// DeleteEntry removes an entry by id.
	DeleteEntry(ctx context.Context, db *gorm.DB, id string) error
}

// RegisterService serves the register read views and deletions.
type RegisterService struct {
	DB    *gorm.DB
	Repo  EntryRepo
	Cache Invalidator

	// ExportLimit caps Export; <= 0 means DefaultExportLimit.
	ExportLimit int
}

// NewRegisterService constructs a RegisterService with the default export limit.
func NewRegisterService(db *gorm.DB, r EntryRepo, cache Invalidator) *RegisterService {
	return &RegisterService{DB: db, Repo: r, Cache: cache, ExportLimit: DefaultExportLimit}
}

// ListPage returns a page of entries matching f, newest first, and the total.
// It applies defaults for invalid page/pageSize.
func (s *RegisterService) ListPage(ctx context.Context, f domain.EntryFilter, page, pageSize int) ([]domain.RegisterEntry, int64, error) {
	tr := otel.Tracer("services/RegisterService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
			attribute.Bool("filtered", !f.IsZero()),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountEntries(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RegisterEntry{}, 0, nil
	}

	items, err := s.Repo.ListEntriesPage(ctx, s.DB, f, offset, pageSize)
	return items, total, err
}

// Export renders up to ExportLimit entries matching f, newest first, in the
// positional text format, one per line. The output can be submitted back
// through the bulk path unchanged.
func (s *RegisterService) Export(ctx context.Context, f domain.EntryFilter) (string, error) {
	tr := otel.Tracer("services/RegisterService")
	ctx, span := tr.Start(ctx, "Export")
	defer span.End()

	limit := s.ExportLimit
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	items, err := s.Repo.ListEntriesPage(ctx, s.DB, f, 0, limit)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(items))
	for _, e := range items {
		lines = append(lines, codec.Format(e))
	}
	span.SetAttributes(attribute.Int("entries", len(lines)))
	return strings.Join(lines, "\n"), nil
}

// Get returns one entry or ErrEntryNotFound.
func (s *RegisterService) Get(ctx context.Context, id string) (*domain.RegisterEntry, error) {
	e, err := s.Repo.GetEntry(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// Delete removes the entry with the given id and invalidates the register
// tag. It returns ErrEntryNotFound when there is no such entry.
func (s *RegisterService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/RegisterService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("entry.id", id)))
	defer span.End()

	if err := s.Repo.DeleteEntry(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if s.Cache != nil {
		if _, err := s.Cache.Invalidate(ctx, TagRegister); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the number of entries and the time of the latest change.
func (s *RegisterService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.EntriesStats(ctx, s.DB)
}
