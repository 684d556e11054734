package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/repo"
	"github.com/tbourn/go-travel-register/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type stubIngest struct {
	submit func(context.Context, services.InboundSMS) (services.Outcome, error)
	batch  func(context.Context, string) (services.BatchReport, error)
	calls  int
}

func (s *stubIngest) Submit(ctx context.Context, msg services.InboundSMS) (services.Outcome, error) {
	s.calls++
	if s.submit != nil {
		return s.submit(ctx, msg)
	}
	return services.Outcome{Accepted: true, Stored: true, EntryID: "2024-06-15 09:30:00", Created: true}, nil
}

func (s *stubIngest) SubmitBatch(ctx context.Context, text string) (services.BatchReport, error) {
	s.calls++
	if s.batch != nil {
		return s.batch(ctx, text)
	}
	return services.BatchReport{}, nil
}

type stubRegister struct {
	listPage func(context.Context, domain.EntryFilter, int, int) ([]domain.RegisterEntry, int64, error)
	export   func(context.Context, domain.EntryFilter) (string, error)
	get      func(context.Context, string) (*domain.RegisterEntry, error)
	del      func(context.Context, string) error
	stats    func(context.Context) (int64, *time.Time, error)
	lists    int
}

func (s *stubRegister) ListPage(ctx context.Context, f domain.EntryFilter, p, ps int) ([]domain.RegisterEntry, int64, error) {
	s.lists++
	if s.listPage != nil {
		return s.listPage(ctx, f, p, ps)
	}
	return []domain.RegisterEntry{}, 0, nil
}

func (s *stubRegister) Export(ctx context.Context, f domain.EntryFilter) (string, error) {
	if s.export != nil {
		return s.export(ctx, f)
	}
	return "", nil
}

func (s *stubRegister) Get(ctx context.Context, id string) (*domain.RegisterEntry, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return nil, services.ErrEntryNotFound
}

func (s *stubRegister) Delete(ctx context.Context, id string) error {
	if s.del != nil {
		return s.del(ctx, id)
	}
	return nil
}

func (s *stubRegister) Stats(ctx context.Context) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx)
	}
	return 0, nil, nil
}

type stubCache struct {
	marker     time.Time
	markerErr  error
	keys       []string
	invalidate func(context.Context, ...string) (int64, error)
}

func (s *stubCache) MarkerFor(_ context.Context, key string, _ ...string) (time.Time, error) {
	s.keys = append(s.keys, key)
	return s.marker, s.markerErr
}

func (s *stubCache) Invalidate(ctx context.Context, tags ...string) (int64, error) {
	if s.invalidate != nil {
		return s.invalidate(ctx, tags...)
	}
	return 0, nil
}
