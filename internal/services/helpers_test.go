package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-travel-register/internal/codec"
	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/fragment"
	"github.com/tbourn/go-travel-register/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// entryRepo adapts the repo free functions to EntryRepo.
type entryRepo struct{}

func (entryRepo) UpsertEntry(ctx context.Context, db *gorm.DB, e *domain.RegisterEntry) (bool, error) {
	return repo.UpsertEntry(ctx, db, e)
}
func (entryRepo) GetEntry(ctx context.Context, db *gorm.DB, id string) (*domain.RegisterEntry, error) {
	return repo.GetEntry(ctx, db, id)
}
func (entryRepo) ListEntriesPage(ctx context.Context, db *gorm.DB, f domain.EntryFilter, offset, limit int) ([]domain.RegisterEntry, error) {
	return repo.ListEntriesPage(ctx, db, f, offset, limit)
}
func (entryRepo) CountEntries(ctx context.Context, db *gorm.DB, f domain.EntryFilter) (int64, error) {
	return repo.CountEntries(ctx, db, f)
}
func (entryRepo) DeleteEntry(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteEntry(ctx, db, id)
}

// failingUpsert makes every write fail.
type failingUpsert struct{ entryRepo }

func (failingUpsert) UpsertEntry(context.Context, *gorm.DB, *domain.RegisterEntry) (bool, error) {
	return false, fmt.Errorf("disk full")
}

// spyInvalidator records calls and forwards them to next when set.
type spyInvalidator struct {
	mu    sync.Mutex
	calls [][]string
	next  Invalidator
	err   error
}

func (s *spyInvalidator) Invalidate(ctx context.Context, tags ...string) (int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), tags...))
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.next != nil {
		return s.next.Invalidate(ctx, tags...)
	}
	return 0, nil
}

func (s *spyInvalidator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var testNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

type ingestFixture struct {
	db    *gorm.DB
	clock *testclock.Clock
	spy   *spyInvalidator
	svc   *IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	db := newSvcDB(t)
	clk := testclock.NewClock(testNow)
	spy := &spyInvalidator{}
	svc := &IngestService{
		DB:         db,
		Repo:       entryRepo{},
		Codec:      codec.New(clk, time.UTC),
		Assembler:  fragment.NewAssembler(repo.NewSessionStore(db), fragment.WithClock(clk)),
		Cache:      spy,
		Clock:      clk,
		AccountSID: "AC123",
		Number:     "+15550100",
	}
	return &ingestFixture{db: db, clock: clk, spy: spy, svc: svc}
}

func (f *ingestFixture) sms(body string) InboundSMS {
	return InboundSMS{AccountSID: "AC123", From: "+33600000000", To: "+15550100", Body: body}
}

func (f *ingestFixture) countEntries(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&domain.RegisterEntry{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
