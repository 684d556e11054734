// Package services – CacheService
//
// This file implements the tagged response cache. A read path asks for the
// marker of its cache key (the time the cached representation was first
// computed) and builds its conditional response from it; every write path
// invalidates the tags it owns, which deletes the markers of every response
// that depended on them. The next read then gets a fresh, later marker.
//
// The service does no HTTP negotiation itself.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/observability"
	"github.com/tbourn/go-travel-register/internal/repo"
)

// TagRegister is the dependency tag owned by the register module.
const TagRegister = "register"

// Invalidator drops cached responses depending on any of the given tags.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) (int64, error)
}

// CacheService hands out cache markers and invalidates them by tag.
// Safe for concurrent use.
//
// Markers have second resolution, matching Last-Modified on the wire. A
// marker created after an invalidation is always later than every marker the
// invalidation dropped, even within the same second, so a client holding an
// old Last-Modified never revalidates to stale content.
type CacheService struct {
	DB    *gorm.DB
	Clock clock.Clock

	misses singleflight.Group

	mu    sync.Mutex
	floor time.Time // earliest stamp for new markers
}

// NewCacheService returns a CacheService. A nil clock means the wall clock.
func NewCacheService(db *gorm.DB, clk clock.Clock) *CacheService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &CacheService{DB: db, Clock: clk}
}

// MarkerFor returns the last-modified marker of key, creating it with the
// current time and tags on a miss. When several callers race on a miss the
// first stored marker wins and all of them observe it.
func (s *CacheService) MarkerFor(ctx context.Context, key string, tags ...string) (time.Time, error) {
	tr := otel.Tracer("services/CacheService")
	ctx, span := tr.Start(ctx, "MarkerFor",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.StringSlice("cache.tags", tags),
		),
	)
	defer span.End()

	rec, err := repo.FindCacheRecord(ctx, s.DB, key)
	if err == nil {
		observability.CacheMarkers.WithLabelValues("hit").Inc()
		return rec.LastModified.UTC(), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return time.Time{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	observability.CacheMarkers.WithLabelValues("miss").Inc()
	v, err, _ := s.misses.Do(key, func() (any, error) {
		return repo.CreateCacheRecordIfAbsent(ctx, s.DB, key, s.stamp(), normalizeTags(tags))
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return v.(*domain.CacheRecord).LastModified.UTC(), nil
}

// Invalidate deletes every marker carrying at least one of tags and returns
// how many were deleted. Unknown tags are a no-op.
func (s *CacheService) Invalidate(ctx context.Context, tags ...string) (int64, error) {
	tags = normalizeTags(tags)
	tr := otel.Tracer("services/CacheService")
	ctx, span := tr.Start(ctx, "Invalidate",
		trace.WithAttributes(attribute.StringSlice("cache.tags", tags)),
	)
	defer span.End()

	if len(tags) == 0 {
		return 0, nil
	}
	latest, err := repo.LatestCacheMarker(ctx, s.DB, tags)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	s.raiseFloor(latest)
	n, err := repo.DeleteCacheByTags(ctx, s.DB, tags)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	observability.CacheInvalidations.Add(float64(n))
	span.SetAttributes(attribute.Int64("cache.deleted", n))
	return n, nil
}

// Refresh deletes the marker of a single key.
func (s *CacheService) Refresh(ctx context.Context, key string) error {
	tr := otel.Tracer("services/CacheService")
	ctx, span := tr.Start(ctx, "Refresh", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	rec, err := repo.FindCacheRecord(ctx, s.DB, key)
	switch {
	case err == nil:
		s.raiseFloor(rec.LastModified)
	case !errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if err := repo.DeleteCacheRecord(ctx, s.DB, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return nil
}

// stamp returns the LastModified for a new marker: the current second, or
// the floor when a dropped marker already used it.
func (s *CacheService) stamp() time.Time {
	now := s.Clock.Now().UTC().Truncate(time.Second)
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.floor) {
		return s.floor
	}
	return now
}

// raiseFloor makes later markers strictly newer than dropped.
func (s *CacheService) raiseFloor(dropped time.Time) {
	if dropped.IsZero() {
		return
	}
	next := dropped.UTC().Truncate(time.Second).Add(time.Second)
	s.mu.Lock()
	if next.After(s.floor) {
		s.floor = next
	}
	s.mu.Unlock()
}

// normalizeTags trims, drops blanks, and deduplicates tags (sorted).
func normalizeTags(tags []string) []string {
	out := set.NewStrings()
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out.Add(t)
		}
	}
	return out.SortedValues()
}
