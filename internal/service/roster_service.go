package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

const (
	rosterCacheKey     = "roster:students"
	defaultDegree      = "Master"
	defaultProgramme   = "General Studies"
	defaultStudentName = "Unknown Student"
	expirationLayout   = "January 2006"
)

var whitespace = regexp.MustCompile(`\s+`)

type rosterFetcher interface {
	FetchRecords(ctx context.Context) ([]models.RosterRecord, error)
}

// RosterServiceConfig tunes caching and retries of the upstream roster.
type RosterServiceConfig struct {
	CacheTTL       time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// FetchBudget bounds one shared refetch, retries included. It is
	// independent of the request that triggered the refetch.
	FetchBudget time.Duration
}

// RosterService fetches, normalises and caches the student roster.
type RosterService struct {
	fetcher rosterFetcher
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     RosterServiceConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	group  singleflight.Group
	mu     sync.RWMutex
	roster *models.Roster
}

// NewRosterService constructs a roster service.
func NewRosterService(fetcher rosterFetcher, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg RosterServiceConfig) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.FetchBudget <= 0 {
		cfg.FetchBudget = 2 * time.Minute
	}
	return &RosterService{
		fetcher: fetcher,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		sleep:   sleepContext,
	}
}

// Students returns the roster, refetching when the cached copy is stale or
// refresh is set. Concurrent refetches share one upstream call.
func (s *RosterService) Students(ctx context.Context, refresh bool) (*models.Roster, error) {
	if !refresh {
		if roster := s.fresh(); roster != nil {
			return roster, nil
		}
		var cached models.Roster
		if hit, _ := s.cache.Get(ctx, rosterCacheKey, &cached); hit && cached.Students != nil {
			s.store(&cached)
			return &cached, nil
		}
	}

	// The shared fetch outlives any single caller; each caller only stops waiting.
	ch := s.group.DoChan("roster", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchBudget)
		defer cancel()

		records, err := s.fetchWithRetry(fetchCtx)
		if err != nil {
			return nil, err
		}
		roster := &models.Roster{Students: ToStudents(records, s.now()), FetchedAt: s.now()}
		s.store(roster)
		_ = s.cache.Set(fetchCtx, rosterCacheKey, roster, s.cfg.CacheTTL)
		s.logger.Info("roster refreshed", zap.Int("students", len(roster.Students)))
		return roster, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Roster), nil
	}
}

// FindStudent looks a student up by its synthetic id in the current roster.
func (s *RosterService) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	roster, err := s.Students(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range roster.Students {
		if roster.Students[i].ID == id {
			st := roster.Students[i]
			return &st, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %q not found", id))
}

// Diagnostics performs one uncached fetch and reports the outcome. Failures
// are reported in the result, not returned.
func (s *RosterService) Diagnostics(ctx context.Context) models.RosterDiagnostics {
	start := time.Now()
	records, err := s.fetchOnce(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.RosterDiagnostics{
			Success:   false,
			Message:   "API connection failed: " + err.Error(),
			LatencyMs: latency,
		}
	}

	students := ToStudents(records, s.now())
	diag := models.RosterDiagnostics{
		Success:      true,
		Message:      "API connection successful",
		StudentCount: len(students),
		LatencyMs:    latency,
	}
	if len(students) > 0 {
		sample := students[0]
		diag.SampleStudent = &sample
	}
	return diag
}

func (s *RosterService) fresh() *models.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.roster == nil || s.now().Sub(s.roster.FetchedAt) >= s.cfg.CacheTTL {
		return nil
	}
	return s.roster
}

func (s *RosterService) store(roster *models.Roster) {
	s.mu.Lock()
	s.roster = roster
	s.mu.Unlock()
}

func (s *RosterService) fetchWithRetry(ctx context.Context) ([]models.RosterRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt - 1)
			s.logger.Warn("roster fetch failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := s.sleep(ctx, delay); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFetch.Code, appErrors.ErrUpstreamFetch.Status, "roster fetch cancelled")
			}
		}
		records, err := s.fetchOnce(ctx)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	s.logger.Error("roster fetch failed", zap.Error(lastErr))
	return nil, lastErr
}

func (s *RosterService) fetchOnce(ctx context.Context) ([]models.RosterRecord, error) {
	start := time.Now()
	records, err := s.fetcher.FetchRecords(ctx)
	s.metrics.ObserveUpstreamFetch(UpstreamRoster, time.Since(start))
	return records, err
}

// backoff returns min(base*2^n, max).
func (s *RosterService) backoff(n int) time.Duration {
	delay := s.cfg.RetryBaseDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	return min(delay, s.cfg.RetryMaxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ToStudents normalises upstream records. Ids derive from name and position,
// so they are only stable within one fetch.
func ToStudents(records []models.RosterRecord, now time.Time) []models.Student {
	students := make([]models.Student, 0, len(records))
	for i, rec := range records {
		students = append(students, toStudent(rec, i, now))
	}
	return students
}

func toStudent(rec models.RosterRecord, index int, now time.Time) models.Student {
	name := rec.FullName
	if name == "" {
		name = defaultStudentName
	}
	degree := valueOr(rec.Degree, defaultDegree)
	arrival := parseArrival(rec.ArrivalDate)

	return models.Student{
		ID:             strings.ToLower(whitespace.ReplaceAllString(rec.FullName, "_")) + "_" + fmt.Sprint(index),
		Name:           name,
		Degree:         degree,
		Programme:      valueOr(rec.Programme, defaultProgramme),
		IDNumber:       idNumber(rec, index),
		ExpirationDate: expirationDate(arrival, degree, now),
		PhotoURL:       rec.Photo,
		Status:         models.StudentStatusActive,
		ArrivalDate:    arrival,
		Campus:         rec.Campus,
		IsTeacher:      rec.IsTeacher,
	}
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func idNumber(rec models.RosterRecord, index int) string {
	if rec.StudentIDNumber != nil && *rec.StudentIDNumber != "" {
		return *rec.StudentIDNumber
	}
	compact := []rune(strings.ToLower(whitespace.ReplaceAllString(rec.FullName, "")))
	if len(compact) > 5 {
		compact = compact[:5]
	}
	return fmt.Sprintf("%s-%05d", string(compact), index+1)
}

func parseArrival(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func expirationDate(arrival *time.Time, degree string, now time.Time) string {
	base := now
	if arrival != nil {
		base = *arrival
	}
	years := 1
	if strings.Contains(strings.ToLower(degree), "bachelor") {
		years = 3
	}
	return base.AddDate(years, 0, 0).Format(expirationLayout)
}
