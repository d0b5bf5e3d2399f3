package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

type rosterFetcherStub struct {
	mu      sync.Mutex
	calls   int
	fail    int
	err     error
	records []models.RosterRecord
}

func (f *rosterFetcherStub) FetchRecords(ctx context.Context) ([]models.RosterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return nil, f.err
	}
	return f.records, nil
}

func strPtr(s string) *string { return &s }

func sampleRecords() []models.RosterRecord {
	return []models.RosterRecord{
		{FullName: "Alice  Moreau", Programme: strPtr("Interaction Design"), StudentIDNumber: strPtr("HS-0001"),
			ArrivalDate: strPtr("2024-09-01"), Degree: strPtr("Bachelor of Science"), Campus: "Barcelona",
			Photo: "https://student-admin.harbour.space/photos/alice.jpg"},
		{FullName: "Bob Li", ArrivalDate: strPtr("not a date"), Campus: "Bangkok"},
	}
}

func newTestRosterService(f rosterFetcher, cfg RosterServiceConfig) (*RosterService, *[]time.Duration) {
	svc := NewRosterService(f, nil, nil, nil, cfg)
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }
	var delays []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return svc, &delays
}

func TestToStudentsMapping(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	students := ToStudents(sampleRecords(), now)
	require.Len(t, students, 2)

	alice := students[0]
	assert.Equal(t, "alice_moreau_0", alice.ID)
	assert.Equal(t, "HS-0001", alice.IDNumber)
	assert.Equal(t, "Interaction Design", alice.Programme)
	assert.Equal(t, "September 2027", alice.ExpirationDate)
	require.NotNil(t, alice.ArrivalDate)
	assert.Equal(t, models.StudentStatusActive, alice.Status)

	bob := students[1]
	assert.Equal(t, "bob_li_1", bob.ID)
	assert.Equal(t, "bobli-00002", bob.IDNumber)
	assert.Equal(t, "Master", bob.Degree)
	assert.Equal(t, "General Studies", bob.Programme)
	assert.Nil(t, bob.ArrivalDate)
	assert.Equal(t, "March 2026", bob.ExpirationDate)
	assert.Empty(t, bob.PhotoURL)
}

func TestToStudentsUnknownName(t *testing.T) {
	students := ToStudents([]models.RosterRecord{{}}, time.Now())
	assert.Equal(t, "Unknown Student", students[0].Name)
	assert.Equal(t, "_0", students[0].ID)
	assert.Equal(t, "-00001", students[0].IDNumber)
}

func TestRosterServiceCachesWithinTTL(t *testing.T) {
	fetcher := &rosterFetcherStub{records: sampleRecords()}
	svc, _ := newTestRosterService(fetcher, RosterServiceConfig{CacheTTL: time.Minute})

	_, err := svc.Students(context.Background(), false)
	require.NoError(t, err)
	_, err = svc.Students(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	_, err = svc.Students(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestRosterServiceRetriesWithBackoff(t *testing.T) {
	fetcher := &rosterFetcherStub{records: sampleRecords(), fail: 3, err: appErrors.Clone(appErrors.ErrUpstreamFetch, "boom")}
	svc, delays := newTestRosterService(fetcher, RosterServiceConfig{
		RetryAttempts: 3, RetryBaseDelay: time.Second, RetryMaxDelay: 3 * time.Second,
	})

	roster, err := svc.Students(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, roster.Students, 2)
	assert.Equal(t, 4, fetcher.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
}

func TestRosterServiceGivesUp(t *testing.T) {
	fetcher := &rosterFetcherStub{fail: 10, err: appErrors.Clone(appErrors.ErrUpstreamFetch, "roster request failed: 500")}
	svc, _ := newTestRosterService(fetcher, RosterServiceConfig{RetryAttempts: 2})

	_, err := svc.Students(context.Background(), false)
	require.ErrorIs(t, err, appErrors.ErrUpstreamFetch)
	assert.Equal(t, 3, fetcher.calls)
}

type blockingRosterFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   int
}

func (f *blockingRosterFetcher) FetchRecords(ctx context.Context) ([]models.RosterRecord, error) {
	f.calls++
	close(f.started)
	select {
	case <-f.release:
		return sampleRecords(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRosterServiceSharedFetchSurvivesCallerCancel(t *testing.T) {
	fetcher := &blockingRosterFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newTestRosterService(fetcher, RosterServiceConfig{FetchBudget: 5 * time.Second})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Students(firstCtx, false)
		firstErr <- err
	}()
	<-fetcher.started

	type result struct {
		roster *models.Roster
		err    error
	}
	second := make(chan result, 1)
	go func() {
		roster, err := svc.Students(context.Background(), false)
		second <- result{roster, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(fetcher.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.roster.Students, 2)
	assert.Equal(t, 1, fetcher.calls)
}

func TestRosterServiceFindStudent(t *testing.T) {
	svc, _ := newTestRosterService(&rosterFetcherStub{records: sampleRecords()}, RosterServiceConfig{})

	st, err := svc.FindStudent(context.Background(), "bob_li_1")
	require.NoError(t, err)
	assert.Equal(t, "Bob Li", st.Name)

	_, err = svc.FindStudent(context.Background(), "nobody_9")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRosterServiceDiagnostics(t *testing.T) {
	svc, _ := newTestRosterService(&rosterFetcherStub{records: sampleRecords()}, RosterServiceConfig{})
	diag := svc.Diagnostics(context.Background())
	assert.True(t, diag.Success)
	assert.Equal(t, 2, diag.StudentCount)
	require.NotNil(t, diag.SampleStudent)
	assert.Equal(t, "Alice  Moreau", diag.SampleStudent.Name)

	failing, _ := newTestRosterService(&rosterFetcherStub{fail: 1, err: errors.New("dial tcp: refused")}, RosterServiceConfig{})
	diag = failing.Diagnostics(context.Background())
	assert.False(t, diag.Success)
	assert.Contains(t, diag.Message, "dial tcp: refused")
}
