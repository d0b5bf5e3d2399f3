package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

type rosterSourceStub struct {
	students []models.Student
	err      error
}

func (r *rosterSourceStub) Students(ctx context.Context, refresh bool) (*models.Roster, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.Roster{Students: r.students, FetchedAt: time.Now()}, nil
}

func month(y int, m time.Month) *time.Time {
	t := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func testRoster() []models.Student {
	return []models.Student{
		{ID: "ana_0", Name: "Ana Ruiz", IDNumber: "S1", Programme: "Data Science", Campus: "Barcelona", Degree: "Master", ExpirationDate: "May 2026", ArrivalDate: month(2025, 5)},
		{ID: "ben_1", Name: "Ben Ode", IDNumber: "S2", Programme: "Design", Campus: "Bangkok", Degree: "Bachelor", ExpirationDate: "Jan 2027", ArrivalDate: month(2024, 1)},
		{ID: "cat_2", Name: "Cat Wu", IDNumber: "S3", Programme: "Data Science", Campus: "Bangkok", Degree: "Master", ExpirationDate: "Sep 2026"},
	}
}

func newTestSelectionService() *SelectionService {
	return NewSelectionService(repository.NewSessionRepository(time.Hour), &rosterSourceStub{students: testRoster()}, nil)
}

func TestSelectionServiceFlow(t *testing.T) {
	svc := newTestSelectionService()
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.Selected)

	_, err = svc.ToggleTemp(ctx, sess.ID, "ana_0")
	require.NoError(t, err)
	snap, err := svc.ToggleTemp(ctx, sess.ID, "cat_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ana_0", "cat_2"}, snap.TempSelected)

	snap, err = svc.CommitAll(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.TempSelected)
	assert.Equal(t, 2, snap.SelectedCount)

	snap, err = svc.SetExpiration(ctx, sess.ID, "cat_2", "December 2030")
	require.NoError(t, err)
	assert.Equal(t, "December 2030", snap.Selected[1].ExpirationDate)

	listing, err := svc.Students(ctx, sess.ID, dto.StudentFilterQuery{}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, listing.Total)
	assert.Equal(t, 1, listing.Visible)
	assert.Equal(t, []string{"Data Science", "Design"}, listing.Programmes)

	snap, err = svc.Remove(ctx, sess.ID, "cat_2")
	require.NoError(t, err)
	assert.Empty(t, snap.Overrides)
	assert.Equal(t, 1, snap.SelectedCount)

	snap, err = svc.Clear(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.SelectedCount)
}

func TestSelectionServiceSelectAllVisibleUsesFilters(t *testing.T) {
	svc := newTestSelectionService()
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	snap, err := svc.SelectAllVisible(ctx, sess.ID, dto.StudentFilterQuery{Campus: "Bangkok", Since: "2024-06"})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"cat_2"}, snap.TempSelected); diff != "" {
		t.Fatalf("unexpected temp selection (-want +got):\n%s", diff)
	}
}

func TestSelectionServiceErrors(t *testing.T) {
	svc := newTestSelectionService()
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.ToggleTemp(ctx, sess.ID, "ghost_9")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Commit(ctx, "missing-session", "ana_0")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Students(ctx, sess.ID, dto.StudentFilterQuery{Since: "May 2024"}, false)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.SetExpiration(ctx, sess.ID, "ana_0", "June 2030")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSelectionServiceCSVFilter(t *testing.T) {
	svc := newTestSelectionService()
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	snap, err := svc.UploadCSVFilter(ctx, sess.ID, "ids.csv", strings.NewReader("Student ID\nS1\nS3\n"))
	require.NoError(t, err)
	assert.True(t, snap.CSVFilter.Active)
	assert.Equal(t, []string{"S1", "S3"}, snap.CSVFilter.IDs)

	listing, err := svc.Students(ctx, sess.ID, dto.StudentFilterQuery{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana_0", "cat_2"}, idsOf(listing.Students))

	_, err = svc.UploadCSVFilter(ctx, sess.ID, "ids.txt", strings.NewReader("S1"))
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.UploadCSVFilter(ctx, sess.ID, "ids.csv", strings.NewReader(""))
	require.ErrorIs(t, err, appErrors.ErrCSVEmpty)

	snap, err = svc.ClearCSVFilter(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, snap.CSVFilter.Active)
}

func idsOf(students []models.Student) []string {
	out := make([]string, len(students))
	for i, st := range students {
		out[i] = st.ID
	}
	return out
}
