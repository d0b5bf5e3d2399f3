package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/export"
)

type photoFetcherStub struct {
	calls    int32
	inflight int32
	peak     int32
	fail     map[string]bool
	delay    time.Duration
}

func (p *photoFetcherStub) PhotoDataURL(ctx context.Context, rawURL string, width int) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	cur := atomic.AddInt32(&p.inflight, 1)
	defer atomic.AddInt32(&p.inflight, -1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, cur) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail[rawURL] {
		return "", errors.New("upstream 404")
	}
	return "data:image/jpeg;base64,AAAA", nil
}

type rendererStub struct {
	mu      sync.Mutex
	cards   []export.StudentCard
	staff   []export.StaffCard
	photos  export.Photos
	renders int
}

func (r *rendererStub) RenderStudents(cards []export.StudentCard, photos export.Photos) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	r.cards, r.photos = cards, photos
	return []byte("%PDF-stub"), nil
}

func (r *rendererStub) RenderStaff(cards []export.StaffCard, photos export.Photos) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	r.staff, r.photos = cards, photos
	return []byte("%PDF-stub"), nil
}

func cardRoster() []models.Student {
	return []models.Student{
		{ID: "ana_0", Name: "Ana María Ruiz", IDNumber: "S1", ExpirationDate: "May 2026", PhotoURL: "https://student-admin.harbour.space/a.jpg"},
		{ID: "ben_1", Name: "Ben Ode", IDNumber: "S2", ExpirationDate: "Jan 2027", PhotoURL: "https://student-admin.harbour.space/b.jpg"},
		{ID: "cat_2", Name: "Cat Wu", IDNumber: "S3", ExpirationDate: "Sep 2026", PhotoURL: "/test-photo.jpg"},
		{ID: "dan_3", Name: "Dan Po", IDNumber: "S4", ExpirationDate: "Sep 2026", PhotoURL: "data:image/png;base64,iVBO"},
	}
}

type cardFixture struct {
	svc      *CardService
	sessions *repository.SessionRepository
	photos   *photoFetcherStub
	renderer *rendererStub
}

func newCardFixture(cfg CardServiceConfig) *cardFixture {
	sessions := repository.NewSessionRepository(time.Hour)
	photos := &photoFetcherStub{fail: map[string]bool{}}
	renderer := &rendererStub{}
	svc := NewCardService(sessions, &rosterSourceStub{students: cardRoster()}, photos, renderer, nil, nil, nil, cfg)
	return &cardFixture{svc: svc, sessions: sessions, photos: photos, renderer: renderer}
}

func (f *cardFixture) commit(t *testing.T, ids ...string) string {
	t.Helper()
	sess := f.sessions.Create()
	_, err := f.sessions.Update(sess.ID, func(s *repository.Session) error {
		for _, id := range ids {
			s.Selection = s.Selection.Commit(id)
		}
		return nil
	})
	require.NoError(t, err)
	return sess.ID
}

func TestCardServiceSingleStudent(t *testing.T) {
	f := newCardFixture(CardServiceConfig{})
	sessionID := f.commit(t, "ana_0")

	file, err := f.svc.GenerateStudents(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Ana_María_Ruiz_StudentID.pdf", file.FileName)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, int32(1), f.photos.calls)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", f.renderer.photos["ana_0"])

	sess, err := f.sessions.Get(sessionID)
	require.NoError(t, err)
	assert.False(t, sess.Generating)
}

func TestCardServiceBulkFanOutWithOverrides(t *testing.T) {
	f := newCardFixture(CardServiceConfig{PhotoConcurrency: 2})
	f.photos.delay = 10 * time.Millisecond
	f.photos.fail["https://student-admin.harbour.space/b.jpg"] = true
	sessionID := f.commit(t, "ana_0", "ben_1", "cat_2", "dan_3")
	_, err := f.sessions.Update(sessionID, func(s *repository.Session) error {
		s.Selection = s.Selection.SetOverride("ben_1", "December 2030")
		return nil
	})
	require.NoError(t, err)

	file, err := f.svc.GenerateStudents(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Harbour_Space_Student_IDs_Bulk_4_cards.pdf", file.FileName)
	assert.Equal(t, 4, file.CardCount)

	assert.Equal(t, int32(2), f.photos.calls, "placeholder and data urls are not fetched")
	assert.LessOrEqual(t, f.photos.peak, int32(2))
	require.Len(t, f.renderer.cards, 4)
	assert.Equal(t, "December 2030", f.renderer.cards[1].ExpirationDate)
	assert.NotEmpty(t, f.renderer.photos["ana_0"])
	assert.Empty(t, f.renderer.photos["ben_1"], "failed photo falls back to placeholder")
	assert.Empty(t, f.renderer.photos["cat_2"])
	assert.Equal(t, "data:image/png;base64,iVBO", f.renderer.photos["dan_3"])
}

func TestCardServiceEmptySelection(t *testing.T) {
	f := newCardFixture(CardServiceConfig{})
	sessionID := f.commit(t)

	_, err := f.svc.GenerateStudents(context.Background(), sessionID)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.renderer.renders)
}

func TestCardServiceBusy(t *testing.T) {
	f := newCardFixture(CardServiceConfig{})
	sessionID := f.commit(t, "ana_0")
	_, err := f.sessions.Update(sessionID, func(s *repository.Session) error {
		s.Generating = true
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.GenerateStudents(context.Background(), sessionID)
	require.ErrorIs(t, err, appErrors.ErrBusy)

	sess, err := f.sessions.Get(sessionID)
	require.NoError(t, err)
	assert.True(t, sess.Generating, "a rejected call must not clear another generation's flag")
}

func TestCardServiceStaffWithPhotosOnly(t *testing.T) {
	f := newCardFixture(CardServiceConfig{FilenamePrefix: "Acme"})
	sess := f.sessions.Create()

	_, err := f.svc.GenerateStaff(context.Background(), sess.ID)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.sessions.Update(sess.ID, func(s *repository.Session) error {
		s.Staff = []models.Staff{
			{ID: "staff-1", Name: "Jane", StaffID: "E1", PhotoDataURL: "data:image/png;base64,AA"},
			{ID: "staff-2", Name: "John", StaffID: "E2"},
		}
		return nil
	})
	require.NoError(t, err)

	file, err := f.svc.GenerateStaff(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme_Staff_IDs_Bulk_1_cards.pdf", file.FileName)
	require.Len(t, f.renderer.staff, 1)
	assert.Equal(t, "Jane", f.renderer.staff[0].Name)
}

func TestCardServiceManifest(t *testing.T) {
	f := newCardFixture(CardServiceConfig{})
	sessionID := f.commit(t, "ben_1", "ana_0")

	file, err := f.svc.Manifest(context.Background(), sessionID)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "name,idNumber,degree,programme,campus,expirationDate", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Ana María Ruiz,S1"), "roster order is kept")
}

func TestCardServiceRendersRealPDF(t *testing.T) {
	sessions := repository.NewSessionRepository(time.Hour)
	svc := NewCardService(sessions, &rosterSourceStub{students: cardRoster()}, nil, nil, nil, nil, nil, CardServiceConfig{})

	file, err := svc.RenderStudents(context.Background(), cardRoster()[:3])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
	assert.Equal(t, 3, bytes.Count(file.Body, []byte("/Type /Page\n")))
}
