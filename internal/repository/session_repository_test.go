package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

func TestSessionRepositoryLifecycle(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	sess := repo.Create()
	require.NotEmpty(t, sess.ID)

	updated, err := repo.Update(sess.ID, func(s *Session) error {
		s.Selection = s.Selection.ToggleTemp("alice_0")
		s.Staff = append(s.Staff, models.Staff{ID: "staff-1", Name: "Jane"})
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.Selection.IsTemp("alice_0"))

	got, err := repo.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Staff, 1)

	got.Staff[0].Name = "mutated"
	again, err := repo.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", again.Staff[0].Name)

	repo.Delete(sess.ID)
	_, err = repo.Get(sess.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSessionRepositoryUpdateErrorKeepsState(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	sess := repo.Create()

	boom := errors.New("boom")
	_, err := repo.Update(sess.ID, func(s *Session) error {
		s.Selection = s.Selection.Commit("alice_0")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Get(sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Selection.IsCommitted("alice_0"))
}

func TestSessionRepositoryExpiry(t *testing.T) {
	repo := NewSessionRepository(time.Minute)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	idle := repo.Create()
	busy := repo.Create()
	_, err := repo.Update(busy.ID, func(s *Session) error { s.Generating = true; return nil })
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Equal(t, 1, repo.Sweep())
	assert.Equal(t, 1, repo.Len())

	_, err = repo.Get(idle.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = repo.Get(busy.ID)
	require.NoError(t, err)
}
