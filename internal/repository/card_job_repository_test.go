package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

func TestCardJobRepository(t *testing.T) {
	repo := NewCardJobRepository()
	job := &models.CardJob{SessionID: "s1", Kind: models.CardJobKindStudents, CardCount: 3}
	repo.Create(job)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.CardJobStatusQueued, job.Status)

	finished := models.CardJobStatusFinished
	progress := 100
	url := "/api/v1/cards/download/tok"
	done := time.Now().Add(-2 * time.Hour)
	empty := ""
	require.NoError(t, repo.Update(job.ID, UpdateCardJobParams{
		Status: &finished, Progress: &progress, ResultURL: &url, FinishedAt: &done, ErrorMessage: &empty,
	}))

	got, err := repo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardJobStatusFinished, got.Status)
	assert.Equal(t, url, *got.ResultURL)
	assert.Nil(t, got.ErrorMessage)

	old := repo.ListFinishedBefore(time.Now().Add(-time.Hour))
	require.Len(t, old, 1)
	assert.Empty(t, repo.ListFinishedBefore(time.Now().Add(-3*time.Hour)))

	repo.Delete(job.ID)
	_, err = repo.GetByID(job.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	require.ErrorIs(t, repo.Update(job.ID, UpdateCardJobParams{}), appErrors.ErrNotFound)
}
