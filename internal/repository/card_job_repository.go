package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

// UpdateCardJobParams defines the mutable fields of a batch.
type UpdateCardJobParams struct {
	Status       *models.CardJobStatus
	Progress     *int
	FileName     *string
	StoragePath  *string
	ResultURL    *string
	ExpiresAt    *time.Time
	ErrorMessage *string
	FinishedAt   *time.Time
}

// CardJobRepository keeps card batches in memory.
type CardJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.CardJob
}

// NewCardJobRepository builds an empty store.
func NewCardJobRepository() *CardJobRepository {
	return &CardJobRepository{jobs: make(map[string]models.CardJob)}
}

// Create stores a new job, filling id, status and timestamp defaults.
func (r *CardJobRepository) Create(job *models.CardJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.CardJobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.jobs[job.ID] = *job
	r.mu.Unlock()
}

// GetByID returns a copy of the job.
func (r *CardJobRepository) GetByID(id string) (*models.CardJob, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "card job not found")
	}
	return &job, nil
}

// Update applies the non-nil fields.
func (r *CardJobRepository) Update(id string, params UpdateCardJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "card job not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FileName != nil {
		job.FileName = *params.FileName
	}
	if params.StoragePath != nil {
		job.StoragePath = *params.StoragePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ExpiresAt != nil {
		job.ExpiresAt = params.ExpiresAt
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			job.ErrorMessage = nil
		} else {
			job.ErrorMessage = params.ErrorMessage
		}
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	r.jobs[id] = job
	return nil
}

// ListFinishedBefore returns terminal jobs finished before cutoff, oldest first.
func (r *CardJobRepository) ListFinishedBefore(cutoff time.Time) []models.CardJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CardJob, 0)
	for _, job := range r.jobs {
		if job.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	return out
}

// Delete forgets a job.
func (r *CardJobRepository) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}
