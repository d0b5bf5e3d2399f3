package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/repository"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/jobs"
	"github.com/noah-isme/idcard-api/pkg/storage"
)

const cardJobFailedMessage = "card generation failed"

type cardJobStore interface {
	Create(job *models.CardJob)
	GetByID(id string) (*models.CardJob, error)
	Update(id string, params repository.UpdateCardJobParams) error
	ListFinishedBefore(cutoff time.Time) []models.CardJob
	Delete(id string)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type cardBatchRenderer interface {
	SelectedStudents(ctx context.Context, sessionID string) ([]models.Student, error)
	PrintableStaff(sessionID string) ([]models.Staff, error)
	RenderStudents(ctx context.Context, students []models.Student) (*CardFile, error)
	RenderStaff(ctx context.Context, staff []models.Staff) (*CardFile, error)
}

// CardJobServiceConfig governs download links and cleanup.
type CardJobServiceConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// cardBatch is the snapshot a queued job renders.
type cardBatch struct {
	Kind     models.CardJobKind
	Students []models.Student
	Staff    []models.Staff
}

// CardDownload aggregates resolved download data.
type CardDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// CardJobService orchestrates asynchronous card batches.
type CardJobService struct {
	repo    cardJobStore
	cards   cardBatchRenderer
	queue   jobDispatcher
	signer  *storage.SignedURLSigner
	storage fileStorage
	metrics *MetricsService
	logger  *zap.Logger
	cfg     CardJobServiceConfig
}

// NewCardJobService constructs the card job service.
func NewCardJobService(repo cardJobStore, cards cardBatchRenderer, queue jobDispatcher, fs fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg CardJobServiceConfig) *CardJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = signer.TTL()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &CardJobService{
		repo:    repo,
		cards:   cards,
		queue:   queue,
		signer:  signer,
		storage: fs,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// SetQueue wires the dispatcher once the worker queue exists.
func (s *CardJobService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob snapshots the session and enqueues rendering.
func (s *CardJobService) CreateJob(ctx context.Context, sessionID string, req dto.CardJobRequest) (*dto.CardJobResponse, error) {
	kind := req.Kind
	if kind == "" {
		kind = models.CardJobKindStudents
	}

	batch := cardBatch{Kind: kind}
	count := 0
	switch kind {
	case models.CardJobKindStudents:
		students, err := s.cards.SelectedStudents(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		batch.Students, count = students, len(students)
	case models.CardJobKindStaff:
		staff, err := s.cards.PrintableStaff(sessionID)
		if err != nil {
			return nil, err
		}
		batch.Staff, count = staff, len(staff)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported card job kind")
	}

	job := &models.CardJob{
		SessionID: sessionID,
		Kind:      kind,
		Status:    models.CardJobStatusQueued,
		CardCount: count,
	}
	s.repo.Create(job)
	if s.queue == nil {
		s.markFailed(job.ID, "card worker unavailable")
		return nil, appErrors.Clone(appErrors.ErrInternal, "card worker unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(kind), Payload: batch}); err != nil {
		s.markFailed(job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue card job")
	}
	s.logger.Info("card job queued", zap.String("job_id", job.ID), zap.String("kind", string(kind)), zap.Int("cards", count))
	return &dto.CardJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress, CardCount: count}, nil
}

// GetStatus exposes job metadata to clients.
func (s *CardJobService) GetStatus(ctx context.Context, id string) (*dto.CardJobStatusResponse, error) {
	job, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	resp := &dto.CardJobStatusResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Progress:  job.Progress,
		CardCount: job.CardCount,
		FileName:  job.FileName,
		ResultURL: job.ResultURL,
		ExpiresAt: job.ExpiresAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored PDF.
func (s *CardJobService) ResolveDownload(ctx context.Context, token string) (*CardDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	job, err := s.repo.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.CardJobStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "card batch not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "card batch file no longer available")
	}
	return &CardDownload{File: file, Filename: job.FileName, ExpiresAt: expiresAt}, nil
}

// Handle processes a queued batch. Failures below the retry limit requeue the job.
func (s *CardJobService) Handle(ctx context.Context, job jobs.Job) error {
	batch, ok := job.Payload.(cardBatch)
	if !ok {
		s.markFailed(job.ID, "invalid job payload")
		return nil
	}
	processing := models.CardJobStatusProcessing
	progress := 10
	if err := s.repo.Update(job.ID, repository.UpdateCardJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}
	s.metrics.RecordCardJob(processing)

	file, err := s.render(ctx, batch)
	if err != nil {
		s.logger.Warn("card batch render failed", zap.String("job_id", job.ID), zap.Error(err))
		msg := jobFailureMessage(err)
		queued := models.CardJobStatusQueued
		reset := 0
		if updateErr := s.repo.Update(job.ID, repository.UpdateCardJobParams{Status: &queued, Progress: &reset, ErrorMessage: &msg}); updateErr != nil {
			s.logger.Warn("failed to mark card job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	relPath, err := s.storage.Save(job.ID+"_"+file.FileName, file.Body)
	if err != nil {
		return fmt.Errorf("store card batch: %w", err)
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign card batch: %w", err)
	}

	finished := models.CardJobStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := strings.TrimRight(s.cfg.APIPrefix, "/") + "/cards/download/" + token
	clear := ""
	if err := s.repo.Update(job.ID, repository.UpdateCardJobParams{
		Status:       &finished,
		Progress:     &progress,
		FileName:     &file.FileName,
		StoragePath:  &relPath,
		ResultURL:    &url,
		ExpiresAt:    &expiresAt,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark card job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	s.metrics.RecordCardJob(finished)
	s.logger.Info("card job finished", zap.String("job_id", job.ID), zap.Int("cards", file.CardCount))
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (s *CardJobService) GiveUp(job jobs.Job, err error) {
	s.logger.Error("card batch failed", zap.String("job_id", job.ID), zap.Error(err))
	s.markFailed(job.ID, jobFailureMessage(err))
}

// jobFailureMessage is the client-facing text for a failed batch. Wrapped
// causes stay in the logs.
func jobFailureMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return cardJobFailedMessage
}

func (s *CardJobService) render(ctx context.Context, batch cardBatch) (*CardFile, error) {
	switch batch.Kind {
	case models.CardJobKindStaff:
		return s.cards.RenderStaff(ctx, batch.Staff)
	default:
		return s.cards.RenderStudents(ctx, batch.Students)
	}
}

func (s *CardJobService) markFailed(id, msg string) {
	failed := models.CardJobStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(id, repository.UpdateCardJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark card job failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.metrics.RecordCardJob(failed)
}

// StartCleanup boots a goroutine that purges expired batches periodically.
func (s *CardJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}

// CleanupExpired deletes batches and files older than the result TTL.
func (s *CardJobService) CleanupExpired() int {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	removed := 0
	for _, job := range s.repo.ListFinishedBefore(cutoff) {
		if job.StoragePath != "" {
			if err := s.storage.Delete(job.StoragePath); err != nil {
				s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
		}
		s.repo.Delete(job.ID)
		removed++
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
	return removed
}
