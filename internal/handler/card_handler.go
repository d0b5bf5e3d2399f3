package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/service"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

type cardGenerator interface {
	GenerateStudents(ctx context.Context, sessionID string) (*service.CardFile, error)
	GenerateStaff(ctx context.Context, sessionID string) (*service.CardFile, error)
	Manifest(ctx context.Context, sessionID string) (*service.CardFile, error)
}

type cardJobService interface {
	CreateJob(ctx context.Context, sessionID string, req dto.CardJobRequest) (*dto.CardJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.CardJobStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.CardDownload, error)
}

// CardHandler renders ID card PDFs synchronously or through batches.
type CardHandler struct {
	cards    cardGenerator
	jobs     cardJobService
	validate *validator.Validate
}

// NewCardHandler constructs the card handler. jobs may be nil when async
// batches are disabled.
func NewCardHandler(cards cardGenerator, jobs cardJobService, validate *validator.Validate) *CardHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CardHandler{cards: cards, jobs: jobs, validate: validate}
}

// GenerateStudents godoc
// @Summary Render committed students as a PDF
// @Tags Cards
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/cards [post]
func (h *CardHandler) GenerateStudents(c *gin.Context) {
	h.sendFile(c)(h.cards.GenerateStudents(c.Request.Context(), c.Param("id")))
}

// GenerateStaff godoc
// @Summary Render staff members with photos as a PDF
// @Tags Cards
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /sessions/{id}/staff/cards [post]
func (h *CardHandler) GenerateStaff(c *gin.Context) {
	h.sendFile(c)(h.cards.GenerateStaff(c.Request.Context(), c.Param("id")))
}

// Manifest godoc
// @Summary CSV manifest of committed students
// @Tags Cards
// @Produce text/csv
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Router /sessions/{id}/manifest.csv [get]
func (h *CardHandler) Manifest(c *gin.Context) {
	h.sendFile(c)(h.cards.Manifest(c.Request.Context(), c.Param("id")))
}

// CreateJob godoc
// @Summary Queue a card batch
// @Tags Cards
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CardJobRequest false "Batch kind"
// @Success 202 {object} response.Envelope
// @Router /sessions/{id}/cards/jobs [post]
func (h *CardHandler) CreateJob(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "card batches disabled"))
		return
	}
	var req dto.CardJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid card job payload"))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "kind must be students or staff"))
		return
	}
	resp, err := h.jobs.CreateJob(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// JobStatus godoc
// @Summary Card batch status
// @Tags Cards
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /card-jobs/{jobId} [get]
func (h *CardHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "card batches disabled"))
		return
	}
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// Download godoc
// @Summary Download a finished card batch
// @Tags Cards
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /cards/download/{token} [get]
func (h *CardHandler) Download(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "card batches disabled"))
		return
	}
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	size := int64(-1)
	if info, statErr := result.File.Stat(); statErr == nil {
		size = info.Size()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, "application/pdf", result.File, nil)
}

func (h *CardHandler) sendFile(c *gin.Context) func(*service.CardFile, error) {
	return func(file *service.CardFile, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Binary(c, file.ContentType, file.FileName, file.Body)
	}
}
