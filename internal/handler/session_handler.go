package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/idcard-api/internal/dto"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

type selectionService interface {
	CreateSession(ctx context.Context) (*dto.SessionSnapshot, error)
	Snapshot(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error)
	Students(ctx context.Context, sessionID string, q dto.StudentFilterQuery, refresh bool) (*dto.StudentListing, error)
	ToggleTemp(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error)
	SelectAllVisible(ctx context.Context, sessionID string, q dto.StudentFilterQuery) (*dto.SessionSnapshot, error)
	CommitAll(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error)
	Commit(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error)
	Remove(ctx context.Context, sessionID, studentID string) (*dto.SessionSnapshot, error)
	Clear(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error)
	SetExpiration(ctx context.Context, sessionID, studentID, date string) (*dto.SessionSnapshot, error)
	UploadCSVFilter(ctx context.Context, sessionID, filename string, r io.Reader) (*dto.SessionSnapshot, error)
	ClearCSVFilter(ctx context.Context, sessionID string) (*dto.SessionSnapshot, error)
}

// SessionHandler exposes the student selection workflow.
type SessionHandler struct {
	service  selectionService
	validate *validator.Validate
}

// NewSessionHandler constructs the selection handler.
func NewSessionHandler(svc selectionService, validate *validator.Validate) *SessionHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SessionHandler{service: svc, validate: validate}
}

// Create godoc
// @Summary Start a selection session
// @Tags Sessions
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	snap, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snap)
}

// Get godoc
// @Summary Session snapshot
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	h.respond(c)(h.service.Snapshot(c.Request.Context(), c.Param("id")))
}

// Students godoc
// @Summary Filtered roster for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param search query string false "Name, programme, degree, ID number or email"
// @Param programme query string false "Programme"
// @Param campus query string false "Campus"
// @Param since query string false "Arrival month threshold YYYY-MM"
// @Param refresh query bool false "Force roster refetch"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/students [get]
func (h *SessionHandler) Students(c *gin.Context) {
	q, ok := bindFilter(c)
	if !ok {
		return
	}
	listing, err := h.service.Students(c.Request.Context(), c.Param("id"), q, queryBool(c, "refresh"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, listing)
}

// ToggleTemp godoc
// @Summary Toggle a student in the temporary selection
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/temp/{studentId}/toggle [post]
func (h *SessionHandler) ToggleTemp(c *gin.Context) {
	h.respond(c)(h.service.ToggleTemp(c.Request.Context(), c.Param("id"), c.Param("studentId")))
}

// SelectVisible godoc
// @Summary Replace the temporary selection with every visible student
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/temp/select-visible [post]
func (h *SessionHandler) SelectVisible(c *gin.Context) {
	q, ok := bindFilter(c)
	if !ok {
		return
	}
	h.respond(c)(h.service.SelectAllVisible(c.Request.Context(), c.Param("id"), q))
}

// CommitAll godoc
// @Summary Commit the temporary selection
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/selected [post]
func (h *SessionHandler) CommitAll(c *gin.Context) {
	h.respond(c)(h.service.CommitAll(c.Request.Context(), c.Param("id")))
}

// Commit godoc
// @Summary Commit one student
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/selected/{studentId} [post]
func (h *SessionHandler) Commit(c *gin.Context) {
	h.respond(c)(h.service.Commit(c.Request.Context(), c.Param("id"), c.Param("studentId")))
}

// Remove godoc
// @Summary Remove a committed student
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/selected/{studentId} [delete]
func (h *SessionHandler) Remove(c *gin.Context) {
	h.respond(c)(h.service.Remove(c.Request.Context(), c.Param("id"), c.Param("studentId")))
}

// Clear godoc
// @Summary Deselect everyone
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/selected [delete]
func (h *SessionHandler) Clear(c *gin.Context) {
	h.respond(c)(h.service.Clear(c.Request.Context(), c.Param("id")))
}

// SetExpiration godoc
// @Summary Override a committed student's expiration label
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.ExpirationOverrideRequest true "Expiration"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/selected/{studentId}/expiration [put]
func (h *SessionHandler) SetExpiration(c *gin.Context) {
	var req dto.ExpirationOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expiration payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expiration payload"))
		return
	}
	h.respond(c)(h.service.SetExpiration(c.Request.Context(), c.Param("id"), c.Param("studentId"), req.ExpirationDate))
}

// UploadCSVFilter godoc
// @Summary Restrict the roster to IDs from a CSV or XLSX file
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "Student ID list"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/csv-filter [post]
func (h *SessionHandler) UploadCSVFilter(c *gin.Context) {
	upload, ok := formFile(c, "file")
	if !ok {
		return
	}
	defer upload.Close()
	h.respond(c)(h.service.UploadCSVFilter(c.Request.Context(), c.Param("id"), upload.Filename, upload))
}

// ClearCSVFilter godoc
// @Summary Drop the CSV allow-list
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/csv-filter [delete]
func (h *SessionHandler) ClearCSVFilter(c *gin.Context) {
	h.respond(c)(h.service.ClearCSVFilter(c.Request.Context(), c.Param("id")))
}

func (h *SessionHandler) respond(c *gin.Context) func(*dto.SessionSnapshot, error) {
	return func(snap *dto.SessionSnapshot, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, snap)
	}
}

func bindFilter(c *gin.Context) (dto.StudentFilterQuery, bool) {
	var q dto.StudentFilterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid filter query"))
		return q, false
	}
	return q, true
}
