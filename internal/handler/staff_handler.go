package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/idcard-api/internal/dto"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

type staffService interface {
	List(ctx context.Context, sessionID string) (*dto.StaffListing, error)
	Import(ctx context.Context, sessionID, filename string, r io.Reader) (*dto.StaffListing, error)
	Add(ctx context.Context, sessionID string, req dto.StaffAddRequest) (*dto.StaffListing, error)
	SetPhoto(ctx context.Context, sessionID, id, contentType string, r io.Reader) (*dto.StaffListing, error)
	RemovePhoto(ctx context.Context, sessionID, id string) (*dto.StaffListing, error)
	Remove(ctx context.Context, sessionID, id string) (*dto.StaffListing, error)
	Clear(ctx context.Context, sessionID string) (*dto.StaffListing, error)
}

// StaffHandler manages the per-session staff list.
type StaffHandler struct {
	service staffService
}

// NewStaffHandler constructs the staff handler.
func NewStaffHandler(svc staffService) *StaffHandler {
	return &StaffHandler{service: svc}
}

// List godoc
// @Summary List staff members
// @Tags Staff
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/staff [get]
func (h *StaffHandler) List(c *gin.Context) {
	h.respond(c)(h.service.List(c.Request.Context(), c.Param("id")))
}

// Import godoc
// @Summary Replace the staff list from a CSV or XLSX file
// @Tags Staff
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "Staff list with name and id columns"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/staff/import [post]
func (h *StaffHandler) Import(c *gin.Context) {
	upload, ok := formFile(c, "file")
	if !ok {
		return
	}
	defer upload.Close()
	h.respond(c)(h.service.Import(c.Request.Context(), c.Param("id"), upload.Filename, upload))
}

// Add godoc
// @Summary Add a staff member by hand
// @Tags Staff
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.StaffAddRequest true "Staff member"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/staff [post]
func (h *StaffHandler) Add(c *gin.Context) {
	var req dto.StaffAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid staff payload"))
		return
	}
	listing, err := h.service.Add(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, listing)
}

// SetPhoto godoc
// @Summary Upload a staff photo
// @Tags Staff
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param staffId path string true "Staff entry ID"
// @Param photo formData file true "Image file"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/staff/{staffId}/photo [put]
func (h *StaffHandler) SetPhoto(c *gin.Context) {
	upload, ok := formFile(c, "photo")
	if !ok {
		return
	}
	defer upload.Close()
	h.respond(c)(h.service.SetPhoto(c.Request.Context(), c.Param("id"), c.Param("staffId"), upload.ContentType, upload))
}

// RemovePhoto godoc
// @Summary Remove a staff photo
// @Tags Staff
// @Produce json
// @Param id path string true "Session ID"
// @Param staffId path string true "Staff entry ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/staff/{staffId}/photo [delete]
func (h *StaffHandler) RemovePhoto(c *gin.Context) {
	h.respond(c)(h.service.RemovePhoto(c.Request.Context(), c.Param("id"), c.Param("staffId")))
}

// Remove godoc
// @Summary Remove a staff member
// @Tags Staff
// @Produce json
// @Param id path string true "Session ID"
// @Param staffId path string true "Staff entry ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/staff/{staffId} [delete]
func (h *StaffHandler) Remove(c *gin.Context) {
	h.respond(c)(h.service.Remove(c.Request.Context(), c.Param("id"), c.Param("staffId")))
}

// Clear godoc
// @Summary Remove every staff member
// @Tags Staff
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/staff [delete]
func (h *StaffHandler) Clear(c *gin.Context) {
	h.respond(c)(h.service.Clear(c.Request.Context(), c.Param("id")))
}

func (h *StaffHandler) respond(c *gin.Context) func(*dto.StaffListing, error) {
	return func(listing *dto.StaffListing, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, listing)
	}
}
