package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/middleware"
	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/pkg/response"
)

type rosterReader interface {
	Students(ctx context.Context, refresh bool) (*models.Roster, error)
	Diagnostics(ctx context.Context) models.RosterDiagnostics
}

type metricsSnapshotter interface {
	Snapshot() models.SystemMetrics
}

// RosterHandler exposes the upstream student roster.
type RosterHandler struct {
	roster  rosterReader
	metrics metricsSnapshotter
}

// NewRosterHandler constructs the roster handler.
func NewRosterHandler(roster rosterReader, metrics metricsSnapshotter) *RosterHandler {
	return &RosterHandler{roster: roster, metrics: metrics}
}

// List godoc
// @Summary List roster students
// @Tags Roster
// @Produce json
// @Param refresh query bool false "Force an upstream refetch"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /roster [get]
func (h *RosterHandler) List(c *gin.Context) {
	refresh := queryBool(c, "refresh")
	started := time.Now()
	roster, err := h.roster.Students(c.Request.Context(), refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, roster.FetchedAt.Before(started))
	response.JSON(c, http.StatusOK, roster, middleware.ExtractMeta(c))
}

// Diagnostics godoc
// @Summary Roster connection self-test
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roster/diagnostics [get]
func (h *RosterHandler) Diagnostics(c *gin.Context) {
	resp := dto.RosterDiagnosticsResponse{RosterDiagnostics: h.roster.Diagnostics(c.Request.Context())}
	if h.metrics != nil {
		resp.Metrics = h.metrics.Snapshot()
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
