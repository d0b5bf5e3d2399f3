package dto

import (
	"time"

	"github.com/noah-isme/idcard-api/internal/models"
)

// CardJobRequest captures POST /sessions/:id/cards/jobs.
type CardJobRequest struct {
	Kind models.CardJobKind `json:"kind" validate:"omitempty,oneof=students staff"`
}

// CardJobResponse is returned after enqueueing a batch.
type CardJobResponse struct {
	ID        string               `json:"id"`
	Status    models.CardJobStatus `json:"status"`
	Progress  int                  `json:"progress"`
	CardCount int                  `json:"cardCount"`
}

// CardJobStatusResponse exposes batch progress metadata.
type CardJobStatusResponse struct {
	ID        string               `json:"id"`
	Kind      models.CardJobKind   `json:"kind"`
	Status    models.CardJobStatus `json:"status"`
	Progress  int                  `json:"progress"`
	CardCount int                  `json:"cardCount"`
	FileName  string               `json:"fileName,omitempty"`
	ResultURL *string              `json:"resultUrl,omitempty"`
	ExpiresAt *time.Time           `json:"expiresAt,omitempty"`
	Error     *string              `json:"error,omitempty"`
}

// ProxyImageQuery holds the raw proxy parameters; range checks happen after
// the host check so that a foreign host is always a 403.
type ProxyImageQuery struct {
	URL     string `form:"url"`
	Width   string `form:"width"`
	Height  string `form:"height"`
	Quality string `form:"quality"`
}

// RosterDiagnosticsResponse joins the roster self-test with runtime metrics.
type RosterDiagnosticsResponse struct {
	models.RosterDiagnostics
	Metrics models.SystemMetrics `json:"metrics"`
}
