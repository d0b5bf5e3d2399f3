package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/idcard-api/internal/dto"
	"github.com/noah-isme/idcard-api/internal/service"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

type imageProxy interface {
	ParseRequest(rawURL, width, height, quality string) (service.ImageRequest, error)
	Serve(ctx context.Context, req service.ImageRequest) (*service.ImageResult, error)
}

type proxyOutcomeRecorder interface {
	RecordProxyOutcome(outcome string)
}

// ProxyHandler serves same-origin images for the card renderer and browser.
type ProxyHandler struct {
	proxy   imageProxy
	metrics proxyOutcomeRecorder
}

// NewProxyHandler constructs the image proxy handler.
func NewProxyHandler(proxy imageProxy, metrics proxyOutcomeRecorder) *ProxyHandler {
	return &ProxyHandler{proxy: proxy, metrics: metrics}
}

// ProxyImage godoc
// @Summary Fetch an allow-listed image, optionally resized
// @Tags Images
// @Produce image/jpeg
// @Param url query string true "Absolute image URL on an allow-listed host"
// @Param width query int false "Target width 1-2000"
// @Param height query int false "Target height 1-2000"
// @Param quality query int false "JPEG quality 1-100"
// @Success 200 {file} binary
// @Success 304
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /api/proxy-image [get]
func (h *ProxyHandler) ProxyImage(c *gin.Context) {
	var query dto.ProxyImageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.record(service.ProxyOutcomeRejected)
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query"))
		return
	}

	req, err := h.proxy.ParseRequest(query.URL, query.Width, query.Height, query.Quality)
	if err != nil {
		h.record(service.ProxyOutcomeRejected)
		response.Error(c, err)
		return
	}

	if req.Resize() && c.GetHeader("If-None-Match") == req.ETag() {
		h.record(service.ProxyOutcomeNotModified)
		c.Header("ETag", req.ETag())
		c.Status(http.StatusNotModified)
		return
	}

	result, err := h.proxy.Serve(c.Request.Context(), req)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code != appErrors.ErrUpstreamFetch.Code && appErr.Code != appErrors.ErrDomainNotAllowed.Code {
			appErr = appErrors.ErrInternal
		}
		response.Error(c, appErr)
		return
	}

	c.Header("Cache-Control", result.CacheControl)
	if result.ETag != "" {
		c.Header("ETag", result.ETag)
	}
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

func (h *ProxyHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordProxyOutcome(outcome)
	}
}
