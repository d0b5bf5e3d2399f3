package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/imaging"
	"github.com/noah-isme/idcard-api/pkg/middleware/requestid"
)

const (
	proxyUserAgent          = "Student-ID-Generator/1.0"
	cacheControlImmutable   = "public, max-age=31536000, immutable"
	cacheControlPassthrough = "public, max-age=86400"
	imageCachePrefix        = "proxy:image:"
	defaultContentType      = "image/jpeg"
	maxProxyRedirects       = 5
)

// ProxyConfig configures the image proxy.
type ProxyConfig struct {
	PrimaryHost    string
	SecondaryHost  string
	Token          string
	TokenHeader    string
	FetchTimeout   time.Duration
	MaxBytes       int64
	DefaultQuality int
	CacheTTL       time.Duration
}

// ImageRequest is a validated proxy request. Zero Width/Height means unset.
type ImageRequest struct {
	URL     *url.URL
	Width   int
	Height  int
	Quality int
}

// Resize reports whether a transform was requested.
func (r ImageRequest) Resize() bool {
	return r.Width > 0 || r.Height > 0
}

// ETag is the content address of a resized variant.
func (r ImageRequest) ETag() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%d", r.URL.String(), r.Width, r.Height, r.Quality)))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// ImageResult is what the proxy serves.
type ImageResult struct {
	Body         []byte
	ContentType  string
	CacheControl string
	ETag         string
	Outcome      string
}

// ProxyService fetches images from allow-listed hosts and resizes them.
type ProxyService struct {
	cfg        ProxyConfig
	httpClient *http.Client
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProxyService constructs a proxy service.
func NewProxyService(cfg ProxyConfig, httpClient *http.Client, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ProxyService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.DefaultQuality < 1 || cfg.DefaultQuality > 100 {
		cfg.DefaultQuality = imaging.DefaultQuality
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "Access-Token"
	}
	cfg.PrimaryHost = strings.ToLower(cfg.PrimaryHost)
	cfg.SecondaryHost = strings.ToLower(cfg.SecondaryHost)
	client := &http.Client{Timeout: cfg.FetchTimeout}
	if httpClient != nil {
		copied := *httpClient
		client = &copied
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ProxyService{cfg: cfg, httpClient: client, cache: cache, metrics: metrics, validator: validate, logger: logger}
	client.CheckRedirect = svc.checkRedirect
	return svc
}

// checkRedirect re-applies the host allow-list on every hop and keeps the
// token header on the primary host only.
func (s *ProxyService) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxProxyRedirects {
		return appErrors.Clone(appErrors.ErrUpstreamFetch, "too many redirects")
	}
	host := strings.ToLower(req.URL.Hostname())
	if (req.URL.Scheme != "http" && req.URL.Scheme != "https") || !s.allowed(host) {
		s.logger.Warn("image redirect rejected", zap.String("location", req.URL.String()))
		return appErrors.ErrDomainNotAllowed
	}
	if !hostMatches(host, s.cfg.PrimaryHost) {
		req.Header.Del(s.cfg.TokenHeader)
	}
	return nil
}

// ParseRequest validates raw query values in order: url presence and shape
// (400), host allow-list (403), width and height (400), quality (400).
func (s *ProxyService) ParseRequest(rawURL, width, height, quality string) (ImageRequest, error) {
	target, err := s.ValidateURL(rawURL)
	if err != nil {
		return ImageRequest{}, err
	}
	req := ImageRequest{URL: target, Quality: s.cfg.DefaultQuality}
	if req.Width, err = s.intParam("width", width, "min=1,max=2000"); err != nil {
		return ImageRequest{}, err
	}
	if req.Height, err = s.intParam("height", height, "min=1,max=2000"); err != nil {
		return ImageRequest{}, err
	}
	q, err := s.intParam("quality", quality, "min=1,max=100")
	if err != nil {
		return ImageRequest{}, err
	}
	if q > 0 {
		req.Quality = q
	}
	return req, nil
}

// ValidateURL checks that rawURL is an absolute http(s) URL on an allowed host.
func (s *ProxyService) ValidateURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "URL parameter is required")
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Hostname() == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "URL parameter must be an absolute http(s) url")
	}
	if !s.allowed(target.Hostname()) {
		return nil, appErrors.ErrDomainNotAllowed
	}
	return target, nil
}

func (s *ProxyService) intParam(name, raw, rule string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be an integer")
	}
	if err := s.validator.Var(v, rule); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, name+" is out of range")
	}
	return v, nil
}

func (s *ProxyService) allowed(host string) bool {
	host = strings.ToLower(host)
	return hostMatches(host, s.cfg.PrimaryHost) || hostMatches(host, s.cfg.SecondaryHost)
}

func hostMatches(host, allowed string) bool {
	if allowed == "" {
		return false
	}
	return host == allowed || strings.HasSuffix(host, "."+allowed)
}

// Serve fetches and optionally transforms the image. A failed transform
// falls back to the original bytes.
func (s *ProxyService) Serve(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if req.Resize() {
		if body, hit, _ := s.cache.GetBytes(ctx, imageCachePrefix+req.ETag()); hit {
			s.metrics.RecordProxyOutcome(ProxyOutcomeResized)
			return &ImageResult{Body: body, ContentType: imaging.OutputContentType, CacheControl: cacheControlImmutable, ETag: req.ETag(), Outcome: ProxyOutcomeResized}, nil
		}
	}

	raw, contentType, err := s.Fetch(ctx, req.URL)
	if err != nil {
		switch appErrors.FromError(err).Code {
		case appErrors.ErrUpstreamFetch.Code:
			s.metrics.RecordProxyOutcome(ProxyOutcomeUpstreamError)
		case appErrors.ErrDomainNotAllowed.Code:
			s.metrics.RecordProxyOutcome(ProxyOutcomeRejected)
		default:
			s.metrics.RecordProxyOutcome(ProxyOutcomeError)
		}
		return nil, err
	}

	if !req.Resize() {
		s.metrics.RecordProxyOutcome(ProxyOutcomePassthrough)
		return &ImageResult{Body: raw, ContentType: contentType, CacheControl: cacheControlPassthrough, Outcome: ProxyOutcomePassthrough}, nil
	}

	out, err := imaging.Transform(raw, req.Width, req.Height, req.Quality)
	if err != nil {
		s.logger.Warn("image transform failed, serving original",
			zap.String("url", req.URL.String()), zap.Error(appErrors.Wrap(err, appErrors.ErrTransform.Code, appErrors.ErrTransform.Status, appErrors.ErrTransform.Message)))
		s.metrics.RecordProxyOutcome(ProxyOutcomeFallback)
		return &ImageResult{Body: raw, ContentType: contentType, CacheControl: cacheControlPassthrough, Outcome: ProxyOutcomeFallback}, nil
	}

	_ = s.cache.SetBytes(ctx, imageCachePrefix+req.ETag(), out, s.cfg.CacheTTL)
	s.metrics.RecordProxyOutcome(ProxyOutcomeResized)
	return &ImageResult{Body: out, ContentType: imaging.OutputContentType, CacheControl: cacheControlImmutable, ETag: req.ETag(), Outcome: ProxyOutcomeResized}, nil
}

// Fetch downloads target. The token header is sent only to the primary host.
// Upstream non-2xx statuses are carried on the returned error.
func (s *ProxyService) Fetch(ctx context.Context, target *url.URL) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	httpReq.Header.Set("User-Agent", proxyUserAgent)
	requestid.Propagate(ctx, httpReq)
	if hostMatches(strings.ToLower(target.Hostname()), s.cfg.PrimaryHost) && s.cfg.Token != "" {
		httpReq.Header.Set(s.cfg.TokenHeader, s.cfg.Token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	s.metrics.ObserveUpstreamFetch(UpstreamImage, time.Since(start))
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, "", appErr
		}
		s.logger.Error("image fetch failed", zap.String("url", target.String()), zap.Error(err))
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("image upstream returned error", zap.String("url", target.String()), zap.Int("status", resp.StatusCode))
		return nil, "", appErrors.WithStatus(appErrors.Clone(appErrors.ErrUpstreamFetch, "Failed to fetch image"), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		s.logger.Error("image read failed", zap.String("url", target.String()), zap.Error(err))
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	if int64(len(body)) > s.cfg.MaxBytes {
		return nil, "", appErrors.Clone(appErrors.ErrUpstreamFetch, "image exceeds size limit")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return body, contentType, nil
}

// PhotoDataURL fetches an allow-listed photo resized to width pixels and
// returns it as a data URL. Hosts outside the allow-list are refused.
func (s *ProxyService) PhotoDataURL(ctx context.Context, rawURL string, width int) (string, error) {
	target, err := s.ValidateURL(rawURL)
	if err != nil {
		return "", err
	}
	req := ImageRequest{URL: target, Width: min(max(width, 1), imaging.MaxDimension), Quality: s.cfg.DefaultQuality}
	result, err := s.Serve(ctx, req)
	if err != nil {
		return "", err
	}
	return imaging.EncodeDataURL(result.ContentType, result.Body), nil
}
