package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/pkg/config"
	"github.com/noah-isme/idcard-api/pkg/middleware/requestid"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

const (
	rosterEndpoint   = "/users-list"
	rosterTokenKey   = "Access-Token"
	maxErrorBodySize = 2048
)

// RosterRepository reads student records from the upstream users-list API.
type RosterRepository struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRosterRepository validates configuration and builds the client. A missing
// base URL or token is a configuration error.
func NewRosterRepository(cfg config.RosterConfig, httpClient *http.Client, logger *zap.Logger) (*RosterRepository, error) {
	var missing []string
	if strings.TrimSpace(cfg.BaseURL) == "" {
		missing = append(missing, "ROSTER_API_URL")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		missing = append(missing, "ROSTER_API_TOKEN")
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "roster configuration missing: "+strings.Join(missing, ", "))
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterRepository{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// FetchRecords performs one GET of the users list.
func (r *RosterRepository) FetchRecords(ctx context.Context) ([]models.RosterRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+rosterEndpoint, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "invalid roster url")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(rosterTokenKey, r.token)
	requestid.Propagate(ctx, req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFetch.Code, appErrors.ErrUpstreamFetch.Status,
			fmt.Sprintf("roster request failed: %v", err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		msg := fmt.Sprintf("roster request failed: %d %s - %s", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
		return nil, appErrors.Clone(appErrors.ErrUpstreamFetch, msg)
	}

	var payload models.RosterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFetch.Code, appErrors.ErrUpstreamFetch.Status,
			"unexpected roster response: expected {\"data\": [...]}")
	}
	if payload.Data == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstreamFetch, "unexpected roster response: missing data array")
	}
	return payload.Data, nil
}
