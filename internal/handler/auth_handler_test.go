package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

type authenticatorStub struct {
	enabled bool
	lastIP  string
}

func (a *authenticatorStub) Enabled() bool { return a.enabled }

func (a *authenticatorStub) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	a.lastIP = req.IP
	if req.Password != "letmein" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600, IssuedAt: time.Now()}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	stub := &authenticatorStub{enabled: true}
	h := NewAuthHandler(stub)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"password":"letmein"}`))
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"tok"`)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"password":"nope"}`))
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`not json`))
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerLoginDisabled(t *testing.T) {
	h := NewAuthHandler(&authenticatorStub{enabled: false})
	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"password":"letmein"}`))
	h.Login(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
