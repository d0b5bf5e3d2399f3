package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorSubject is the subject of every gate token; there is a single operator role.
const OperatorSubject = "operator"

// LoginRequest holds the shared operator password.
type LoginRequest struct {
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued gate token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// GateClaims is the JWT payload of a gate token.
type GateClaims struct {
	jwt.RegisteredClaims
}
