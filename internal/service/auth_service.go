package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

// AuthConfig defines configuration for the operator gate.
type AuthConfig struct {
	Enabled           bool
	PasswordHash      string
	Password          string
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService checks the shared operator password and issues gate tokens.
type AuthService struct {
	validator    *validator.Validate
	logger       *zap.Logger
	config       AuthConfig
	passwordHash []byte
}

// NewAuthService constructs an AuthService. A plaintext password is hashed
// once at construction. An enabled gate without any password is a
// configuration error.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, config AuthConfig) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "idcard-api"
	}

	svc := &AuthService{validator: validate, logger: logger, config: config}
	if !config.Enabled {
		return svc, nil
	}

	switch {
	case strings.TrimSpace(config.PasswordHash) != "":
		svc.passwordHash = []byte(strings.TrimSpace(config.PasswordHash))
	case config.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "failed to hash operator password")
		}
		svc.passwordHash = hash
	default:
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "AUTH_PASSWORD_HASH or AUTH_PASSWORD is required when AUTH_ENABLED=true")
	}
	if strings.TrimSpace(config.AccessTokenSecret) == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "JWT_SECRET is required when AUTH_ENABLED=true")
	}
	return svc, nil
}

// Enabled reports whether requests must carry a gate token.
func (s *AuthService) Enabled() bool {
	return s != nil && s.config.Enabled
}

// Login checks the password and returns a gate token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "login gate disabled")
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil {
		s.logger.Warn("operator login rejected", zap.String("ip", req.IP), zap.String("user_agent", req.UserAgent))
		return nil, appErrors.ErrInvalidCredentials
	}

	token, issuedAt, err := s.generateAccessToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	s.logger.Info("operator logged in", zap.String("ip", req.IP))

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
	}, nil
}

// ValidateToken parses and validates a gate token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.GateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.GateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.GateClaims)
	if !ok || !token.Valid || claims.Subject != models.OperatorSubject {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) generateAccessToken() (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	claims := models.GateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   models.OperatorSubject,
			Issuer:    s.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}
