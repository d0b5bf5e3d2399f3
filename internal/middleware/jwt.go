package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/idcard-api/internal/models"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/response"
)

// ContextOperatorKey is the gin context key storing the gate claims.
const ContextOperatorKey = "operator"

// TokenValidator checks operator bearer tokens.
type TokenValidator interface {
	Enabled() bool
	ValidateToken(token string) (*models.GateClaims, error)
}

// JWT protects routes by requiring a valid operator token. When the gate is
// disabled every request passes.
func JWT(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil || !auth.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			response.AbortError(c, appErrors.ErrUnauthorized)
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.AbortError(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		claims, err := auth.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			response.AbortError(c, err)
			return
		}

		c.Set(ContextOperatorKey, claims)
		c.Next()
	}
}

// OperatorFromContext returns the claims attached by JWT, if any.
func OperatorFromContext(c *gin.Context) *models.GateClaims {
	value, exists := c.Get(ContextOperatorKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.GateClaims)
	return claims
}
