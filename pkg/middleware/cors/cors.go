package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Options controls the headers emitted by the middleware.
type Options struct {
	AllowedOrigins   []string
	AllowCredentials bool
	AllowHeaders     string
	AllowMethods     string
	MaxAge           string
	PreflightStatus  int
}

// New returns a CORS middleware for the authenticated API.
func New(allowedOrigins []string) gin.HandlerFunc {
	return WithOptions(Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Authorization, Content-Type, X-Requested-With, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		MaxAge:           "600",
		PreflightStatus:  http.StatusNoContent,
	})
}

// Permissive allows any origin for read-only GET endpoints and answers
// preflight with 200.
func Permissive() gin.HandlerFunc {
	return WithOptions(Options{
		AllowHeaders:    "Content-Type",
		AllowMethods:    "GET, OPTIONS",
		MaxAge:          "86400",
		PreflightStatus: http.StatusOK,
	})
}

// WithOptions builds the middleware from explicit options.
func WithOptions(opts Options) gin.HandlerFunc {
	allowAll := len(opts.AllowedOrigins) == 0
	originSet := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}
	preflight := opts.PreflightStatus
	if preflight == 0 {
		preflight = http.StatusNoContent
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case !opts.AllowCredentials && allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && (allowAll || hasOrigin(originSet, origin)):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
		case origin == "" && allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		if opts.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if opts.AllowHeaders != "" {
			h.Set("Access-Control-Allow-Headers", opts.AllowHeaders)
		}
		if opts.AllowMethods != "" {
			h.Set("Access-Control-Allow-Methods", opts.AllowMethods)
		}
		if opts.MaxAge != "" {
			h.Set("Access-Control-Max-Age", opts.MaxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(preflight)
			return
		}

		c.Next()
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	if len(originSet) == 0 {
		return true
	}

	origin = strings.TrimRight(origin, "/")
	_, ok := originSet[origin]
	return ok
}
