package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSPolicy decides which origins see which responses.
type CORSPolicy struct {
	// AllowedOrigins are echoed back on Restricted paths.
	AllowedOrigins []string
	// Restricted paths answer only to AllowedOrigins.
	Restricted []string
	// Skip paths get no CORS headers at all.
	Skip []string
}

// CORS applies the policy. Unrestricted paths send "*". A restricted path
// called from an unknown origin is still served but carries no
// Access-Control-Allow-Origin header, so the browser drops it. Preflight
// requests are answered here with 200.
func CORS(policy CORSPolicy) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(policy.AllowedOrigins))
	for _, o := range policy.AllowedOrigins {
		allowed[strings.TrimSuffix(strings.TrimSpace(o), "/")] = struct{}{}
	}
	restricted := toSet(policy.Restricted)
	skip := toSet(policy.Skip)

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		if _, ok := restricted[path]; ok {
			origin := c.GetHeader("Origin")
			if _, ok := allowed[strings.TrimSuffix(origin, "/")]; ok && origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Vary", "Origin")
		} else {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
