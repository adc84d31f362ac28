package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/appvault/appvault/internal/sessions"
	"github.com/appvault/appvault/pkg/metrics"
)

// SessionCookie is the name of the cookie holding the opaque session id.
const SessionCookie = "appvault_session"

// SessionResolver is the minimal interface the auth gate depends on
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*sessions.Session, error)
}

// SessionAuth returns a Gin middleware that resolves the session cookie and
// rejects the request with a generic 401 when no live session exists. The
// response never says whether the cookie was absent, unknown or expired.
func SessionAuth(svc SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || id == "" {
			metrics.AuthFailures.WithLabelValues("gate").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		sess, err := svc.Resolve(c.Request.Context(), id)
		if err != nil || sess == nil {
			metrics.AuthFailures.WithLabelValues("gate").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set("session", sess)
		c.Set("sub", sess.Sub)
		c.Next()
	}
}

// OptionalSession resolves the session when present but never rejects; used
// by endpoints that render for both states.
func OptionalSession(svc SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
			if sess, err := svc.Resolve(c.Request.Context(), id); err == nil && sess != nil {
				c.Set("session", sess)
				c.Set("sub", sess.Sub)
			}
		}
		c.Next()
	}
}
