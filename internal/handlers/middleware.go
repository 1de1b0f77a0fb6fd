package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/storefront/internal/service"
)

const (
	SessionCookie      = "session"
	AdminSessionCookie = "admin_session"

	ctxUserID  = "userID"
	ctxAdminID = "adminID"
)

// bearerOrCookie prefers the Authorization header and falls back to cookie.
func bearerOrCookie(c *gin.Context, cookie string) string {
	if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	if v, err := c.Cookie(cookie); err == nil {
		return v
	}
	return ""
}

// RequireUser puts the authenticated customer's ID into the context.
func RequireUser(auth service.AuthService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerOrCookie(c, SessionCookie)
		if tok == "" {
			fail(c, http.StatusUnauthorized, "login required")
			return
		}
		uid, err := auth.Authenticate(c.Request.Context(), tok)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrInactive):
			fail(c, http.StatusForbidden, "account disabled")
			return
		case errors.Is(err, service.ErrInvalidToken):
			fail(c, http.StatusUnauthorized, "invalid session")
			return
		default:
			respondErr(c, log, err)
			return
		}
		c.Set(ctxUserID, uid)
		c.Next()
	}
}

// RequireAdmin accepts only admin tokens; customer sessions get 403.
func RequireAdmin(admins service.AdminService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerOrCookie(c, AdminSessionCookie)
		if tok == "" {
			fail(c, http.StatusUnauthorized, "admin login required")
			return
		}
		id, err := admins.Authenticate(c.Request.Context(), tok)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrForbidden):
			fail(c, http.StatusForbidden, "admin access required")
			return
		case errors.Is(err, service.ErrInactive):
			fail(c, http.StatusForbidden, "admin account disabled")
			return
		case errors.Is(err, service.ErrInvalidToken):
			fail(c, http.StatusUnauthorized, "invalid admin session")
			return
		default:
			respondErr(c, log, err)
			return
		}
		c.Set(ctxAdminID, id)
		c.Next()
	}
}

// RequestID tags every request with X-Request-ID, reusing the caller's.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// NoStore disables caching of API responses.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func userID(c *gin.Context) uint  { return c.GetUint(ctxUserID) }
func adminID(c *gin.Context) uint { return c.GetUint(ctxAdminID) }
