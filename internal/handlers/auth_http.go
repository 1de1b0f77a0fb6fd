package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/storefront/internal/service"
)

type AuthHTTP struct {
	S            service.AuthService
	Log          *zap.Logger
	SessionTTL   time.Duration
	SecureCookie bool
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type emailReq struct {
	Email string `json:"email" binding:"required,email"`
}

type passwordReq struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=72"`
}

func NewAuthHTTP(s service.AuthService, log *zap.Logger, ttl time.Duration, secure bool) *AuthHTTP {
	return &AuthHTTP{S: s, Log: log, SessionTTL: ttl, SecureCookie: secure}
}

func setSessionCookie(c *gin.Context, name, value string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", secure, true)
}

func (h *AuthHTTP) Register(c *gin.Context) {
	var in service.RegisterInput
	if !bind(c, &in) {
		return
	}
	err := h.S.Register(c.Request.Context(), in)
	switch {
	case err == nil:
		respondCreated(c, nil, "registered, check your inbox to verify your email")
	case errors.Is(err, service.ErrExistsUnverified):
		respondOK(c, nil, "verification link sent again")
	case errors.Is(err, service.ErrExistsVerified):
		fail(c, http.StatusConflict, "email already registered")
	default:
		respondErr(c, h.Log, err)
	}
}

func (h *AuthHTTP) Verify(c *gin.Context) {
	t := c.Query("token")
	if t == "" {
		fail(c, http.StatusBadRequest, "missing token")
		return
	}
	if err := h.S.VerifyEmail(c.Request.Context(), t); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Resend answers 200 whether or not the address is known.
func (h *AuthHTTP) Resend(c *gin.Context) {
	var in emailReq
	if !bind(c, &in) {
		return
	}
	if err := h.S.ResendVerification(c.Request.Context(), in.Email); err != nil {
		h.Log.Warn("resend verification", zap.Error(err))
	}
	respondOK(c, nil, "if the address is registered, a verification link was sent")
}

func (h *AuthHTTP) Login(c *gin.Context) {
	var in loginReq
	if !bind(c, &in) {
		return
	}
	tok, u, err := h.S.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	setSessionCookie(c, SessionCookie, tok, int(h.SessionTTL.Seconds()), h.SecureCookie)
	respondOK(c, gin.H{"token": tok, "token_type": "Bearer", "user": u}, "logged in")
}

func (h *AuthHTTP) Logout(c *gin.Context) {
	setSessionCookie(c, SessionCookie, "", -1, h.SecureCookie)
	respondOK(c, nil, "logged out")
}

func (h *AuthHTTP) Me(c *gin.Context) {
	u, err := h.S.Me(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, u, "")
}

func (h *AuthHTTP) UpdateMe(c *gin.Context) {
	var in service.ProfileInput
	if !bind(c, &in) {
		return
	}
	u, err := h.S.UpdateProfile(c.Request.Context(), userID(c), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, u, "profile updated")
}

func (h *AuthHTTP) ChangePassword(c *gin.Context) {
	var in passwordReq
	if !bind(c, &in) {
		return
	}
	if err := h.S.ChangePassword(c.Request.Context(), userID(c), in.CurrentPassword, in.NewPassword); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "password changed")
}
