package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/models"
	"github.com/lorekeep/lorekeep/internal/sessions"
	"github.com/lorekeep/lorekeep/internal/tokens"
	"github.com/lorekeep/lorekeep/internal/users"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/metrics"
	"github.com/lorekeep/lorekeep/pkg/middleware"
)

// AuthHandler serves the account endpoints under /api/auth.
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s}
}

// Register mounts routes on the given group. Authed routes take the shared
// auth middleware.
func (h *AuthHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/signup", h.Signup)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.POST("/logout-all", auth, h.LogoutAll)
	a.GET("/me", auth, h.Me)
	a.PUT("/password", auth, h.ChangePassword)
	a.PUT("/profile", auth, h.UpdateProfile)
	a.GET("/sessions", auth, h.ListSessions)
	a.DELETE("/sessions/:sessionId", auth, h.RevokeSession)
}

type signupRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	FullName         string `json:"full_name"`
	OrganizationName string `json:"organization_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Signup registers a user, provisions a tenant, and returns a token pair.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email and password are required"})
		return
	}

	u, tenant, err := h.usersSvc.Signup(c.Request.Context(), users.SignupInput{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("signup", "failure").Inc()
		h.writeAuthError(c, err)
		return
	}
	metrics.AuthAttempts.WithLabelValues("signup", "success").Inc()
	h.issueTokens(c, http.StatusCreated, u, tenant)
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email and password are required"})
		return
	}

	u, tenant, err := h.usersSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		h.writeAuthError(c, err)
		return
	}
	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	h.issueTokens(c, http.StatusOK, u, tenant)
}

// Refresh rotates the refresh token and returns a fresh token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Refresh token is required"})
		return
	}

	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Refresh validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired refresh token", "error_code": "INVALID_REFRESH_TOKEN"})
		return
	}

	u, err := h.usersSvc.GetByID(c.Request.Context(), sess.UserID)
	if err != nil || u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired refresh token", "error_code": "INVALID_REFRESH_TOKEN"})
		return
	}

	access, jti, err := tokens.GenerateAccessToken(h.cfg, u, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create access token"})
		return
	}
	_, refresh, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken, jti, h.cfg.JWT.RefreshTokenTTL)
	if err != nil || refresh == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to rotate session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tokens":  h.tokenEnvelope(access, refresh),
	})
}

// Logout revokes the refresh session and blacklists the live access token.
// Always answers success so clients can clear local state unconditionally.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if auth := c.GetHeader("Authorization"); auth != "" {
		if at, ok := strings.CutPrefix(auth, "Bearer "); ok && at != "" {
			if claims, err := tokens.ParseAccessToken(h.cfg, at); err == nil {
				if ttl := time.Until(claims.Expires); ttl > 0 {
					if err := sessions.BlacklistAccessToken(c.Request.Context(), at, ttl); err != nil {
						logger.Warnf("failed to blacklist access token: %v", err)
					}
				}
			}
		}
	}

	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		logger.Warnf("failed to delete refresh session: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// LogoutAll revokes every session of the caller except the current one.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	count, err := h.sessionsSvc.RevokeAllSessions(c.Request.Context(), claims.UserID, claims.JTI)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to revoke sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions_revoked": count})
}

// ListSessions returns the caller's live sessions, newest first, marking
// the one bound to the presented access token.
func (h *AuthHandler) ListSessions(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	list, err := h.sessionsSvc.ListSessions(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to list sessions"})
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, s := range list {
		out = append(out, gin.H{
			"id":          s.ID,
			"device_info": s.DeviceInfo,
			"ip_address":  s.IPAddress,
			"created_at":  s.CreatedAt,
			"expires_at":  s.ExpiresAt,
			"is_current":  s.AccessJTI == claims.JTI,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": out})
}

// RevokeSession removes one of the caller's sessions by id.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	ok, err := h.sessionsSvc.RevokeSession(c.Request.Context(), claims.UserID, c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to revoke session"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me returns the authenticated user and tenant.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	u, err := h.usersSvc.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || u == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
		return
	}
	tenant, err := h.usersSvc.GetTenant(c.Request.Context(), u.TenantID)
	if err != nil || tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Tenant not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u, "tenant": tenant})
}

// ChangePassword verifies the current password and sets a new one. Other
// sessions are revoked afterwards unless the caller opts out.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req struct {
		CurrentPassword     string `json:"current_password" binding:"required"`
		NewPassword         string `json:"new_password" binding:"required"`
		LogoutOtherSessions *bool  `json:"logout_other_sessions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Current and new password are required"})
		return
	}
	if err := h.usersSvc.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeAuthError(c, err)
		return
	}
	if req.LogoutOtherSessions == nil || *req.LogoutOtherSessions {
		if _, err := h.sessionsSvc.RevokeAllSessions(c.Request.Context(), claims.UserID, claims.JTI); err != nil {
			logger.Warnf("failed to revoke other sessions after password change: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateProfile applies the caller-editable account fields.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)
	var req struct {
		FullName    *string        `json:"full_name"`
		Timezone    *string        `json:"timezone"`
		Preferences map[string]any `json:"preferences"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Request body is required"})
		return
	}
	u, err := h.usersSvc.UpdateProfile(c.Request.Context(), claims.UserID, users.ProfileUpdate{
		FullName:    req.FullName,
		Timezone:    req.Timezone,
		Preferences: req.Preferences,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to update profile"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

// issueTokens creates an access token and refresh session and writes the
// success envelope.
func (h *AuthHandler) issueTokens(c *gin.Context, status int, u *models.User, tenant *models.Tenant) {
	access, jti, err := tokens.GenerateAccessToken(h.cfg, u, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create access token"})
		return
	}
	meta := sessions.Meta{DeviceInfo: c.Request.UserAgent(), IPAddress: c.ClientIP()}
	refresh, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, u.TenantID, jti, h.cfg.JWT.RefreshTokenTTL, meta)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create session"})
		return
	}
	c.JSON(status, gin.H{
		"success": true,
		"user":    u,
		"tenant":  tenant,
		"tokens":  h.tokenEnvelope(access, refresh),
	})
}

func (h *AuthHandler) tokenEnvelope(access, refresh string) gin.H {
	return gin.H{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(h.cfg.JWT.RefreshTokenTTL.Seconds()),
	}
}

// writeAuthError maps service errors to the documented status codes:
// 423 for locked accounts, 403 for inactive tenants, 401 for everything
// credential-shaped, 400 for validation failures.
func (h *AuthHandler) writeAuthError(c *gin.Context, err error) {
	var ae *users.AuthError
	if !errors.As(err, &ae) {
		logger.Errorf("auth error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	status := http.StatusUnauthorized
	switch ae.Code {
	case users.CodeAccountLocked:
		status = http.StatusLocked
	case users.CodeTenantInactive:
		status = http.StatusForbidden
	case users.CodeInvalidEmail, users.CodeWeakPassword, users.CodeEmailExists:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": false, "error": ae.Message, "error_code": ae.Code})
}
