package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/walletscreen/walletscreen/internal/elliptic"
	"github.com/walletscreen/walletscreen/internal/identity"
	"github.com/walletscreen/walletscreen/internal/logging"
	"github.com/walletscreen/walletscreen/internal/realtime"
	"github.com/walletscreen/walletscreen/internal/screening"
	"github.com/walletscreen/walletscreen/internal/usage"
	"github.com/walletscreen/walletscreen/internal/validation"
)

// -----------------------------------------------------------------------------
// Screening
// -----------------------------------------------------------------------------

type screenRequest struct {
	Handle  string `json:"handle" binding:"required"`
	Address string `json:"address" binding:"required"`
}

func (s *Server) screenHandler(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "handle and address are required",
		})
		return
	}

	handle, ok, msg := validation.ValidateHandle(req.Handle)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_handle",
			"message": msg,
		})
		return
	}

	result, err := s.screener.Screen(c.Request.Context(), handle, validation.SanitizeAddress(req.Address))
	if err != nil {
		s.renderScreeningError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// renderScreeningError maps pipeline failures onto HTTP statuses: denials
// are the caller's problem (403/429), upstream failures are ours (502/504).
func (s *Server) renderScreeningError(c *gin.Context, err error) {
	var denied *screening.DeniedError
	if errors.As(err, &denied) {
		status := http.StatusForbidden
		errCode := "not_authorized"
		if denied.Check != nil {
			// Known, active identity out of quota
			status = http.StatusTooManyRequests
			errCode = "limit_reached"
		}
		c.JSON(status, gin.H{
			"error":   errCode,
			"message": denied.Reason,
			"limits":  denied.Check,
		})
		return
	}

	var vErr *screening.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": vErr.Message,
		})
		return
	}

	var apiErr *elliptic.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		if apiErr.Kind == elliptic.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":   string(apiErr.Kind),
			"message": apiErr.Message,
		})
		return
	}

	logging.L(c.Request.Context()).Error("screening failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}

// -----------------------------------------------------------------------------
// Identity self-service
// -----------------------------------------------------------------------------

func (s *Server) limitsHandler(c *gin.Context) {
	handle := c.Param("handle")

	if _, err := s.identities.Get(c.Request.Context(), handle); err != nil {
		s.renderIdentityError(c, err)
		return
	}

	check, err := s.ledger.CheckLimit(c.Request.Context(), handle)
	if err != nil {
		logging.L(c.Request.Context()).Error("limit check failed", "handle", handle, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, check)
}

func (s *Server) statsHandler(c *gin.Context) {
	handle := c.Param("handle")

	stats, err := s.ledger.Stats(c.Request.Context(), handle)
	if err != nil {
		s.renderIdentityError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) renderIdentityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_identity",
			"message": "No such identity",
		})
	case errors.Is(err, identity.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_exists",
			"message": "Identity already exists",
		})
	case errors.Is(err, identity.ErrAdminImmutable):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "admin_immutable",
			"message": "Admin identities cannot be removed",
		})
	default:
		logging.L(c.Request.Context()).Error("identity operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// -----------------------------------------------------------------------------
// Admin
// -----------------------------------------------------------------------------

// adminAuthMiddleware guards the admin group with a shared secret header.
// With no secret configured the group is disabled outright.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			return
		}
		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin credentials",
			})
			return
		}
		c.Next()
	}
}

type createIdentityRequest struct {
	Handle       string `json:"handle" binding:"required"`
	Username     string `json:"username"`
	DailyLimit   int    `json:"dailyLimit"`
	MonthlyLimit int    `json:"monthlyLimit"`
}

func (s *Server) createIdentityHandler(c *gin.Context) {
	var req createIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "handle is required",
		})
		return
	}

	handle, ok, msg := validation.ValidateHandle(req.Handle)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_handle", "message": msg})
		return
	}

	daily := req.DailyLimit
	if daily == 0 {
		daily = s.cfg.DefaultDailyLimit
	}
	monthly := req.MonthlyLimit
	if monthly == 0 {
		monthly = s.cfg.DefaultMonthlyLimit
	}
	for _, limit := range []int{daily, monthly} {
		if ok, msg := validation.ValidateLimit(limit); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": msg})
			return
		}
	}

	user, err := s.identities.Add(c.Request.Context(), handle, req.Username, daily, monthly)
	if err != nil {
		s.renderIdentityError(c, err)
		return
	}

	s.realtimeHub.Broadcast(&realtime.Event{
		Type:      realtime.EventIdentity,
		Timestamp: time.Now(),
		Data:      gin.H{"action": "created", "handle": user.Handle},
	})

	c.JSON(http.StatusCreated, user)
}

func (s *Server) deleteIdentityHandler(c *gin.Context) {
	handle := c.Param("handle")

	if err := s.identities.Remove(c.Request.Context(), handle); err != nil {
		s.renderIdentityError(c, err)
		return
	}

	s.realtimeHub.Broadcast(&realtime.Event{
		Type:      realtime.EventIdentity,
		Timestamp: time.Now(),
		Data:      gin.H{"action": "removed", "handle": handle},
	})

	c.JSON(http.StatusOK, gin.H{"removed": handle})
}

type setLimitsRequest struct {
	DailyLimit   int `json:"dailyLimit" binding:"required"`
	MonthlyLimit int `json:"monthlyLimit" binding:"required"`
}

func (s *Server) setLimitsHandler(c *gin.Context) {
	handle := c.Param("handle")

	var req setLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "dailyLimit and monthlyLimit are required",
		})
		return
	}
	for _, limit := range []int{req.DailyLimit, req.MonthlyLimit} {
		if ok, msg := validation.ValidateLimit(limit); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": msg})
			return
		}
	}

	user, err := s.identities.SetLimits(c.Request.Context(), handle, req.DailyLimit, req.MonthlyLimit)
	if err != nil {
		s.renderIdentityError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type setStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) setStatusHandler(c *gin.Context) {
	handle := c.Param("handle")

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "active is required",
		})
		return
	}

	user, err := s.identities.SetActive(c.Request.Context(), handle, *req.Active)
	if err != nil {
		s.renderIdentityError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) listIdentitiesHandler(c *gin.Context) {
	users, err := s.identities.List(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("list identities failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"identities": users, "count": len(users)})
}

func (s *Server) identityUsageHandler(c *gin.Context) {
	handle := c.Param("handle")

	stats, err := s.ledger.Stats(c.Request.Context(), handle)
	if err != nil {
		s.renderIdentityError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) allUsageHandler(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := s.identities.List(ctx)
	if err != nil {
		logging.L(ctx).Error("list identities failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	all := make([]*usage.Stats, 0, len(users))
	for _, user := range users {
		stats, err := s.ledger.Stats(ctx, user.Handle)
		if err != nil {
			logging.L(ctx).Error("usage stats failed", "handle", user.Handle, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		all = append(all, stats)
	}
	c.JSON(http.StatusOK, gin.H{"usage": all, "count": len(all)})
}

func (s *Server) recentErrorsHandler(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := s.ledger.RecentErrors(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("list errors failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": events, "count": len(events)})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}
