package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/platform"
	"github.com/siteharbor/siteharbor/internal/rollout"
	"github.com/siteharbor/siteharbor/internal/tenants"
)

type Handler struct {
	repo    *db.Repository
	tenants *tenants.Service
	rollout *rollout.Controller
	logger  *zap.Logger
}

func NewHandler(repo *db.Repository, tenantService *tenants.Service, rolloutCtrl *rollout.Controller, logger *zap.Logger) *Handler {
	return &Handler{
		repo:    repo,
		tenants: tenantService,
		rollout: rolloutCtrl,
		logger:  logger,
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Pre-condition
// rejections carry structured detail; internal failures stay generic so
// provisioning internals don't leak.
func (h *Handler) writeError(c *gin.Context, err error) {
	var quota *tenants.QuotaExceededError
	if errors.As(err, &quota) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "site quota exceeded",
			"used":    quota.Used,
			"allowed": quota.Allowed,
			"hint":    "upgrade your plan to create more sites",
		})
		return
	}

	var conflict *tenants.SlugConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "slug is already taken",
			"slug":  conflict.Slug,
		})
		return
	}

	if errors.Is(err, db.ErrNotFound) || errors.Is(err, platform.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	h.logger.Error("Request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
