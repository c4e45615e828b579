package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/tenants"
)

type CreateSiteRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
	Slug string `json:"slug" binding:"required,min=2,max=63"`
	Plan string `json:"plan"`
}

func (h *Handler) CreateSite(c *gin.Context) {
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")

	tenant, err := h.tenants.Create(c.Request.Context(), tenants.CreateRequest{
		UserID: userID,
		Name:   req.Name,
		Slug:   req.Slug,
		Plan:   req.Plan,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Site created",
		zap.String("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.String("user_id", userID),
	)
	c.JSON(http.StatusCreated, tenant)
}

func (h *Handler) GetSite(c *gin.Context) {
	tenant, err := h.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *Handler) ListSites(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sites, err := h.tenants.List(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites, "page": page, "limit": limit})
}

func (h *Handler) DeleteSite(c *gin.Context) {
	if err := h.tenants.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartSite(c *gin.Context) {
	if err := h.tenants.Start(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (h *Handler) StopSite(c *gin.Context) {
	if err := h.tenants.Stop(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *Handler) RestartSite(c *gin.Context) {
	if err := h.tenants.Restart(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (h *Handler) GetSiteHealth(c *gin.Context) {
	report, err := h.tenants.Health(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetSiteLogs(c *gin.Context) {
	tail, _ := strconv.Atoi(c.DefaultQuery("tail", "100"))
	if tail < 1 || tail > 10000 {
		tail = 100
	}

	logs, err := h.tenants.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
