package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/db"
)

type RollingUpdateRequest struct {
	TargetImage string `json:"target_image" binding:"required"`
	ForceUpdate bool   `json:"force_update"`
}

// TriggerRollingUpdate runs an immediate, unscheduled rolling update. The
// batch runs inline; nothing is persisted for it, the caller gets the full
// result when the batch completes or aborts.
func (h *Handler) TriggerRollingUpdate(c *gin.Context) {
	var req RollingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Immediate rolling update requested",
		zap.String("target_image", req.TargetImage),
		zap.String("user_id", c.GetString("user_id")),
	)

	result, err := h.rollout.Run(c.Request.Context(), req.TargetImage, req.ForceUpdate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

type ScheduleMaintenanceRequest struct {
	TargetImage string     `json:"target_image" binding:"required"`
	ForceUpdate bool       `json:"force_update"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (h *Handler) ScheduleMaintenance(c *gin.Context) {
	var req ScheduleMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scheduledAt := time.Now()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	task := &db.MaintenanceTask{
		ID:              uuid.New().String(),
		TargetImage:     req.TargetImage,
		ForceUpdate:     req.ForceUpdate,
		Status:          db.MaintenancePending,
		ScheduledAt:     scheduledAt,
		ServicesUpdated: db.StringSlice{},
		Errors:          db.StringSlice{},
		CreatedBy:       c.GetString("user_id"),
		CreatedAt:       time.Now(),
	}

	if err := h.repo.CreateMaintenanceTask(task); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Maintenance task scheduled",
		zap.String("task_id", task.ID),
		zap.String("target_image", task.TargetImage),
		zap.Time("scheduled_at", task.ScheduledAt),
	)
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) GetMaintenanceTask(c *gin.Context) {
	task, err := h.repo.GetMaintenanceTask(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) ListMaintenanceTasks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	tasks, err := h.repo.ListMaintenanceTasks(limit, (page-1)*limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "page": page, "limit": limit})
}

// CancelMaintenanceTask cancels a task that has not started. Tasks that are
// running or finished are immutable.
func (h *Handler) CancelMaintenanceTask(c *gin.Context) {
	cancelled, err := h.repo.CancelMaintenanceTask(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetMaintenanceStatus reports whether a maintenance window is currently
// open, based on persisted task state.
func (h *Handler) GetMaintenanceStatus(c *gin.Context) {
	tasks, err := h.repo.ListMaintenanceTasks(50, 0)
	if err != nil {
		h.writeError(c, err)
		return
	}

	for _, task := range tasks {
		if task.Status == db.MaintenanceInProgress {
			c.JSON(http.StatusOK, gin.H{"active": true, "task": task})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"active": false})
}
