package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/siteharbor/siteharbor/internal/db"
)

type AnnouncementRequest struct {
	Title     string `json:"title" binding:"required,min=1,max=255"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

func (h *Handler) CreateAnnouncement(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	a := &db.Announcement{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Body:      req.Body,
		Published: req.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.CreateAnnouncement(a); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAnnouncements(c *gin.Context) {
	publishedOnly := c.DefaultQuery("published", "false") == "true"

	announcements, err := h.repo.ListAnnouncements(publishedOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": announcements})
}

func (h *Handler) UpdateAnnouncement(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.repo.GetAnnouncement(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	a.Title = req.Title
	a.Body = req.Body
	a.Published = req.Published

	if err := h.repo.UpdateAnnouncement(a); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAnnouncement(c *gin.Context) {
	if err := h.repo.DeleteAnnouncement(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
