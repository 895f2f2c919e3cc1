package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/alert"
	"github.com/haoyan/vms808/internal/repository"
)

// ListAlerts 查询报警列表
func (h *Handler) ListAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := repository.ListFilter{
		VehicleID: c.Query("vehicle_id"),
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	}

	alerts, err := h.alertRepo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
		},
	})
}

// GetAlert 查询报警详情，优先取内存中的活动报警
func (h *Handler) GetAlert(c *gin.Context) {
	id := c.Param("id")

	if a, ok := h.engine.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"data": a})
		return
	}

	a, err := h.alertRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": a})
}

// AcknowledgeAlert 确认报警
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")

	a, err := h.engine.Acknowledge(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Alert acknowledged via API", zap.String("alert_id", id))
	c.JSON(http.StatusOK, gin.H{"data": a})
}

// ResolveAlert 解决报警
func (h *Handler) ResolveAlert(c *gin.Context) {
	id := c.Param("id")

	a, err := h.engine.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Alert resolved via API", zap.String("alert_id", id))
	c.JSON(http.StatusOK, gin.H{"data": a})
}

// ListAlertClips 查询报警的证据片段
func (h *Handler) ListAlertClips(c *gin.Context) {
	clips, err := h.clipRepo.ListByAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to list clips", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clips"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": clips})
}

// GetAlertStats 报警统计
func (h *Handler) GetAlertStats(c *gin.Context) {
	stats, err := h.alertRepo.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get alert stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
