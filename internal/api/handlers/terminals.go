package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListTerminals 在线终端列表
func (h *Handler) ListTerminals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.sessions.List()})
}

// ListTerminalReports 查询终端最近的位置汇报
func (h *Handler) ListTerminalReports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	reports, err := h.reportRepo.ListByVehicle(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("Failed to list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}

// GetBufferStats 查询终端的证据缓冲状态
func (h *Handler) GetBufferStats(c *gin.Context) {
	terminalID := c.Param("id")

	all := h.evidence.Stats()
	out := make(map[string]interface{})
	for key, stats := range all {
		if stats.VehicleID == terminalID {
			out[key] = stats
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
