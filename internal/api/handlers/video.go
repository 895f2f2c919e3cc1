package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/service"
)

type videoRequest struct {
	Channel byte `json:"channel" binding:"required"`
}

type playbackRequest struct {
	Channel byte      `json:"channel" binding:"required"`
	Start   time.Time `json:"start" binding:"required"`
	End     time.Time `json:"end" binding:"required"`
}

type snapshotRequest struct {
	Channel byte   `json:"channel" binding:"required"`
	Count   uint16 `json:"count"`
}

func (h *Handler) videoError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrTerminalOffline) {
		c.JSON(http.StatusConflict, gin.H{"error": "Terminal offline"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// StartVideo 请求终端推送实时视频
func (h *Handler) StartVideo(c *gin.Context) {
	var req videoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	terminalID := c.Param("id")
	if err := h.videoService.RequestRealtime(terminalID, req.Channel); err != nil {
		h.logger.Error("Failed to request realtime video", zap.String("terminal_id", terminalID), zap.Error(err))
		h.videoError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Realtime video requested",
		"terminal_id": terminalID,
		"channel":     req.Channel,
	})
}

// StopVideo 停止实时视频
func (h *Handler) StopVideo(c *gin.Context) {
	var req videoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	terminalID := c.Param("id")
	if err := h.videoService.StopStream(terminalID, req.Channel); err != nil {
		h.videoError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Stream stopped",
		"terminal_id": terminalID,
		"channel":     req.Channel,
	})
}

// RequestPlayback 请求录像回放
func (h *Handler) RequestPlayback(c *gin.Context) {
	var req playbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !req.End.After(req.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "End must be after start"})
		return
	}

	terminalID := c.Param("id")
	if err := h.videoService.RequestPlayback(terminalID, req.Channel, req.Start, req.End); err != nil {
		h.videoError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Playback requested",
		"terminal_id": terminalID,
		"channel":     req.Channel,
	})
}

// RequestSnapshot 远程抓拍
func (h *Handler) RequestSnapshot(c *gin.Context) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	terminalID := c.Param("id")
	if err := h.videoService.RequestSnapshot(terminalID, req.Channel, req.Count); err != nil {
		h.videoError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Snapshot requested",
		"terminal_id": terminalID,
		"channel":     req.Channel,
		"count":       req.Count,
	})
}
