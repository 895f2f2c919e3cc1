package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/alert"
	"github.com/haoyan/vms808/internal/evidence"
	"github.com/haoyan/vms808/internal/repository"
	"github.com/haoyan/vms808/internal/service"
	"github.com/haoyan/vms808/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger       *zap.Logger
	alertRepo    *repository.AlertRepository
	clipRepo     *repository.ClipRepository
	reportRepo   *repository.ReportRepository
	engine       *alert.Engine
	videoService *service.VideoService
	sessions     *service.SessionRegistry
	evidence     *evidence.Manager
	wsHub        *ws.Hub
	upgrader     websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	alertRepo *repository.AlertRepository,
	clipRepo *repository.ClipRepository,
	reportRepo *repository.ReportRepository,
	engine *alert.Engine,
	videoService *service.VideoService,
	sessions *service.SessionRegistry,
	ev *evidence.Manager,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:       logger,
		alertRepo:    alertRepo,
		clipRepo:     clipRepo,
		reportRepo:   reportRepo,
		engine:       engine,
		videoService: videoService,
		sessions:     sessions,
		evidence:     ev,
		wsHub:        wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 报警
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.GET("/alerts/:id/clips", h.ListAlertClips)

		// 统计
		api.GET("/stats/alerts", h.GetAlertStats)

		// 终端
		api.GET("/terminals", h.ListTerminals)
		api.GET("/terminals/:id/reports", h.ListTerminalReports)
		api.GET("/terminals/:id/buffers", h.GetBufferStats)

		// 音视频指令
		api.POST("/terminals/:id/video/start", h.StartVideo)
		api.POST("/terminals/:id/video/stop", h.StopVideo)
		api.POST("/terminals/:id/video/playback", h.RequestPlayback)
		api.POST("/terminals/:id/snapshot", h.RequestSnapshot)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	// Prometheus 指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"terminals":  len(h.sessions.List()),
		"ws_clients": h.wsHub.ClientCount(),
	})
}
