package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/haoyan/vms808/internal/alert"
	"github.com/haoyan/vms808/internal/api/handlers"
	"github.com/haoyan/vms808/internal/config"
	"github.com/haoyan/vms808/internal/evidence"
	"github.com/haoyan/vms808/internal/protocol/jt808"
	"github.com/haoyan/vms808/internal/protocol/jt1078"
	"github.com/haoyan/vms808/internal/repository"
	"github.com/haoyan/vms808/internal/service"
	sig "github.com/haoyan/vms808/internal/signal"
	"github.com/haoyan/vms808/pkg/clock"
	"github.com/haoyan/vms808/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting vms808",
		zap.String("http_port", cfg.ServerPort),
		zap.String("jt808_port", cfg.JT808Port),
		zap.String("media_udp_port", cfg.MediaUDPPort))

	// 创建 context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	alertRepo := repository.NewAlertRepository(db)
	clipRepo := repository.NewClipRepository(db)
	reportRepo := repository.NewReportRepository(db)

	clk := clock.Real{}

	// 证据存储与缓冲
	storage, err := evidence.NewFileStorage(cfg.EvidenceDir)
	if err != nil {
		logger.Fatal("Failed to init evidence storage", zap.Error(err))
	}
	evidenceMgr := evidence.NewManager(cfg.EvidenceWindow, storage, clk, logger)

	// 信号目录与报警引擎
	catalog := sig.NewCatalog(cfg.SignalProfile, cfg.PriorityOverrides)
	scheduler := alert.NewScheduler(cfg.EscalationL1, cfg.EscalationL2, clk, logger)
	flood := alert.NewFloodDetector(cfg.FloodWindow, cfg.FloodThreshold, clk)

	engine := alert.NewEngine(
		alert.Config{DedupWindow: cfg.DedupWindow, PreSeconds: cfg.PreSeconds},
		catalog, evidenceMgr, alertRepo, scheduler, flood, clk, logger,
	)
	engine.SetClipStore(clipRepo)
	evidenceMgr.SetReadyFunc(engine.OnEvidenceReady)
	scheduler.Start()
	defer scheduler.Stop()

	// 协议编解码与帧重组
	codec := jt808.NewCodec(logger)
	assembler := jt1078.NewAssembler(logger)
	assembler.Start()
	defer assembler.Stop()

	// 终端接入
	sessions := service.NewSessionRegistry()
	access := service.NewAccessService(
		":"+cfg.JT808Port, ":"+cfg.MediaUDPPort,
		codec, assembler, catalog, engine, evidenceMgr, sessions, logger,
	)
	access.SetReportRepository(reportRepo)
	if err := access.Start(); err != nil {
		logger.Fatal("Failed to start access service", zap.Error(err))
	}
	defer access.Stop()

	// 下行音视频指令
	mediaPort, _ := strconv.Atoi(cfg.MediaUDPPort)
	videoService := service.NewVideoService(codec, sessions, engine, cfg.PublicIP, uint16(mediaPort), uint16(mediaPort), logger)

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	wsHub.SetInitDataProvider(func() *ws.InitData {
		alerts, err := alertRepo.List(ctx, repository.ListFilter{Status: "new", Limit: 50})
		if err != nil {
			logger.Warn("Failed to load init alerts", zap.Error(err))
		}
		return &ws.InitData{
			Sessions: sessions.List(),
			Alerts:   alerts,
		}
	})
	go wsHub.Run()

	// 订阅引擎事件并广播到 WebSocket
	go func() {
		eventCh := engine.Subscribe()
		for ev := range eventCh {
			wsHub.BroadcastAlertEvent(ev)
		}
	}()

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		alertRepo,
		clipRepo,
		reportRepo,
		engine,
		videoService,
		sessions,
		evidenceMgr,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
