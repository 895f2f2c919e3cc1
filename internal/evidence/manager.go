package evidence

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/pkg/clock"
)

type bufKey struct {
	vehicleID string
	channel   int
}

// Manager 按 车辆+通道 管理证据缓冲区
type Manager struct {
	window  time.Duration
	storage Storage
	clk     clock.Clock
	logger  *zap.Logger
	onReady ReadyFunc

	mu      sync.RWMutex
	buffers map[bufKey]*Buffer
}

// NewManager 创建证据管理器
func NewManager(window time.Duration, storage Storage, clk clock.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		window:  window,
		storage: storage,
		clk:     clk,
		logger:  logger,
		buffers: make(map[bufKey]*Buffer),
	}
}

// SetReadyFunc 设置片段完成回调，须在帧开始流入前调用
func (m *Manager) SetReadyFunc(fn ReadyFunc) {
	m.onReady = fn
}

// AddFrame 路由一帧到对应缓冲区，缓冲区不存在时创建
func (m *Manager) AddFrame(vehicleID string, channel int, data []byte, ts time.Time, iframe bool) {
	m.getOrCreate(vehicleID, channel).AddFrame(data, ts, iframe)
}

// Capture 触发取证，缓冲区不存在或为空时返回 (nil, false)
func (m *Manager) Capture(vehicleID string, channel int, alertID string, preSeconds int) (*models.ClipRef, bool) {
	return m.getOrCreate(vehicleID, channel).CaptureEventClip(alertID, preSeconds)
}

func (m *Manager) getOrCreate(vehicleID string, channel int) *Buffer {
	key := bufKey{vehicleID: vehicleID, channel: channel}

	m.mu.RLock()
	buf, ok := m.buffers[key]
	m.mu.RUnlock()
	if ok {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if buf, ok = m.buffers[key]; ok {
		return buf
	}
	buf = NewBuffer(vehicleID, channel, m.window, m.storage, m.clk, m.logger, m.readyFunc)
	m.buffers[key] = buf
	return buf
}

func (m *Manager) readyFunc(vehicleID string, channel int, alertID string, clip *models.ClipRef, post bool) {
	if m.onReady != nil {
		m.onReady(vehicleID, channel, alertID, clip, post)
	}
}

// Stats 所有缓冲区的状态快照
func (m *Manager) Stats() map[string]BufferStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]BufferStats, len(m.buffers))
	for key, buf := range m.buffers {
		out[fmt.Sprintf("%s/%d", key.vehicleID, key.channel)] = buf.Stats()
	}
	return out
}
