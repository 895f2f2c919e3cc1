package evidence

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/pkg/clock"
)

// 兜底定时器在窗口时长之外的宽限
const postFallbackGrace = 5 * time.Second

// Frame 缓冲区内一帧
type Frame struct {
	Data   []byte
	Time   time.Time
	IFrame bool
}

// ReadyFunc 片段落盘完成回调；post 窗口在无帧时 clip 为 nil
type ReadyFunc func(vehicleID string, channel int, alertID string, clip *models.ClipRef, post bool)

// Buffer 单路（车辆+通道）环形证据缓冲
// 淘汰以帧自身时间戳为基准，回放/积压的流也能保持窗口有界
type Buffer struct {
	vehicleID string
	channel   int
	window    time.Duration
	storage   Storage
	clk       clock.Clock
	logger    *zap.Logger
	onReady   ReadyFunc

	mu     sync.Mutex
	frames []Frame
	post   *postRecording
}

// postRecording 事后录制窗口
type postRecording struct {
	alertID    string
	frames     []Frame
	firstFrame time.Time
	fallback   clock.Timer
}

// BufferStats 缓冲区状态
type BufferStats struct {
	VehicleID  string  `json:"vehicle_id"`
	Channel    int     `json:"channel"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"`
	PostOpen   bool    `json:"post_open"`
}

// NewBuffer 创建缓冲区
func NewBuffer(vehicleID string, channel int, window time.Duration, storage Storage, clk clock.Clock, logger *zap.Logger, onReady ReadyFunc) *Buffer {
	return &Buffer{
		vehicleID: vehicleID,
		channel:   channel,
		window:    window,
		storage:   storage,
		clk:       clk,
		logger:    logger,
		onReady:   onReady,
	}
}

// AddFrame 插入一帧并按帧时间戳淘汰窗口外的旧帧
func (b *Buffer) AddFrame(data []byte, ts time.Time, iframe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame := Frame{Data: data, Time: ts, IFrame: iframe}
	b.frames = append(b.frames, frame)

	cutoff := ts.Add(-b.window)
	idx := 0
	for idx < len(b.frames) && b.frames[idx].Time.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		b.frames = b.frames[idx:]
	}

	if b.post != nil {
		if b.post.firstFrame.IsZero() {
			b.post.firstFrame = ts
		}
		b.post.frames = append(b.post.frames, frame)
		if ts.Sub(b.post.firstFrame) >= b.window {
			b.finalizePostLocked("window elapsed")
		}
	}
}

// CaptureEventClip 触发取证：同步切出事前片段并打开事后录制窗口
// 缓冲区为空时返回 (nil, false)，不报错；调用方须检查后再使用证据
func (b *Buffer) CaptureEventClip(alertID string, preSeconds int) (*models.ClipRef, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pre := b.sliceLocked(preSeconds)
	var clip *models.ClipRef
	if len(pre) > 0 {
		clip = b.writeClipLocked(alertID, pre, "pre")
	}

	if b.post == nil {
		// 同一缓冲区同时只允许一个事后窗口；已有窗口时新触发不再开启
		b.post = &postRecording{
			alertID: alertID,
			fallback: b.clk.AfterFunc(b.window+postFallbackGrace, func() {
				b.finalizePostFallback(alertID)
			}),
		}
	} else {
		b.logger.Warn("事后录制窗口已存在，忽略新触发",
			zap.String("vehicle_id", b.vehicleID),
			zap.Int("channel", b.channel),
			zap.String("active_alert", b.post.alertID),
			zap.String("new_alert", alertID))
	}

	if clip == nil {
		return nil, false
	}
	if b.onReady != nil {
		b.onReady(b.vehicleID, b.channel, alertID, clip, false)
	}
	return clip, true
}

// sliceLocked 取最近 preSeconds 秒内的帧
func (b *Buffer) sliceLocked(preSeconds int) []Frame {
	if len(b.frames) == 0 {
		return nil
	}
	cutoff := b.frames[len(b.frames)-1].Time.Add(-time.Duration(preSeconds) * time.Second)
	for i, f := range b.frames {
		if !f.Time.Before(cutoff) {
			out := make([]Frame, len(b.frames)-i)
			copy(out, b.frames[i:])
			return out
		}
	}
	return nil
}

// writeClipLocked 片段落盘，失败时记日志返回 nil（报警不因证据失败受阻）
func (b *Buffer) writeClipLocked(alertID string, frames []Frame, kind string) *models.ClipRef {
	name := fmt.Sprintf("%s_ch%d_%s_%s.h264", b.vehicleID, b.channel, alertID, kind)
	data := make([][]byte, len(frames))
	for i, f := range frames {
		data[i] = f.Data
	}

	path, err := b.storage.WriteClip(name, data)
	if err != nil {
		b.logger.Error("证据片段写入失败",
			zap.String("vehicle_id", b.vehicleID),
			zap.Int("channel", b.channel),
			zap.String("alert_id", alertID),
			zap.Error(err))
		return nil
	}

	duration := frames[len(frames)-1].Time.Sub(frames[0].Time).Seconds()
	return &models.ClipRef{
		Path:       path,
		FrameCount: len(frames),
		Duration:   duration,
	}
}

// finalizePostFallback 兜底定时器触发：帧停止到达时也保证窗口收尾
func (b *Buffer) finalizePostFallback(alertID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.post == nil || b.post.alertID != alertID {
		return
	}
	b.finalizePostLocked("fallback timer")
}

func (b *Buffer) finalizePostLocked(reason string) {
	post := b.post
	b.post = nil
	if post.fallback != nil {
		post.fallback.Stop()
	}

	var clip *models.ClipRef
	if len(post.frames) > 0 {
		clip = b.writeClipLocked(post.alertID, post.frames, "post")
	}

	b.logger.Info("事后录制窗口结束",
		zap.String("vehicle_id", b.vehicleID),
		zap.Int("channel", b.channel),
		zap.String("alert_id", post.alertID),
		zap.String("reason", reason),
		zap.Int("frames", len(post.frames)))

	if b.onReady != nil {
		b.onReady(b.vehicleID, b.channel, post.alertID, clip, true)
	}
}

// Stats 当前缓冲状态
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := BufferStats{
		VehicleID:  b.vehicleID,
		Channel:    b.channel,
		FrameCount: len(b.frames),
		PostOpen:   b.post != nil,
	}
	if len(b.frames) > 1 {
		stats.Duration = b.frames[len(b.frames)-1].Time.Sub(b.frames[0].Time).Seconds()
	}
	return stats
}
