package alert

import (
	"time"

	"github.com/haoyan/vms808/internal/models"
)

// EventType 引擎对外广播的事件类型
type EventType string

const (
	EventAlertCreated       EventType = "alert_created"
	EventAlertAcknowledged  EventType = "alert_acknowledged"
	EventAlertEscalated     EventType = "alert_escalated"
	EventAlertResolved      EventType = "alert_resolved"
	EventFloodingDetected   EventType = "flooding_detected"
	EventEvidenceReady      EventType = "evidence_ready"
	EventCameraVideoRequest EventType = "camera_video_requested"
	EventScreenshotRequest  EventType = "screenshot_requested"
)

// Event 引擎事件，通过订阅通道分发给 WebSocket 等下游
type Event struct {
	Type      EventType          `json:"type"`
	Time      time.Time          `json:"time"`
	Alert     *models.AlertEvent `json:"alert,omitempty"`
	VehicleID string             `json:"vehicle_id,omitempty"`
	Channel   int                `json:"channel,omitempty"`
	Clip      *models.ClipRef    `json:"clip,omitempty"`
	Post      bool               `json:"post,omitempty"`
	Level     int                `json:"level,omitempty"`
	Count     int                `json:"count,omitempty"`

	// 终端侧录像回传请求的时间窗口
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
}
