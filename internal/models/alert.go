package models

import "time"

// Priority 报警优先级
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AlertStatus 报警生命周期状态
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusEscalated    AlertStatus = "escalated"
	AlertStatusResolved     AlertStatus = "resolved"
)

// AlertEvent 报警事件
// 同一 (车辆, 通道, 签名) 在去重窗口内最多只有一条未关闭的事件
type AlertEvent struct {
	ID          string   `json:"id"`
	VehicleID   string   `json:"vehicle_id"`
	Channel     int      `json:"channel"`
	Priority    Priority `json:"priority"`
	PrimaryType string   `json:"primary_type"`
	SignalCodes []string `json:"signal_codes"`

	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`

	Status          AlertStatus `json:"status"`
	EscalationLevel int         `json:"escalation_level"`

	Evidence EvidenceRecord `json:"evidence"`

	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// ClipRef 证据视频片段引用
type ClipRef struct {
	Path       string  `json:"path"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration"` // 秒
	StorageURL string  `json:"storage_url,omitempty"`
}

// EvidenceRecord 报警关联的证据视频记录
// 本地环形缓冲切片（pre/post）与终端回传录像（camera_pre/camera_post）
type EvidenceRecord struct {
	Pre        *ClipRef `json:"pre,omitempty"`
	Post       *ClipRef `json:"post,omitempty"`
	CameraPre  *ClipRef `json:"camera_pre,omitempty"`
	CameraPost *ClipRef `json:"camera_post,omitempty"`
}
