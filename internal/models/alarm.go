package models

import "time"

// AlarmReport 位置信息汇报（0x0200）解析结果
// 包含固定报文头的定位/状态字段和可选附加信息块
type AlarmReport struct {
	VehicleID string    `json:"vehicle_id"`
	Time      time.Time `json:"time"`

	// 定位
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  int     `json:"altitude"`  // 米
	Speed     float64 `json:"speed"`     // km/h，协议原值为 0.1km/h
	Heading   int     `json:"heading"`   // 0-359

	// 基础报警/状态位
	AlarmFlag  uint32 `json:"alarm_flag"`
	StatusFlag uint32 `json:"status_flag"`
	AlarmBits  []int  `json:"alarm_bits"`

	// 视频报警附加信息 (0x14)
	HasVideoAlarm  bool   `json:"has_video_alarm"`
	VideoAlarmFlag uint32 `json:"video_alarm_flag"`
	VideoAlarmBits []int  `json:"video_alarm_bits"`

	// 视频信号丢失/遮挡通道列表 (0x15/0x16)，通道号从 1 开始
	SignalLossChannels []int `json:"signal_loss_channels,omitempty"`
	BlockingChannels   []int `json:"blocking_channels,omitempty"`

	// 存储器故障单元列表 (0x17)
	MemoryFailureMain   []int `json:"memory_failure_main,omitempty"`
	MemoryFailureBackup []int `json:"memory_failure_backup,omitempty"`

	// 驾驶行为异常附加信息 (0x18)
	Behavior *BehaviorRecord `json:"behavior,omitempty"`
}

// BehaviorRecord 驾驶行为异常明细
type BehaviorRecord struct {
	Fatigue      bool  `json:"fatigue"`
	PhoneCall    bool  `json:"phone_call"`
	Smoking      bool  `json:"smoking"`
	CustomCode   uint8 `json:"custom_code"`   // 厂商自定义 5 位编码
	FatigueScore uint8 `json:"fatigue_score"` // 0-100
}
