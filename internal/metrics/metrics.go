package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 接入层
var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_jt808_frames_decoded_total",
		Help: "解析成功的 JT808 帧数",
	})
	FramesMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_jt808_frames_malformed_total",
		Help: "结构异常被丢弃的 JT808 帧数",
	})
	ChecksumMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_jt808_checksum_mismatch_total",
		Help: "校验和不匹配但仍被处理的帧数",
	})
	MediaPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_jt1078_packets_total",
		Help: "收到的 JT1078 媒体包数",
	})
	MediaPacketsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_jt1078_packets_malformed_total",
		Help: "结构异常被丢弃的 JT1078 包数",
	})
)

// 帧重组
var (
	FramesAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_frames_assembled_total",
		Help: "重组完成的媒体帧数",
	})
	FramesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_frames_discarded_total",
		Help: "因序号断裂或超时丢弃的未完成帧数",
	})
)

// 报警引擎
var (
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms808_alerts_created_total",
		Help: "生成的报警事件数",
	}, []string{"priority"})
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_alerts_suppressed_total",
		Help: "被去重窗口抑制的报警数",
	})
	AlertsEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_alerts_escalated_total",
		Help: "升级的报警数",
	})
	FloodsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vms808_floods_detected_total",
		Help: "检测到的报警风暴次数",
	})
)

// 证据
var (
	ClipsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vms808_evidence_clips_written_total",
		Help: "落盘的证据片段数",
	}, []string{"kind"})
)
