package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/alert"
	"github.com/haoyan/vms808/internal/protocol/jt808"
)

// VideoService 下行音视频指令服务
// 只负责指令构造与下发，码流回传仍由接入服务统一处理
type VideoService struct {
	codec    *jt808.Codec
	sessions *SessionRegistry
	engine   *alert.Engine
	logger   *zap.Logger

	// 实时传输请求中回传给终端的服务器地址
	serverIP string
	tcpPort  uint16
	udpPort  uint16
}

// NewVideoService 创建视频指令服务
func NewVideoService(codec *jt808.Codec, sessions *SessionRegistry, engine *alert.Engine, serverIP string, tcpPort, udpPort uint16, logger *zap.Logger) *VideoService {
	return &VideoService{
		codec:    codec,
		sessions: sessions,
		engine:   engine,
		logger:   logger,
		serverIP: serverIP,
		tcpPort:  tcpPort,
		udpPort:  udpPort,
	}
}

func (v *VideoService) send(terminalID string, frame []byte, err error) error {
	if err != nil {
		return fmt.Errorf("build command: %w", err)
	}
	if err := v.sessions.Send(terminalID, frame); err != nil {
		return err
	}
	return nil
}

// RequestRealtime 请求终端推送实时视频（主码流）
func (v *VideoService) RequestRealtime(terminalID string, channel byte) error {
	frame, err := v.codec.BuildRealtimeRequest(terminalID, v.serverIP, v.tcpPort, v.udpPort, channel, 1, 0)
	if err := v.send(terminalID, frame, err); err != nil {
		return err
	}

	v.logger.Info("下发实时视频请求",
		zap.String("terminal_id", terminalID),
		zap.Uint8("channel", channel))
	v.engine.PublishControl(alert.Event{
		Type:      alert.EventCameraVideoRequest,
		VehicleID: terminalID,
		Channel:   int(channel),
	})
	return nil
}

// StopStream 停止指定通道的实时传输
func (v *VideoService) StopStream(terminalID string, channel byte) error {
	frame, err := v.codec.BuildStreamControl(terminalID, channel, jt808.StreamCtrlStop, 0, 0)
	if err := v.send(terminalID, frame, err); err != nil {
		return err
	}
	v.logger.Info("下发停流指令",
		zap.String("terminal_id", terminalID),
		zap.Uint8("channel", channel))
	return nil
}

// RequestPlayback 请求终端回放指定时间窗的录像
func (v *VideoService) RequestPlayback(terminalID string, channel byte, start, end time.Time) error {
	frame, err := v.codec.BuildPlaybackRequest(terminalID, v.serverIP, v.tcpPort, v.udpPort, channel, 0, 0, 0, 0, 0, start, end)
	if err := v.send(terminalID, frame, err); err != nil {
		return err
	}
	v.logger.Info("下发录像回放请求",
		zap.String("terminal_id", terminalID),
		zap.Uint8("channel", channel),
		zap.Time("start", start),
		zap.Time("end", end))
	return nil
}

// QueryResources 查询终端录像资源列表
func (v *VideoService) QueryResources(terminalID string, channel byte, start, end time.Time) error {
	frame, err := v.codec.BuildResourceListQuery(terminalID, channel, start, end, 0, 0, 0, 0)
	return v.send(terminalID, frame, err)
}

// RequestSnapshot 远程抓拍
func (v *VideoService) RequestSnapshot(terminalID string, channel byte, count uint16) error {
	frame, err := v.codec.BuildSnapshotRequest(terminalID, channel, count, 0x01, 5)
	if err := v.send(terminalID, frame, err); err != nil {
		return err
	}

	v.logger.Info("下发抓拍指令",
		zap.String("terminal_id", terminalID),
		zap.Uint8("channel", channel),
		zap.Uint16("count", count))
	v.engine.PublishControl(alert.Event{
		Type:      alert.EventScreenshotRequest,
		VehicleID: terminalID,
		Channel:   int(channel),
	})
	return nil
}

// RequestFTPUpload 指令终端把事发时间窗的录像经 FTP 回传
func (v *VideoService) RequestFTPUpload(terminalID string, channel byte, start, end time.Time, ftpAddr string, ftpPort uint16, username, password, path string) error {
	frame, err := v.codec.BuildFTPUploadRequest(terminalID, ftpAddr, ftpPort, username, password, path, channel, start, end, 0, 0, 0, 0)
	if err := v.send(terminalID, frame, err); err != nil {
		return err
	}
	v.logger.Info("下发录像上传指令",
		zap.String("terminal_id", terminalID),
		zap.Uint8("channel", channel))
	return nil
}
