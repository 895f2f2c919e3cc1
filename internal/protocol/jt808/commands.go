package jt808

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// 平台下行消息 ID
const (
	MsgGeneralAck        = 0x8001 // 平台通用应答
	MsgRegisterAck       = 0x8100 // 终端注册应答
	MsgSetParams         = 0x8103 // 设置终端参数
	MsgSnapshot          = 0x8801 // 摄像头立即拍摄
	MsgAVCapabilityQuery = 0x9003 // 查询终端音视频属性
	MsgRealtimeRequest   = 0x9101 // 实时音视频传输请求
	MsgStreamControl     = 0x9102 // 音视频实时传输控制
	MsgPlaybackRequest   = 0x9201 // 远程录像回放请求
	MsgResourceListQuery = 0x9205 // 查询资源列表
	MsgFTPUploadRequest  = 0x9206 // 文件上传指令（FTP）
)

// 终端上行消息 ID
const (
	MsgTerminalHeartbeat = 0x0002
	MsgTerminalRegister  = 0x0100
	MsgTerminalAuth      = 0x0102
	MsgLocationReport    = 0x0200
	MsgTransparentData   = 0x0900
)

var serialCounter atomic.Uint32

// NextSerial 生成流水号
func NextSerial() uint16 {
	return uint16(serialCounter.Add(1))
}

// StreamControlCmd 0x9102 控制指令
const (
	StreamCtrlStop      = 0 // 关闭音视频传输
	StreamCtrlSwitch    = 1 // 切换码流
	StreamCtrlPause     = 2 // 暂停
	StreamCtrlResume    = 3 // 恢复
	StreamCtrlCloseTalk = 4 // 关闭双向对讲
)

// BuildGeneralAck 平台通用应答
func (c *Codec) BuildGeneralAck(terminalID string, replySerial, replyMsgID uint16, result byte) ([]byte, error) {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, replySerial)
	binary.Write(&body, binary.BigEndian, replyMsgID)
	body.WriteByte(result)
	return c.Encode(MsgGeneralAck, terminalID, NextSerial(), body.Bytes())
}

// BuildRegisterAck 终端注册应答，携带鉴权码
func (c *Codec) BuildRegisterAck(terminalID string, replySerial uint16, result byte, authCode string) ([]byte, error) {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, replySerial)
	body.WriteByte(result)
	if result == 0 {
		body.WriteString(authCode)
	}
	return c.Encode(MsgRegisterAck, terminalID, NextSerial(), body.Bytes())
}

// BuildRealtimeRequest 实时音视频传输请求
// dataType: 0 音视频 1 视频 2 双向对讲 3 监听 4 中心广播 5 透传
// streamType: 0 主码流 1 子码流
func (c *Codec) BuildRealtimeRequest(terminalID, serverIP string, tcpPort, udpPort uint16, channel, dataType, streamType byte) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(len(serverIP)))
	body.WriteString(serverIP)
	binary.Write(&body, binary.BigEndian, tcpPort)
	binary.Write(&body, binary.BigEndian, udpPort)
	body.WriteByte(channel)
	body.WriteByte(dataType)
	body.WriteByte(streamType)
	return c.Encode(MsgRealtimeRequest, terminalID, NextSerial(), body.Bytes())
}

// BuildStreamControl 实时传输控制（停止/切换/暂停/恢复）
func (c *Codec) BuildStreamControl(terminalID string, channel, cmd, closeType, streamType byte) ([]byte, error) {
	body := []byte{channel, cmd, closeType, streamType}
	return c.Encode(MsgStreamControl, terminalID, NextSerial(), body)
}

// BuildPlaybackRequest 远程录像回放请求（时间窗）
func (c *Codec) BuildPlaybackRequest(terminalID, serverIP string, tcpPort, udpPort uint16, channel, mediaType, streamType, storageType, playbackMode, speed byte, start, end time.Time) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(len(serverIP)))
	body.WriteString(serverIP)
	binary.Write(&body, binary.BigEndian, tcpPort)
	binary.Write(&body, binary.BigEndian, udpPort)
	body.WriteByte(channel)
	body.WriteByte(mediaType)
	body.WriteByte(streamType)
	body.WriteByte(storageType)
	body.WriteByte(playbackMode)
	body.WriteByte(speed)
	body.Write(FormatBCDTime(start))
	body.Write(FormatBCDTime(end))
	return c.Encode(MsgPlaybackRequest, terminalID, NextSerial(), body.Bytes())
}

// BuildResourceListQuery 查询终端录像资源列表
func (c *Codec) BuildResourceListQuery(terminalID string, channel byte, start, end time.Time, alarmFlag uint64, mediaType, streamType, storageType byte) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(channel)
	body.Write(FormatBCDTime(start))
	body.Write(FormatBCDTime(end))
	binary.Write(&body, binary.BigEndian, alarmFlag)
	body.WriteByte(mediaType)
	body.WriteByte(streamType)
	body.WriteByte(storageType)
	return c.Encode(MsgResourceListQuery, terminalID, NextSerial(), body.Bytes())
}

// BuildFTPUploadRequest 终端录像文件 FTP 上传指令
func (c *Codec) BuildFTPUploadRequest(terminalID, ftpAddr string, ftpPort uint16, username, password, path string, channel byte, start, end time.Time, alarmFlag uint64, mediaType, streamType, storageType byte) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(len(ftpAddr)))
	body.WriteString(ftpAddr)
	binary.Write(&body, binary.BigEndian, ftpPort)
	body.WriteByte(byte(len(username)))
	body.WriteString(username)
	body.WriteByte(byte(len(password)))
	body.WriteString(password)
	body.WriteByte(byte(len(path)))
	body.WriteString(path)
	body.WriteByte(channel)
	body.Write(FormatBCDTime(start))
	body.Write(FormatBCDTime(end))
	binary.Write(&body, binary.BigEndian, alarmFlag)
	body.WriteByte(mediaType)
	body.WriteByte(streamType)
	body.WriteByte(storageType)
	// 任务执行条件：bit0 WIFI bit1 LAN bit2 3G/4G
	body.WriteByte(0x07)
	return c.Encode(MsgFTPUploadRequest, terminalID, NextSerial(), body.Bytes())
}

// TerminalParam 终端参数项
type TerminalParam struct {
	ID    uint32
	Value []byte
}

// BuildSetParams 设置终端参数（0x8103）
func (c *Codec) BuildSetParams(terminalID string, params []TerminalParam) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(len(params)))
	for _, p := range params {
		binary.Write(&body, binary.BigEndian, p.ID)
		body.WriteByte(byte(len(p.Value)))
		body.Write(p.Value)
	}
	return c.Encode(MsgSetParams, terminalID, NextSerial(), body.Bytes())
}

// VideoAlarmMaskParam 视频报警屏蔽字参数（0x0079）
func VideoAlarmMaskParam(mask uint32) TerminalParam {
	value := make([]byte, 4)
	binary.BigEndian.PutUint32(value, mask)
	return TerminalParam{ID: 0x0079, Value: value}
}

// VideoEncodingParam 音视频编码参数（0x0075）
func VideoEncodingParam(streamType, resolution byte, keyframeInterval uint16, frameRate byte, bitrate uint32) TerminalParam {
	var value bytes.Buffer
	value.WriteByte(streamType)
	value.WriteByte(resolution)
	binary.Write(&value, binary.BigEndian, keyframeInterval)
	value.WriteByte(frameRate)
	binary.Write(&value, binary.BigEndian, bitrate)
	return TerminalParam{ID: 0x0075, Value: value.Bytes()}
}

// BuildAVCapabilityQuery 查询终端音视频属性
func (c *Codec) BuildAVCapabilityQuery(terminalID string) ([]byte, error) {
	return c.Encode(MsgAVCapabilityQuery, terminalID, NextSerial(), nil)
}

// BuildSnapshotRequest 摄像头立即拍摄命令
func (c *Codec) BuildSnapshotRequest(terminalID string, channel byte, count uint16, resolution, quality byte) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(channel)
	binary.Write(&body, binary.BigEndian, count)
	binary.Write(&body, binary.BigEndian, uint16(0)) // 间隔/录像时间
	body.WriteByte(0x01)                             // 保存标志
	body.WriteByte(resolution)
	body.WriteByte(quality)
	body.WriteByte(0x7f) // 亮度
	body.WriteByte(0x7f) // 对比度
	body.WriteByte(0x7f) // 饱和度
	body.WriteByte(0x7f) // 色度
	return c.Encode(MsgSnapshot, terminalID, NextSerial(), body.Bytes())
}
