package jt1078

import (
	"encoding/binary"
	"errors"

	"github.com/haoyan/vms808/internal/protocol/jt808"
)

// FrameMarker 实时音视频包固定帧头 "01cd"
const FrameMarker = 0x30316364

// MaxPayloadLen 协议规定的最大负载长度
const MaxPayloadLen = 950

// DataType 数据类型（高 4 位）
type DataType byte

const (
	DataTypeIFrame      DataType = 0
	DataTypePFrame      DataType = 1
	DataTypeBFrame      DataType = 2
	DataTypeAudio       DataType = 3
	DataTypeTransparent DataType = 4
)

// IsVideo I/P/B 帧
func (d DataType) IsVideo() bool { return d <= DataTypeBFrame }

// SubpackageFlag 分包处理标记（低 4 位）
type SubpackageFlag byte

const (
	SubpackageAtomic SubpackageFlag = 0 // 原子包
	SubpackageFirst  SubpackageFlag = 1
	SubpackageLast   SubpackageFlag = 2
	SubpackageMiddle SubpackageFlag = 3
)

var (
	ErrTruncated      = errors.New("jt1078: packet truncated")
	ErrMarkerMismatch = errors.New("jt1078: frame marker mismatch")
	ErrPayloadOverrun = errors.New("jt1078: payload length exceeds limit")
)

// Packet 实时音视频包
type Packet struct {
	Sequence   uint16
	TerminalID string
	Channel    byte
	DataType   DataType
	Subpackage SubpackageFlag

	// 时间戳/帧间隔字段按数据类型有条件存在：
	// 透传无时间戳；音频有时间戳无帧间隔；视频两者都有
	Timestamp          uint64 // 毫秒
	LastIFrameInterval uint16
	LastFrameInterval  uint16

	PayloadType byte
	Marker      bool
	Payload     []byte
}

// 固定头：帧头4 + V/P/X/CC 1 + M/PT 1 + 序号2 + SIM卡号6 + 通道1 + 类型1
const fixedHeaderLen = 16

// ParsePacket 从缓冲区头部解析一个媒体包，返回包和消耗的字节数
// 数据不足返回 ErrTruncated（流式调用方等待更多数据）；
// 帧头不符或长度非法返回对应错误，调用方丢弃数据
func ParsePacket(buf []byte) (*Packet, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncated
	}
	if binary.BigEndian.Uint32(buf[0:4]) != FrameMarker {
		return nil, 0, ErrMarkerMismatch
	}
	if len(buf) < fixedHeaderLen {
		return nil, 0, ErrTruncated
	}

	pkt := &Packet{
		PayloadType: buf[5] & 0x7f,
		Marker:      buf[5]&0x80 != 0,
		Sequence:    binary.BigEndian.Uint16(buf[6:8]),
		TerminalID:  jt808.DecodeBCD(buf[8:14]),
		Channel:     buf[14],
		DataType:    DataType(buf[15] >> 4),
		Subpackage:  SubpackageFlag(buf[15] & 0x0f),
	}

	offset := fixedHeaderLen
	if pkt.DataType != DataTypeTransparent {
		if len(buf) < offset+8 {
			return nil, 0, ErrTruncated
		}
		pkt.Timestamp = binary.BigEndian.Uint64(buf[offset : offset+8])
		offset += 8
	}
	if pkt.DataType.IsVideo() {
		if len(buf) < offset+4 {
			return nil, 0, ErrTruncated
		}
		pkt.LastIFrameInterval = binary.BigEndian.Uint16(buf[offset : offset+2])
		pkt.LastFrameInterval = binary.BigEndian.Uint16(buf[offset+2 : offset+4])
		offset += 4
	}

	if len(buf) < offset+2 {
		return nil, 0, ErrTruncated
	}
	payloadLen := int(binary.BigEndian.Uint16(buf[offset : offset+2]))
	offset += 2
	if payloadLen > MaxPayloadLen {
		return nil, 0, ErrPayloadOverrun
	}
	if len(buf) < offset+payloadLen {
		return nil, 0, ErrTruncated
	}
	pkt.Payload = buf[offset : offset+payloadLen]

	return pkt, offset + payloadLen, nil
}
