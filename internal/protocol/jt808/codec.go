package jt808

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	frameDelimiter = 0x7e
	escapeMarker   = 0x7d

	// 消息头 12 字节 + 校验码 1 字节
	minFrameLen = 13
)

var (
	ErrFrameTooShort    = errors.New("jt808: frame too short")
	ErrMissingDelimiter = errors.New("jt808: frame not bounded by 0x7e")
	ErrBodyOverrun      = errors.New("jt808: declared body length overruns frame")
)

// Message 终端管理协议消息
type Message struct {
	ID         uint16
	BodyProps  uint16
	TerminalID string // 12 位 BCD 号码
	Serial     uint16
	Body       []byte
	Checksum   byte
	ChecksumOK bool
}

// BodyLength 消息体长度（消息体属性低 10 位）
func (m *Message) BodyLength() int {
	return int(m.BodyProps & 0x03ff)
}

// Codec 消息封包/解包器
// 校验失败不作为错误：现场终端存在校验计算缺陷，丢弃会损失合法数据
type Codec struct {
	logger *zap.Logger
}

// NewCodec 创建编解码器
func NewCodec(logger *zap.Logger) *Codec {
	return &Codec{logger: logger}
}

// Decode 解析一帧完整报文（含两端 0x7e）
func (c *Codec) Decode(raw []byte) (*Message, error) {
	if len(raw) < minFrameLen+2 {
		return nil, ErrFrameTooShort
	}
	if raw[0] != frameDelimiter || raw[len(raw)-1] != frameDelimiter {
		return nil, ErrMissingDelimiter
	}

	unescaped := Unescape(raw[1 : len(raw)-1])
	if len(unescaped) < minFrameLen {
		return nil, ErrFrameTooShort
	}

	content := unescaped[:len(unescaped)-1]
	checksum := unescaped[len(unescaped)-1]

	msg := &Message{
		ID:         binary.BigEndian.Uint16(content[0:2]),
		BodyProps:  binary.BigEndian.Uint16(content[2:4]),
		TerminalID: DecodeBCD(content[4:10]),
		Serial:     binary.BigEndian.Uint16(content[10:12]),
		Checksum:   checksum,
	}

	bodyLen := msg.BodyLength()
	if 12+bodyLen > len(content) {
		return nil, ErrBodyOverrun
	}
	msg.Body = content[12 : 12+bodyLen]

	msg.ChecksumOK = Checksum(content) == checksum
	if !msg.ChecksumOK {
		c.logger.Warn("校验码不匹配，继续处理",
			zap.String("terminal_id", msg.TerminalID),
			zap.Uint16("msg_id", msg.ID),
			zap.Uint8("expected", Checksum(content)),
			zap.Uint8("got", checksum))
	}

	return msg, nil
}

// Encode 构造一帧完整报文
func (c *Codec) Encode(msgID uint16, terminalID string, serial uint16, body []byte) ([]byte, error) {
	terminal, err := EncodeBCD(terminalID, 12)
	if err != nil {
		return nil, fmt.Errorf("encode terminal id: %w", err)
	}
	if len(body) > 0x03ff {
		return nil, fmt.Errorf("jt808: body length %d exceeds 10-bit limit", len(body))
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, msgID)
	binary.Write(&buf, binary.BigEndian, uint16(len(body)))
	buf.Write(terminal)
	binary.Write(&buf, binary.BigEndian, serial)
	buf.Write(body)

	content := buf.Bytes()
	escaped := Escape(append(content, Checksum(content)))

	frame := make([]byte, 0, len(escaped)+2)
	frame = append(frame, frameDelimiter)
	frame = append(frame, escaped...)
	frame = append(frame, frameDelimiter)
	return frame, nil
}

// Checksum 消息头到消息体逐字节异或
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// Escape 转义：0x7d→0x7d01, 0x7e→0x7d02
func Escape(data []byte) []byte {
	result := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case frameDelimiter:
			result = append(result, escapeMarker, 0x02)
		case escapeMarker:
			result = append(result, escapeMarker, 0x01)
		default:
			result = append(result, b)
		}
	}
	return result
}

// Unescape 反转义
func Unescape(data []byte) []byte {
	result := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == escapeMarker && i+1 < len(data) {
			switch data[i+1] {
			case 0x01:
				result = append(result, escapeMarker)
				i++
				continue
			case 0x02:
				result = append(result, frameDelimiter)
				i++
				continue
			}
		}
		result = append(result, data[i])
	}
	return result
}
