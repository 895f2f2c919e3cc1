package jt1078

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildPacket 构造一个媒体包
func buildPacket(seq uint16, channel byte, dtype DataType, sub SubpackageFlag, timestamp uint64, payload []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(FrameMarker))
	buf.WriteByte(0x81)                                       // V=2, CC=1
	buf.WriteByte(0x62)                                       // PT: H.264
	binary.Write(&buf, binary.BigEndian, seq)
	buf.Write([]byte{0x01, 0x38, 0x12, 0x34, 0x56, 0x78}) // SIM 卡号 BCD
	buf.WriteByte(channel)
	buf.WriteByte(byte(dtype)<<4 | byte(sub))
	if dtype != DataTypeTransparent {
		binary.Write(&buf, binary.BigEndian, timestamp)
	}
	if dtype.IsVideo() {
		binary.Write(&buf, binary.BigEndian, uint16(40)) // 与上一 I 帧间隔
		binary.Write(&buf, binary.BigEndian, uint16(20)) // 与上一帧间隔
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func TestParsePacketVideo(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xaa}
	raw := buildPacket(7, 2, DataTypeIFrame, SubpackageAtomic, 1700000000000, payload)

	pkt, consumed, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}
	if pkt.TerminalID != "013812345678" {
		t.Errorf("TerminalID = %q", pkt.TerminalID)
	}
	if pkt.Sequence != 7 || pkt.Channel != 2 {
		t.Errorf("Sequence/Channel = %d/%d", pkt.Sequence, pkt.Channel)
	}
	if pkt.DataType != DataTypeIFrame || pkt.Subpackage != SubpackageAtomic {
		t.Errorf("DataType/Subpackage = %d/%d", pkt.DataType, pkt.Subpackage)
	}
	if pkt.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d", pkt.Timestamp)
	}
	if pkt.LastIFrameInterval != 40 || pkt.LastFrameInterval != 20 {
		t.Errorf("intervals = %d/%d", pkt.LastIFrameInterval, pkt.LastFrameInterval)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("Payload = % x", pkt.Payload)
	}
}

func TestParsePacketConditionalFields(t *testing.T) {
	// 透传：无时间戳无帧间隔
	raw := buildPacket(1, 1, DataTypeTransparent, SubpackageAtomic, 0, []byte{0x01, 0x02})
	pkt, _, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("transparent: %v", err)
	}
	if pkt.Timestamp != 0 {
		t.Errorf("transparent Timestamp = %d", pkt.Timestamp)
	}
	if !bytes.Equal(pkt.Payload, []byte{0x01, 0x02}) {
		t.Errorf("transparent Payload = % x", pkt.Payload)
	}

	// 音频：有时间戳无帧间隔
	raw = buildPacket(2, 1, DataTypeAudio, SubpackageAtomic, 12345, []byte{0x03})
	pkt, _, err = ParsePacket(raw)
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	if pkt.Timestamp != 12345 {
		t.Errorf("audio Timestamp = %d", pkt.Timestamp)
	}
	if pkt.LastIFrameInterval != 0 {
		t.Errorf("audio LastIFrameInterval = %d", pkt.LastIFrameInterval)
	}
}

func TestParsePacketErrors(t *testing.T) {
	full := buildPacket(1, 1, DataTypeIFrame, SubpackageAtomic, 1, []byte{0xaa, 0xbb})

	// 任意截断都返回 ErrTruncated
	for cut := 1; cut < len(full); cut++ {
		if _, _, err := ParsePacket(full[:cut]); err != ErrTruncated {
			t.Fatalf("cut=%d: err = %v, want ErrTruncated", cut, err)
		}
	}

	// 帧头不符
	bad := append([]byte{0xde, 0xad, 0xbe, 0xef}, full[4:]...)
	if _, _, err := ParsePacket(bad); err != ErrMarkerMismatch {
		t.Errorf("err = %v, want ErrMarkerMismatch", err)
	}

	// 负载长度超限
	over := buildPacket(1, 1, DataTypeAudio, SubpackageAtomic, 1, nil)
	binary.BigEndian.PutUint16(over[len(over)-2:], MaxPayloadLen+1)
	if _, _, err := ParsePacket(over); err != ErrPayloadOverrun {
		t.Errorf("err = %v, want ErrPayloadOverrun", err)
	}
}
