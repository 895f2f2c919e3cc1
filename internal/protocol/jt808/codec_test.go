package jt808

import (
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	// 消息体故意包含定界符和转义符
	body := []byte{0x7e, 0x01, 0x7d, 0x02, 0x7e, 0x7d}
	frame, err := codec.Encode(0x0200, "013812345678", 42, body)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[0] != 0x7e || frame[len(frame)-1] != 0x7e {
		t.Fatal("frame not bounded by 0x7e")
	}
	// 帧内部不允许出现裸 0x7e
	if bytes.IndexByte(frame[1:len(frame)-1], 0x7e) >= 0 {
		t.Fatal("unescaped 0x7e inside frame")
	}

	msg, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.ID != 0x0200 {
		t.Errorf("ID = 0x%04x, want 0x0200", msg.ID)
	}
	if msg.TerminalID != "013812345678" {
		t.Errorf("TerminalID = %q", msg.TerminalID)
	}
	if msg.Serial != 42 {
		t.Errorf("Serial = %d", msg.Serial)
	}
	if !bytes.Equal(msg.Body, body) {
		t.Errorf("Body = % x, want % x", msg.Body, body)
	}
	if !msg.ChecksumOK {
		t.Error("ChecksumOK = false")
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	frame, err := codec.Encode(0x0002, "013812345678", 1, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// 构造校验码错误的帧：内容不变，校验字节取反
	unescaped := Unescape(frame[1 : len(frame)-1])
	content := unescaped[:len(unescaped)-1]
	bad := Checksum(content) ^ 0x55
	corrupted := append([]byte{0x7e}, Escape(append(content, bad))...)
	corrupted = append(corrupted, 0x7e)

	msg, err := codec.Decode(corrupted)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// 校验失败也要正常解析，只是打标记
	if msg.ChecksumOK {
		t.Error("ChecksumOK = true, want false")
	}
	if msg.ID != 0x0002 {
		t.Errorf("ID = 0x%04x", msg.ID)
	}
}

func TestDecodeErrors(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"too short", []byte{0x7e, 0x01, 0x7e}, ErrFrameTooShort},
		{"missing delimiter", bytes.Repeat([]byte{0x01}, 20), ErrMissingDelimiter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Decode(tt.frame); err != tt.want {
				t.Errorf("Decode err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeBodyOverrun(t *testing.T) {
	codec := NewCodec(zap.NewNop())

	// 声明消息体长度 100，实际没有
	content := []byte{
		0x02, 0x00, // msg id
		0x00, 0x64, // body props: 100 字节
		0x01, 0x38, 0x12, 0x34, 0x56, 0x78, // terminal
		0x00, 0x01, // serial
	}
	frame := append([]byte{0x7e}, Escape(append(content, Checksum(content)))...)
	frame = append(frame, 0x7e)

	if _, err := codec.Decode(frame); err != ErrBodyOverrun {
		t.Errorf("Decode err = %v, want ErrBodyOverrun", err)
	}
}

func TestEscapeUnescape(t *testing.T) {
	tests := []struct {
		raw     []byte
		escaped []byte
	}{
		{[]byte{0x7e}, []byte{0x7d, 0x02}},
		{[]byte{0x7d}, []byte{0x7d, 0x01}},
		{[]byte{0x30, 0x7e, 0x08, 0x7d, 0x55}, []byte{0x30, 0x7d, 0x02, 0x08, 0x7d, 0x01, 0x55}},
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02}},
	}
	for _, tt := range tests {
		if got := Escape(tt.raw); !bytes.Equal(got, tt.escaped) {
			t.Errorf("Escape(% x) = % x, want % x", tt.raw, got, tt.escaped)
		}
		if got := Unescape(tt.escaped); !bytes.Equal(got, tt.raw) {
			t.Errorf("Unescape(% x) = % x, want % x", tt.escaped, got, tt.raw)
		}
	}
}

func TestBCDTime(t *testing.T) {
	// 协议时间为东八区
	b := []byte{0x25, 0x08, 0x31, 0x15, 0x30, 0x00}
	got, err := ParseBCDTime(b)
	if err != nil {
		t.Fatalf("ParseBCDTime: %v", err)
	}
	want := time.Date(2025, 8, 31, 15, 30, 0, 0, time.FixedZone("CST", 8*3600))
	if !got.Equal(want) {
		t.Errorf("ParseBCDTime = %v, want %v", got, want)
	}
	if got.UTC().Hour() != 7 {
		t.Errorf("UTC hour = %d, want 7", got.UTC().Hour())
	}

	if back := FormatBCDTime(got); !bytes.Equal(back, b) {
		t.Errorf("FormatBCDTime = % x, want % x", back, b)
	}
}

func TestEncodeBCDPadding(t *testing.T) {
	b, err := EncodeBCD("13812345678", 12)
	if err != nil {
		t.Fatalf("EncodeBCD: %v", err)
	}
	if DecodeBCD(b) != "013812345678" {
		t.Errorf("DecodeBCD = %q, want 013812345678", DecodeBCD(b))
	}
}
