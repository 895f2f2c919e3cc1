package jt808

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// 协议时间为东八区
var protocolZone = time.FixedZone("CST", 8*3600)

// EncodeBCD 数字字符串编码为 BCD，左侧补零到 width 位
func EncodeBCD(digits string, width int) ([]byte, error) {
	if len(digits) > width {
		return nil, fmt.Errorf("bcd value %q longer than %d digits", digits, width)
	}
	padded := strings.Repeat("0", width-len(digits)) + digits
	b, err := hex.DecodeString(padded)
	if err != nil {
		return nil, fmt.Errorf("encode bcd %q: %w", digits, err)
	}
	return b, nil
}

// DecodeBCD BCD 字节解码为数字字符串（保留前导零）
func DecodeBCD(b []byte) string {
	return hex.EncodeToString(b)
}

// ParseBCDTime 解析 6 字节 BCD 时间（YY-MM-DD-hh-mm-ss，东八区）
func ParseBCDTime(b []byte) (time.Time, error) {
	if len(b) != 6 {
		return time.Time{}, fmt.Errorf("bcd time needs 6 bytes, got %d", len(b))
	}
	t, err := time.ParseInLocation("060102150405", DecodeBCD(b), protocolZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bcd time: %w", err)
	}
	return t, nil
}

// FormatBCDTime 时间编码为 6 字节 BCD（东八区）
func FormatBCDTime(t time.Time) []byte {
	b, _ := hex.DecodeString(t.In(protocolZone).Format("060102150405"))
	return b
}
