package signal

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"github.com/haoyan/vms808/internal/models"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// 厂商透传报警编码表（ADAS 1xxxx / DMS 11xxx）
var vendorCodeTable = map[int]Detail{
	10001: {Code: "adas_10001_forward_collision_warning", Label: "Forward Collision Warning", Meaning: "前向碰撞预警", Kind: KindCollision, DefaultPriority: models.PriorityCritical, SourceRef: "苏标 ADAS 0x2711"},
	10002: {Code: "adas_10002_lane_departure_warning", Label: "Lane Departure Warning", Meaning: "车道偏离预警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 ADAS 0x2712"},
	10003: {Code: "adas_10003_headway_too_close", Label: "Headway Monitoring Warning", Meaning: "车距过近预警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityMedium, SourceRef: "苏标 ADAS 0x2713"},
	10004: {Code: "adas_10004_pedestrian_collision_warning", Label: "Pedestrian Collision Warning", Meaning: "行人碰撞预警", Kind: KindCollision, DefaultPriority: models.PriorityCritical, SourceRef: "苏标 ADAS 0x2714"},
	10005: {Code: "adas_10005_frequent_lane_change", Label: "Frequent Lane Change", Meaning: "频繁变道预警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityMedium, SourceRef: "苏标 ADAS 0x2715"},
	10006: {Code: "adas_10006_road_sign_overspeed", Label: "Road Sign Overspeed", Meaning: "道路标识超速预警", Kind: KindOverspeed, DefaultPriority: models.PriorityMedium, SourceRef: "苏标 ADAS 0x2716"},
	11001: {Code: "dms_11001_fatigue_driving", Label: "Fatigue Driving", Meaning: "疲劳驾驶报警", Kind: KindFatigue, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 DMS 0x2AF9"},
	11002: {Code: "dms_11002_phone_call", Label: "Phone Call While Driving", Meaning: "接打电话报警", Kind: KindPhone, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 DMS 0x2AFA"},
	11003: {Code: "dms_11003_smoking", Label: "Smoking While Driving", Meaning: "抽烟报警", Kind: KindSmoking, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 DMS 0x2AFB"},
	11004: {Code: "dms_11004_distracted_driving", Label: "Distracted Driving", Meaning: "分神驾驶报警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 DMS 0x2AFC"},
	11005: {Code: "dms_11005_driver_abnormal", Label: "Driver Abnormal", Meaning: "驾驶员异常报警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityHigh, SourceRef: "苏标 DMS 0x2AFD"},
}

// 文本短语匹配表，按声明顺序匹配（先长短语后短短语）
var vendorPhrases = []struct {
	phrase string
	code   int
}{
	{"前向碰撞", 10001},
	{"车道偏离", 10002},
	{"车距过近", 10003},
	{"行人碰撞", 10004},
	{"频繁变道", 10005},
	{"疲劳驾驶", 11001},
	{"接打电话", 11002},
	{"打电话", 11002},
	{"抽烟", 11003},
	{"吸烟", 11003},
	{"分神驾驶", 11004},
	{"驾驶员异常", 11005},
}

var fiveDigitRe = regexp.MustCompile(`\b(\d{5})\b`)

// DecodeVendorText 透传负载按 GBK 解码为文本，解码失败时退回原始字节串
func DecodeVendorText(payload []byte) string {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}

// VendorSignalFromCode 按厂商编码查信号
func (c *Catalog) VendorSignalFromCode(code int) (string, bool) {
	d, ok := vendorCodeTable[code]
	if !ok {
		return "", false
	}
	return d.Code, true
}

// VendorSignalFromText 从解码文本匹配信号：先已知短语，再 5 位数字编码
func (c *Catalog) VendorSignalFromText(text string) (string, bool) {
	for _, p := range vendorPhrases {
		if strings.Contains(text, p.phrase) {
			return vendorCodeTable[p.code].Code, true
		}
	}
	if m := fiveDigitRe.FindString(text); m != "" {
		if num, err := strconv.Atoi(m); err == nil {
			if code, ok := c.VendorSignalFromCode(num); ok {
				return code, true
			}
		}
	}
	return "", false
}

// VendorSignalFromPayload 透传负载的完整匹配链：
// 已知短语 → 文本内 5 位编码 → 前两字节大端编码 → 前两字节小端编码
// 多条规则可能同时命中畸形负载，按此固定顺序取第一个命中项
func (c *Catalog) VendorSignalFromPayload(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}

	if code, ok := c.VendorSignalFromText(DecodeVendorText(payload)); ok {
		return code, true
	}

	if len(payload) >= 2 {
		if code, ok := c.VendorSignalFromCode(int(binary.BigEndian.Uint16(payload[0:2]))); ok {
			return code, true
		}
		if code, ok := c.VendorSignalFromCode(int(binary.LittleEndian.Uint16(payload[0:2]))); ok {
			return code, true
		}
	}

	return "", false
}

// vendorDetailByCode 按信号编码字符串反查厂商详情
func vendorDetailByCode(code string) (Detail, bool) {
	for _, d := range vendorCodeTable {
		if d.Code == code {
			return d, true
		}
	}
	return Detail{}, false
}

// numericPart 提取信号编码中的 5 位数字部分（adas_10001_... → "10001"）
func numericPart(code string) string {
	if m := fiveDigitRe.FindString(strings.ReplaceAll(code, "_", " ")); m != "" {
		return m
	}
	return ""
}
