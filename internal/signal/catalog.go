package signal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haoyan/vms808/internal/models"
)

// Kind 信号类别，报警引擎据此定主类型与优先级
type Kind string

const (
	KindEmergency        Kind = "emergency"
	KindCollision        Kind = "collision"
	KindRollover         Kind = "rollover"
	KindFatigue          Kind = "fatigue"
	KindDangerousDriving Kind = "dangerous_driving"
	KindPhone            Kind = "phone"
	KindSmoking          Kind = "smoking"
	KindOverspeed        Kind = "overspeed"
	KindStorageFailure   Kind = "storage_failure"
	KindVideoSignal      Kind = "video_signal"
	KindOvercrowding     Kind = "overcrowding"
	KindOther            Kind = "other"
)

// Detail 信号的标签、含义、类别与出处
type Detail struct {
	Code            string
	Label           string
	Meaning         string
	Kind            Kind
	DefaultPriority models.Priority
	SourceRef       string
}

// 基础报警标志位表（位置汇报报警标志 DWORD）
var baseBitTable = map[int]Detail{
	0:  {Code: "jt808_emergency", Label: "Emergency Alarm", Meaning: "紧急报警（SOS 触发）", Kind: KindEmergency, DefaultPriority: models.PriorityCritical, SourceRef: "JT/T 808 表24 bit0"},
	1:  {Code: "jt808_overspeed", Label: "Overspeed Alarm", Meaning: "超速报警", Kind: KindOverspeed, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 表24 bit1"},
	2:  {Code: "jt808_fatigue", Label: "Fatigue Driving", Meaning: "疲劳驾驶", Kind: KindFatigue, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit2"},
	3:  {Code: "jt808_dangerous_driving", Label: "Dangerous Driving Warning", Meaning: "危险预警", Kind: KindDangerousDriving, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit3"},
	4:  {Code: "jt808_gnss_fault", Label: "GNSS Module Fault", Meaning: "GNSS 模块发生故障", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit4"},
	5:  {Code: "jt808_gnss_antenna_cut", Label: "GNSS Antenna Disconnected", Meaning: "GNSS 天线未接或被剪断", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit5"},
	6:  {Code: "jt808_gnss_antenna_short", Label: "GNSS Antenna Short Circuit", Meaning: "GNSS 天线短路", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit6"},
	7:  {Code: "jt808_main_power_undervoltage", Label: "Main Power Undervoltage", Meaning: "终端主电源欠压", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit7"},
	8:  {Code: "jt808_main_power_off", Label: "Main Power Off", Meaning: "终端主电源掉电", Kind: KindOther, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 表24 bit8"},
	11: {Code: "jt808_camera_fault", Label: "Camera Fault", Meaning: "摄像头故障", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit11"},
	13: {Code: "jt808_overspeed_warning", Label: "Overspeed Warning", Meaning: "超速预警", Kind: KindOverspeed, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 表24 bit13"},
	14: {Code: "jt808_fatigue_warning", Label: "Fatigue Warning", Meaning: "疲劳驾驶预警", Kind: KindFatigue, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit14"},
	18: {Code: "jt808_driving_overtime", Label: "Daily Driving Overtime", Meaning: "当天累计驾驶超时", Kind: KindFatigue, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit18"},
	19: {Code: "jt808_overtime_parking", Label: "Overtime Parking", Meaning: "超时停车", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit19"},
	20: {Code: "jt808_area_alarm", Label: "Area Alarm", Meaning: "进出区域报警", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit20"},
	21: {Code: "jt808_route_alarm", Label: "Route Alarm", Meaning: "进出路线报警", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 bit21"},
	23: {Code: "jt808_route_deviation", Label: "Route Deviation", Meaning: "路线偏离报警", Kind: KindOther, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 表24 bit23"},
	25: {Code: "jt808_fuel_abnormal", Label: "Fuel Abnormal", Meaning: "车辆油量异常", Kind: KindOther, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 表24 bit25"},
	26: {Code: "jt808_vehicle_stolen", Label: "Vehicle Stolen", Meaning: "车辆被盗（通过车辆防盗器）", Kind: KindOther, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit26"},
	27: {Code: "jt808_illegal_ignition", Label: "Illegal Ignition", Meaning: "车辆非法点火", Kind: KindOther, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit27"},
	28: {Code: "jt808_illegal_move", Label: "Illegal Displacement", Meaning: "车辆非法位移", Kind: KindOther, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 表24 bit28"},
	29: {Code: "jt808_collision_warning", Label: "Collision Warning", Meaning: "碰撞预警", Kind: KindCollision, DefaultPriority: models.PriorityCritical, SourceRef: "JT/T 808 表24 bit29"},
	30: {Code: "jt808_rollover_warning", Label: "Rollover Warning", Meaning: "侧翻预警", Kind: KindRollover, DefaultPriority: models.PriorityCritical, SourceRef: "JT/T 808 表24 bit30"},
}

// 视频相关报警位表（附加信息 0x14，7 个定义位）
var videoBitTable = map[int]Detail{
	0: {Code: "video_signal_loss", Label: "Video Signal Loss", Meaning: "视频信号丢失", Kind: KindVideoSignal, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 1078 表13 bit0"},
	1: {Code: "video_signal_blocking", Label: "Video Signal Blocking", Meaning: "视频信号遮挡", Kind: KindVideoSignal, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 1078 表13 bit1"},
	2: {Code: "video_storage_failure", Label: "Storage Unit Failure", Meaning: "存储单元故障", Kind: KindStorageFailure, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 1078 表13 bit2"},
	3: {Code: "video_device_fault", Label: "Other Video Device Failure", Meaning: "其他视频设备故障", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 1078 表13 bit3"},
	4: {Code: "bus_overcrowding", Label: "Bus Overcrowding", Meaning: "客车超员", Kind: KindOvercrowding, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 1078 表13 bit4"},
	5: {Code: "abnormal_driving", Label: "Abnormal Driving Behavior", Meaning: "异常驾驶行为", Kind: KindDangerousDriving, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 1078 表13 bit5"},
	6: {Code: "special_recording_threshold", Label: "Special Recording Storage Threshold", Meaning: "特殊报警录像达到存储阈值", Kind: KindStorageFailure, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 1078 表13 bit6"},
}

// 驾驶行为异常信号（附加信息 0x18）
var behaviorTable = map[string]Detail{
	"dms_fatigue_driving": {Code: "dms_fatigue_driving", Label: "Fatigue Driving", Meaning: "驾驶行为分析：疲劳", Kind: KindFatigue, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 1078 表14 bit0"},
	"dms_phone_call":      {Code: "dms_phone_call", Label: "Phone Call While Driving", Meaning: "驾驶行为分析：接打电话", Kind: KindPhone, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 1078 表14 bit1"},
	"dms_smoking":         {Code: "dms_smoking", Label: "Smoking While Driving", Meaning: "驾驶行为分析：抽烟", Kind: KindSmoking, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 1078 表14 bit2"},
}

// Catalog 信号目录：协议位与厂商编码到命名信号的唯一映射
// 分类与默认优先级都以此为准
type Catalog struct {
	profile   string
	overrides map[int]models.Priority // 厂商编码优先级覆盖
}

// NewCatalog 创建目录
// profile 为 full/all/raw 时不过滤常驻基础设施故障信号
func NewCatalog(profile string, overrides map[int]models.Priority) *Catalog {
	if overrides == nil {
		overrides = make(map[int]models.Priority)
	}
	return &Catalog{profile: profile, overrides: overrides}
}

// SignalsFromReport 从位置汇报提取全部信号编码，有序
func (c *Catalog) SignalsFromReport(r *models.AlarmReport) []string {
	var codes []string

	for _, bit := range r.AlarmBits {
		if d, ok := baseBitTable[bit]; ok {
			codes = append(codes, d.Code)
		} else {
			// 未定义位也产生通用信号，便于运营方发现未登记的厂商位
			codes = append(codes, fmt.Sprintf("jt808_alarm_bit_%d", bit))
		}
	}

	for _, bit := range r.VideoAlarmBits {
		if d, ok := videoBitTable[bit]; ok {
			codes = append(codes, d.Code)
		} else {
			codes = append(codes, fmt.Sprintf("video_alarm_bit_%d", bit))
		}
	}

	if len(r.SignalLossChannels) > 0 {
		codes = append(codes, channelSignal("video_signal_loss_channels", r.SignalLossChannels))
	}
	if len(r.BlockingChannels) > 0 {
		codes = append(codes, channelSignal("video_signal_blocking_channels", r.BlockingChannels))
	}
	if len(r.MemoryFailureMain) > 0 {
		codes = append(codes, channelSignal("memory_failure_main", r.MemoryFailureMain))
	}
	if len(r.MemoryFailureBackup) > 0 {
		codes = append(codes, channelSignal("memory_failure_backup", r.MemoryFailureBackup))
	}

	if b := r.Behavior; b != nil {
		if b.Fatigue {
			codes = append(codes, "dms_fatigue_driving")
		}
		if b.PhoneCall {
			codes = append(codes, "dms_phone_call")
		}
		if b.Smoking {
			codes = append(codes, "dms_smoking")
		}
		if b.CustomCode != 0 {
			codes = append(codes, fmt.Sprintf("dms_custom_%d", b.CustomCode))
		}
	}

	return codes
}

func channelSignal(prefix string, channels []int) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = strconv.Itoa(ch)
	}
	return prefix + "_" + strings.Join(parts, "_")
}

// Detail 查询信号编码的详情，未知编码返回通用详情
func (c *Catalog) Detail(code string) Detail {
	for _, d := range baseBitTable {
		if d.Code == code {
			return d
		}
	}
	for _, d := range videoBitTable {
		if d.Code == code {
			return d
		}
	}
	if d, ok := behaviorTable[code]; ok {
		return d
	}
	if d, ok := vendorDetailByCode(code); ok {
		return c.applyOverride(d)
	}

	switch {
	case strings.HasPrefix(code, "video_signal_loss_channels_"):
		return Detail{Code: code, Label: "Video Signal Loss (Channels)", Meaning: "指定通道视频信号丢失", Kind: KindVideoSignal, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 附加信息 0x15"}
	case strings.HasPrefix(code, "video_signal_blocking_channels_"):
		return Detail{Code: code, Label: "Video Signal Blocking (Channels)", Meaning: "指定通道视频信号遮挡", Kind: KindVideoSignal, DefaultPriority: models.PriorityMedium, SourceRef: "JT/T 808 附加信息 0x16"}
	case strings.HasPrefix(code, "memory_failure_main_"):
		return Detail{Code: code, Label: "Main Storage Failure", Meaning: "主存储器故障", Kind: KindStorageFailure, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 附加信息 0x17"}
	case strings.HasPrefix(code, "memory_failure_backup_"):
		return Detail{Code: code, Label: "Backup Storage Failure", Meaning: "灾备存储器故障", Kind: KindStorageFailure, DefaultPriority: models.PriorityHigh, SourceRef: "JT/T 808 附加信息 0x17"}
	case strings.HasPrefix(code, "dms_custom_"):
		return Detail{Code: code, Label: "Custom Driving Behavior " + strings.TrimPrefix(code, "dms_custom_"), Meaning: "厂商自定义驾驶行为", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 1078 表14 自定义位"}
	case strings.HasPrefix(code, "jt808_alarm_bit_"):
		return Detail{Code: code, Label: "Alarm Bit " + strings.TrimPrefix(code, "jt808_alarm_bit_"), Meaning: "未登记的报警标志位", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 808 表24 未定义位"}
	case strings.HasPrefix(code, "video_alarm_bit_"):
		return Detail{Code: code, Label: "Video Alarm Bit " + strings.TrimPrefix(code, "video_alarm_bit_"), Meaning: "未登记的视频报警位", Kind: KindOther, DefaultPriority: models.PriorityLow, SourceRef: "JT/T 1078 表13 未定义位"}
	}

	return Detail{Code: code, Label: code, Meaning: "未登记信号", Kind: KindOther, DefaultPriority: models.PriorityLow}
}

// PriorityFor 信号默认优先级（含运营方覆盖）
func (c *Catalog) PriorityFor(code string) models.Priority {
	return c.Detail(code).DefaultPriority
}

func (c *Catalog) applyOverride(d Detail) Detail {
	if num, err := strconv.Atoi(numericPart(d.Code)); err == nil {
		if p, ok := c.overrides[num]; ok {
			d.DefaultPriority = p
		}
	}
	return d
}

// Actionable 是否允许产生报警事件
// 常驻的视频信号丢失/遮挡类故障在默认运营档位下不生成事件，避免持续刷屏
func (c *Catalog) Actionable(code string) bool {
	switch c.profile {
	case "full", "all", "raw":
		return true
	}
	if code == "video_signal_loss" || code == "video_signal_blocking" {
		return false
	}
	if strings.HasPrefix(code, "video_signal_loss_channels_") ||
		strings.HasPrefix(code, "video_signal_blocking_channels_") {
		return false
	}
	return true
}

// FilterActionable 过滤后保留可产生事件的信号
func (c *Catalog) FilterActionable(codes []string) []string {
	var out []string
	for _, code := range codes {
		if c.Actionable(code) {
			out = append(out, code)
		}
	}
	return out
}
