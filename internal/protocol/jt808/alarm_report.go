package jt808

import (
	"encoding/binary"

	"github.com/haoyan/vms808/internal/models"
)

// 位置汇报固定字段长度：报警标志4 + 状态4 + 纬度4 + 经度4 + 高程2 + 速度2 + 方向2 + 时间6
const locationHeaderLen = 28

// 附加信息 ID
const (
	extVideoAlarm    = 0x14 // 视频相关报警 DWORD
	extSignalLoss    = 0x15 // 视频信号丢失通道 DWORD
	extBlocking      = 0x16 // 视频信号遮挡通道 DWORD
	extMemoryFailure = 0x17 // 存储器故障 WORD
	extBehavior      = 0x18 // 驾驶行为异常 WORD + BYTE
)

// ParseAlarmReport 解析 0x0200 位置信息汇报消息体
// 消息体短于固定字段长度时返回 nil；附加信息长度越界则停止解析，已解析字段保留
func ParseAlarmReport(body []byte, vehicleID string) *models.AlarmReport {
	if len(body) < locationHeaderLen {
		return nil
	}

	report := &models.AlarmReport{
		VehicleID:  vehicleID,
		AlarmFlag:  binary.BigEndian.Uint32(body[0:4]),
		StatusFlag: binary.BigEndian.Uint32(body[4:8]),
		Latitude:   float64(binary.BigEndian.Uint32(body[8:12])) / 1e6,
		Longitude:  float64(binary.BigEndian.Uint32(body[12:16])) / 1e6,
		Altitude:   int(binary.BigEndian.Uint16(body[16:18])),
		Speed:      float64(binary.BigEndian.Uint16(body[18:20])) / 10,
		Heading:    int(binary.BigEndian.Uint16(body[20:22])),
	}
	if t, err := ParseBCDTime(body[22:28]); err == nil {
		report.Time = t
	}
	report.AlarmBits = setBits(report.AlarmFlag)

	parseExtensions(body[locationHeaderLen:], report)
	return report
}

// parseExtensions 解析 (id, length, value) 重复结构的附加信息
// 未知 ID 按声明长度跳过，保持向前兼容
func parseExtensions(data []byte, report *models.AlarmReport) {
	for len(data) >= 2 {
		id := data[0]
		length := int(data[1])
		if 2+length > len(data) {
			// 声明长度越界，终止解析
			return
		}
		value := data[2 : 2+length]

		switch id {
		case extVideoAlarm:
			if length == 4 {
				report.HasVideoAlarm = true
				report.VideoAlarmFlag = binary.BigEndian.Uint32(value)
				report.VideoAlarmBits = setBits(report.VideoAlarmFlag)
			}
		case extSignalLoss:
			if length == 4 {
				report.SignalLossChannels = channelList(binary.BigEndian.Uint32(value))
			}
		case extBlocking:
			if length == 4 {
				report.BlockingChannels = channelList(binary.BigEndian.Uint32(value))
			}
		case extMemoryFailure:
			if length == 2 {
				w := binary.BigEndian.Uint16(value)
				// 低 12 位为主存储器，随后 4 位为灾备存储器
				for i := 0; i < 12; i++ {
					if w&(1<<i) != 0 {
						report.MemoryFailureMain = append(report.MemoryFailureMain, i+1)
					}
				}
				for i := 12; i < 16; i++ {
					if w&(1<<i) != 0 {
						report.MemoryFailureBackup = append(report.MemoryFailureBackup, i-11)
					}
				}
			}
		case extBehavior:
			if length == 3 {
				w := binary.BigEndian.Uint16(value[0:2])
				report.Behavior = &models.BehaviorRecord{
					Fatigue:      w&0x01 != 0,
					PhoneCall:    w&0x02 != 0,
					Smoking:      w&0x04 != 0,
					CustomCode:   uint8((w >> 3) & 0x1f),
					FatigueScore: value[2],
				}
			}
		}

		data = data[2+length:]
	}
}

// setBits 返回置位的比特位置，升序
func setBits(flag uint32) []int {
	var bits []int
	for i := 0; i < 32; i++ {
		if flag&(1<<i) != 0 {
			bits = append(bits, i)
		}
	}
	return bits
}

// channelList 通道位掩码转通道号列表，bit i 对应通道 i+1
func channelList(mask uint32) []int {
	var channels []int
	for i := 0; i < 32; i++ {
		if mask&(1<<i) != 0 {
			channels = append(channels, i+1)
		}
	}
	return channels
}
