package jt1078

import "bytes"

// H.264 NAL 单元类型
const (
	nalTypeSlice = 1
	nalTypeIDR   = 5
	nalTypeSPS   = 7
	nalTypePPS   = 8
)

var startCode3 = []byte{0x00, 0x00, 0x01}

// nalUnit 带起始码的 NAL 单元切片
type nalUnit struct {
	typ  byte
	data []byte // 含起始码
}

// scanNALUnits 按起始码（00 00 01 / 00 00 00 01）切分 NAL 单元
func scanNALUnits(frame []byte) []nalUnit {
	var units []nalUnit
	pos := 0
	start := -1
	for pos+2 < len(frame) {
		idx := bytes.Index(frame[pos:], startCode3)
		if idx < 0 {
			break
		}
		scStart := pos + idx
		// 四字节起始码的首个 0x00
		if scStart > 0 && frame[scStart-1] == 0x00 {
			scStart--
		}
		if start >= 0 {
			units = append(units, makeUnit(frame[start:scStart]))
		}
		start = scStart
		pos = pos + idx + len(startCode3)
	}
	if start >= 0 {
		units = append(units, makeUnit(frame[start:]))
	}
	return units
}

func makeUnit(data []byte) nalUnit {
	offset := 3
	if len(data) >= 4 && data[2] == 0x00 {
		offset = 4
	}
	var typ byte
	if len(data) > offset {
		typ = data[offset] & 0x1f
	}
	return nalUnit{typ: typ, data: data}
}

// containsNALType 帧中是否含指定类型的 NAL 单元
func containsNALType(units []nalUnit, typ byte) bool {
	for _, u := range units {
		if u.typ == typ {
			return true
		}
	}
	return false
}
