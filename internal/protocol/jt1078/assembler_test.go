package jt1078

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/metrics"
)

func pkt(seq uint16, dtype DataType, sub SubpackageFlag, ts uint64, payload []byte) *Packet {
	return &Packet{
		Sequence:   seq,
		TerminalID: "013812345678",
		Channel:    1,
		DataType:   dtype,
		Subpackage: sub,
		Timestamp:  ts,
		Payload:    payload,
	}
}

func TestAssembleAtomic(t *testing.T) {
	a := NewAssembler(zap.NewNop())

	payload := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0xaa} // P 帧切片
	frame := a.Assemble(pkt(1, DataTypePFrame, SubpackageAtomic, 100, payload))
	if frame == nil {
		t.Fatal("frame = nil")
	}
	if !bytes.Equal(frame.Data, payload) {
		t.Errorf("Data = % x", frame.Data)
	}
	if frame.IFrame {
		t.Error("IFrame = true for P frame")
	}
}

func TestAssembleSubpackages(t *testing.T) {
	a := NewAssembler(zap.NewNop())

	if f := a.Assemble(pkt(10, DataTypeIFrame, SubpackageFirst, 200, []byte{0x01, 0x02})); f != nil {
		t.Fatal("first subpackage returned frame")
	}
	if f := a.Assemble(pkt(11, DataTypeIFrame, SubpackageMiddle, 200, []byte{0x03})); f != nil {
		t.Fatal("middle subpackage returned frame")
	}
	frame := a.Assemble(pkt(12, DataTypeIFrame, SubpackageLast, 200, []byte{0x04, 0x05}))
	if frame == nil {
		t.Fatal("last subpackage did not finalize frame")
	}
	if !bytes.Equal(frame.Data, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("Data = % x, want 01 02 03 04 05", frame.Data)
	}
	if a.PartialCount() != 0 {
		t.Errorf("PartialCount = %d, want 0", a.PartialCount())
	}
}

func TestAssembleSequenceGapDiscards(t *testing.T) {
	a := NewAssembler(zap.NewNop())
	discardedBefore := testutil.ToFloat64(metrics.FramesDiscarded)

	a.Assemble(pkt(10, DataTypeIFrame, SubpackageFirst, 300, []byte{0x01}))
	// 序号跳变：期望 11 收到 12
	if f := a.Assemble(pkt(12, DataTypeIFrame, SubpackageLast, 300, []byte{0x02})); f != nil {
		t.Fatal("gap did not discard frame")
	}
	if a.PartialCount() != 0 {
		t.Errorf("PartialCount = %d, want 0 after discard", a.PartialCount())
	}
	if got := testutil.ToFloat64(metrics.FramesDiscarded) - discardedBefore; got != 1 {
		t.Errorf("frames_discarded delta = %v, want 1", got)
	}

	// 没有 first 的 last 直接忽略
	if f := a.Assemble(pkt(13, DataTypeIFrame, SubpackageLast, 300, []byte{0x03})); f != nil {
		t.Fatal("orphan last returned frame")
	}
}

func TestAssembleTransparentSkipped(t *testing.T) {
	a := NewAssembler(zap.NewNop())
	if f := a.Assemble(pkt(1, DataTypeTransparent, SubpackageAtomic, 0, []byte{0x01})); f != nil {
		t.Fatal("transparent packet produced frame")
	}
}

var (
	spsUnit = []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1e}
	ppsUnit = []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x38, 0x80}
	idrUnit = []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00}
)

func TestAssembleParamSetPrepend(t *testing.T) {
	a := NewAssembler(zap.NewNop())

	// 第一个 I 帧自带 SPS/PPS，缓存参数集，不重复前缀
	full := append(append(append([]byte{}, spsUnit...), ppsUnit...), idrUnit...)
	frame := a.Assemble(pkt(1, DataTypeIFrame, SubpackageAtomic, 100, full))
	if frame == nil || !frame.IFrame {
		t.Fatal("expected I frame")
	}
	if !bytes.Equal(frame.Data, full) {
		t.Errorf("frame with SPS got prefixed: % x", frame.Data)
	}

	// 后续裸 I 帧补上缓存的 SPS/PPS
	frame = a.Assemble(pkt(2, DataTypeIFrame, SubpackageAtomic, 200, idrUnit))
	if frame == nil {
		t.Fatal("frame = nil")
	}
	want := append(append(append([]byte{}, spsUnit...), ppsUnit...), idrUnit...)
	if !bytes.Equal(frame.Data, want) {
		t.Errorf("Data = % x, want SPS+PPS+IDR", frame.Data)
	}

	// P 帧不补参数集
	pFrame := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9a}
	frame = a.Assemble(pkt(3, DataTypePFrame, SubpackageAtomic, 300, pFrame))
	if frame == nil {
		t.Fatal("frame = nil")
	}
	if !bytes.Equal(frame.Data, pFrame) {
		t.Errorf("P frame modified: % x", frame.Data)
	}
	if frame.IFrame {
		t.Error("IFrame = true for P frame")
	}
}

func TestAssemblePartialEviction(t *testing.T) {
	a := NewAssembler(zap.NewNop())
	a.maxPartial = 2

	a.Assemble(&Packet{Sequence: 1, TerminalID: "a", Channel: 1, DataType: DataTypeIFrame, Subpackage: SubpackageFirst, Timestamp: 1, Payload: []byte{0x01}})
	a.Assemble(&Packet{Sequence: 1, TerminalID: "b", Channel: 1, DataType: DataTypeIFrame, Subpackage: SubpackageFirst, Timestamp: 2, Payload: []byte{0x02}})
	// 超上限，最旧的未完成帧被淘汰
	a.Assemble(&Packet{Sequence: 1, TerminalID: "c", Channel: 1, DataType: DataTypeIFrame, Subpackage: SubpackageFirst, Timestamp: 3, Payload: []byte{0x03}})

	if a.PartialCount() != 2 {
		t.Errorf("PartialCount = %d, want 2", a.PartialCount())
	}
}

func TestAssembleSweep(t *testing.T) {
	a := NewAssembler(zap.NewNop())

	a.Assemble(pkt(1, DataTypeIFrame, SubpackageFirst, 100, []byte{0x01}))
	if a.PartialCount() != 1 {
		t.Fatalf("PartialCount = %d", a.PartialCount())
	}

	a.sweep(time.Now().Add(defaultPartialTimeout + time.Second))
	if a.PartialCount() != 0 {
		t.Errorf("PartialCount = %d after sweep, want 0", a.PartialCount())
	}
}
