package evidence

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/pkg/clock"
)

// memStorage 内存存储，记录写入的片段
type memStorage struct {
	clips map[string][][]byte
	fail  bool
}

func newMemStorage() *memStorage {
	return &memStorage{clips: make(map[string][][]byte)}
}

func (m *memStorage) WriteClip(name string, frames [][]byte) (string, error) {
	if m.fail {
		return "", errors.New("disk full")
	}
	m.clips[name] = frames
	return "/mem/" + name, nil
}

type readyRecord struct {
	alertID string
	clip    *models.ClipRef
	post    bool
}

func collectReady(calls *[]readyRecord) ReadyFunc {
	return func(vehicleID string, channel int, alertID string, clip *models.ClipRef, post bool) {
		*calls = append(*calls, readyRecord{alertID: alertID, clip: clip, post: post})
	}
}

var bufStart = time.Date(2025, 8, 31, 9, 0, 0, 0, time.UTC)

func newTestBuffer(storage Storage, clk clock.Clock, ready ReadyFunc) *Buffer {
	return NewBuffer("013812345678", 1, 30*time.Second, storage, clk, zap.NewNop(), ready)
}

func TestAddFrameEviction(t *testing.T) {
	b := newTestBuffer(newMemStorage(), clock.NewFake(bufStart), nil)

	b.AddFrame([]byte{0x01}, bufStart, true)
	b.AddFrame([]byte{0x02}, bufStart.Add(10*time.Second), false)
	b.AddFrame([]byte{0x03}, bufStart.Add(40*time.Second), false)

	stats := b.Stats()
	if stats.FrameCount != 2 {
		t.Errorf("FrameCount = %d, want 2 (first frame outside window)", stats.FrameCount)
	}
	if stats.Duration != 30 {
		t.Errorf("Duration = %v, want 30", stats.Duration)
	}
}

func TestCaptureEmptyBuffer(t *testing.T) {
	var calls []readyRecord
	clk := clock.NewFake(bufStart)
	b := newTestBuffer(newMemStorage(), clk, collectReady(&calls))

	clip, ok := b.CaptureEventClip("a1", 30)
	if ok || clip != nil {
		t.Fatalf("empty buffer capture: clip=%v ok=%v", clip, ok)
	}
	if len(calls) != 0 {
		t.Fatalf("ready calls = %+v", calls)
	}

	// 事后窗口仍会打开，兜底定时器保证收尾
	if !b.Stats().PostOpen {
		t.Fatal("post window not open")
	}
	clk.Advance(36 * time.Second)
	if len(calls) != 1 || !calls[0].post || calls[0].clip != nil {
		t.Errorf("fallback finalize calls = %+v", calls)
	}
	if b.Stats().PostOpen {
		t.Error("post window still open after fallback")
	}
}

func TestCapturePreClip(t *testing.T) {
	var calls []readyRecord
	storage := newMemStorage()
	b := newTestBuffer(storage, clock.NewFake(bufStart), collectReady(&calls))

	for i := 0; i < 5; i++ {
		b.AddFrame([]byte{byte(i)}, bufStart.Add(time.Duration(i)*5*time.Second), i == 0)
	}

	clip, ok := b.CaptureEventClip("a1", 30)
	if !ok || clip == nil {
		t.Fatal("capture failed on populated buffer")
	}
	if clip.FrameCount != 5 {
		t.Errorf("FrameCount = %d, want 5", clip.FrameCount)
	}
	if clip.Duration != 20 {
		t.Errorf("Duration = %v, want 20", clip.Duration)
	}
	if clip.Path != "/mem/013812345678_ch1_a1_pre.h264" {
		t.Errorf("Path = %q", clip.Path)
	}

	if len(calls) != 1 || calls[0].post || calls[0].alertID != "a1" {
		t.Errorf("ready calls = %+v", calls)
	}
}

func TestCapturePreWindowNarrowerThanBuffer(t *testing.T) {
	b := newTestBuffer(newMemStorage(), clock.NewFake(bufStart), nil)

	for i := 0; i < 4; i++ {
		b.AddFrame([]byte{byte(i)}, bufStart.Add(time.Duration(i)*10*time.Second), false)
	}

	// 只取最近 10 秒：最后一帧在 t+30，截断点 t+20
	clip, ok := b.CaptureEventClip("a1", 10)
	if !ok {
		t.Fatal("capture failed")
	}
	if clip.FrameCount != 2 {
		t.Errorf("FrameCount = %d, want 2", clip.FrameCount)
	}
}

func TestPostWindowClosedByFrameTime(t *testing.T) {
	var calls []readyRecord
	storage := newMemStorage()
	b := newTestBuffer(storage, clock.NewFake(bufStart), collectReady(&calls))

	b.AddFrame([]byte{0x01}, bufStart, true)
	if _, ok := b.CaptureEventClip("a1", 30); !ok {
		t.Fatal("capture failed")
	}
	calls = nil

	// 事后帧按帧时间推进，满 30 秒窗口即收尾
	for i := 0; i <= 3; i++ {
		b.AddFrame([]byte{0x10 + byte(i)}, bufStart.Add(time.Duration(i)*10*time.Second+time.Second), false)
	}

	if len(calls) != 1 {
		t.Fatalf("ready calls = %+v", calls)
	}
	if !calls[0].post || calls[0].clip == nil {
		t.Fatalf("post finalize = %+v", calls[0])
	}
	if calls[0].clip.FrameCount != 4 {
		t.Errorf("post FrameCount = %d, want 4", calls[0].clip.FrameCount)
	}
	if calls[0].clip.Path != "/mem/013812345678_ch1_a1_post.h264" {
		t.Errorf("post Path = %q", calls[0].clip.Path)
	}
	if b.Stats().PostOpen {
		t.Error("post window still open")
	}
}

func TestPostWindowFallbackTimer(t *testing.T) {
	var calls []readyRecord
	clk := clock.NewFake(bufStart)
	b := newTestBuffer(newMemStorage(), clk, collectReady(&calls))

	b.AddFrame([]byte{0x01}, bufStart, true)
	b.CaptureEventClip("a1", 30)
	calls = nil

	// 帧流中断：只收到一帧事后帧，靠兜底定时器收尾
	b.AddFrame([]byte{0x02}, bufStart.Add(time.Second), false)
	clk.Advance(36 * time.Second)

	if len(calls) != 1 || !calls[0].post {
		t.Fatalf("ready calls = %+v", calls)
	}
	if calls[0].clip == nil || calls[0].clip.FrameCount != 1 {
		t.Errorf("post clip = %+v", calls[0].clip)
	}
}

func TestSecondCaptureWhilePostOpen(t *testing.T) {
	var calls []readyRecord
	clk := clock.NewFake(bufStart)
	b := newTestBuffer(newMemStorage(), clk, collectReady(&calls))

	b.AddFrame([]byte{0x01}, bufStart, true)
	b.CaptureEventClip("a1", 30)

	// 第二次触发仍返回事前片段，但不重开事后窗口
	if _, ok := b.CaptureEventClip("a2", 30); !ok {
		t.Fatal("second capture pre clip failed")
	}
	calls = nil

	clk.Advance(36 * time.Second)
	if len(calls) != 1 || calls[0].alertID != "a1" {
		t.Errorf("post window owner = %+v, want a1", calls)
	}
}

func TestCaptureStorageFailure(t *testing.T) {
	storage := newMemStorage()
	storage.fail = true
	b := newTestBuffer(storage, clock.NewFake(bufStart), nil)

	b.AddFrame([]byte{0x01}, bufStart, true)
	clip, ok := b.CaptureEventClip("a1", 30)
	if ok || clip != nil {
		t.Errorf("capture with failing storage: clip=%v ok=%v", clip, ok)
	}
}

func TestManagerRouting(t *testing.T) {
	var calls []readyRecord
	storage := newMemStorage()
	m := NewManager(30*time.Second, storage, clock.NewFake(bufStart), zap.NewNop())
	m.SetReadyFunc(collectReady(&calls))

	m.AddFrame("veh1", 1, []byte{0x01}, bufStart, true)
	m.AddFrame("veh1", 2, []byte{0x02}, bufStart, true)
	m.AddFrame("veh2", 1, []byte{0x03}, bufStart, false)

	stats := m.Stats()
	if len(stats) != 3 {
		t.Fatalf("Stats len = %d, want 3", len(stats))
	}
	if s, ok := stats["veh1/2"]; !ok || s.FrameCount != 1 {
		t.Errorf("veh1/2 stats = %+v ok=%v", s, ok)
	}

	clip, ok := m.Capture("veh1", 2, "a1", 30)
	if !ok || clip == nil {
		t.Fatal("manager capture failed")
	}
	if len(calls) != 1 || calls[0].alertID != "a1" {
		t.Errorf("ready calls = %+v", calls)
	}

	// 未知通道取证不报错，返回未命中
	if _, ok := m.Capture("veh9", 1, "a2", 30); ok {
		t.Error("capture on fresh buffer returned clip")
	}
}
