package alert

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/pkg/clock"
)

const schedulerTick = time.Second

// escalationEntry 一次到期检查：alertID 在 fireAt 时刻升级到 level
type escalationEntry struct {
	fireAt  time.Time
	alertID string
	level   int
}

type entryHeap []*escalationEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*escalationEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// FireFunc 到期回调，由引擎决定是否真正升级
type FireFunc func(alertID string, level int)

// Scheduler 升级调度器
// 到期时只是回调，报警是否仍处于 new 状态由引擎判断
type Scheduler struct {
	l1     time.Duration
	l2     time.Duration
	clk    clock.Clock
	logger *zap.Logger
	fire   FireFunc

	mu        sync.Mutex
	entries   entryHeap
	cancelled map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(l1, l2 time.Duration, clk clock.Clock, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		l1:        l1,
		l2:        l2,
		clk:       clk,
		logger:    logger,
		cancelled: make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
	heap.Init(&s.entries)
	return s
}

// SetFireFunc 设置到期回调，须在 Start 前调用
func (s *Scheduler) SetFireFunc(fn FireFunc) {
	s.fire = fn
}

// Start 启动到期检查循环
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkDue(s.clk.Now())
		}
	}
}

// MonitorAlert 注册一条报警的升级计划
// low 优先级不参与升级
func (s *Scheduler) MonitorAlert(alertID string, priority models.Priority, createdAt time.Time) {
	if priority == models.PriorityLow {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, alertID)
	heap.Push(&s.entries, &escalationEntry{fireAt: createdAt.Add(s.l1), alertID: alertID, level: 1})
	heap.Push(&s.entries, &escalationEntry{fireAt: createdAt.Add(s.l2), alertID: alertID, level: 2})
}

// StopMonitoring 取消一条报警的后续升级（确认或解决后调用）
func (s *Scheduler) StopMonitoring(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[alertID] = true
}

// checkDue 处理所有到期条目，回调在锁外执行
func (s *Scheduler) checkDue(now time.Time) {
	var due []*escalationEntry

	s.mu.Lock()
	for s.entries.Len() > 0 && !s.entries[0].fireAt.After(now) {
		e := heap.Pop(&s.entries).(*escalationEntry)
		if s.cancelled[e.alertID] {
			continue
		}
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		if s.fire != nil {
			s.fire(e.alertID, e.level)
		}
	}
}

// Pending 未到期条目数量
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// FloodDetector 报警风暴检测，按车辆滑动窗口计数
type FloodDetector struct {
	window    time.Duration
	threshold int
	clk       clock.Clock

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewFloodDetector 创建风暴检测器
func NewFloodDetector(window time.Duration, threshold int, clk clock.Clock) *FloodDetector {
	return &FloodDetector{
		window:    window,
		threshold: threshold,
		clk:       clk,
		events:    make(map[string][]time.Time),
	}
}

// RecordAlert 记录一条报警，返回窗口内计数与是否达到风暴阈值
func (f *FloodDetector) RecordAlert(vehicleID string) (int, bool) {
	now := f.clk.Now()
	cutoff := now.Add(-f.window)

	f.mu.Lock()
	defer f.mu.Unlock()

	times := f.events[vehicleID]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	f.events[vehicleID] = kept

	return len(kept), len(kept) >= f.threshold
}
