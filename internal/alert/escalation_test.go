package alert

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/pkg/clock"
)

type firedEntry struct {
	alertID string
	level   int
}

func TestSchedulerFiresInOrder(t *testing.T) {
	start := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	s := NewScheduler(5*time.Minute, 10*time.Minute, clk, zap.NewNop())

	var fired []firedEntry
	s.SetFireFunc(func(alertID string, level int) {
		fired = append(fired, firedEntry{alertID, level})
	})

	s.MonitorAlert("a1", models.PriorityHigh, start)
	if s.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", s.Pending())
	}

	s.checkDue(start.Add(4 * time.Minute))
	if len(fired) != 0 {
		t.Fatalf("fired before deadline: %+v", fired)
	}

	s.checkDue(start.Add(5 * time.Minute))
	if len(fired) != 1 || fired[0] != (firedEntry{"a1", 1}) {
		t.Fatalf("after L1: %+v", fired)
	}

	s.checkDue(start.Add(10 * time.Minute))
	if len(fired) != 2 || fired[1] != (firedEntry{"a1", 2}) {
		t.Fatalf("after L2: %+v", fired)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestSchedulerStopMonitoring(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	s := NewScheduler(5*time.Minute, 10*time.Minute, clk, zap.NewNop())

	var fired []firedEntry
	s.SetFireFunc(func(alertID string, level int) {
		fired = append(fired, firedEntry{alertID, level})
	})

	s.MonitorAlert("a1", models.PriorityCritical, start)
	s.StopMonitoring("a1")

	s.checkDue(start.Add(time.Hour))
	if len(fired) != 0 {
		t.Errorf("cancelled alert fired: %+v", fired)
	}
}

func TestSchedulerSkipsLowPriority(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := NewScheduler(5*time.Minute, 10*time.Minute, clk, zap.NewNop())

	s.MonitorAlert("low1", models.PriorityLow, clk.Now())
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, low priority should not be scheduled", s.Pending())
	}
}

func TestSchedulerInterleavedAlerts(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	s := NewScheduler(5*time.Minute, 10*time.Minute, clk, zap.NewNop())

	var fired []firedEntry
	s.SetFireFunc(func(alertID string, level int) {
		fired = append(fired, firedEntry{alertID, level})
	})

	s.MonitorAlert("a1", models.PriorityHigh, start)
	s.MonitorAlert("a2", models.PriorityHigh, start.Add(2*time.Minute))
	s.StopMonitoring("a1")

	s.checkDue(start.Add(8 * time.Minute))
	if len(fired) != 1 || fired[0] != (firedEntry{"a2", 1}) {
		t.Errorf("fired = %+v, want only a2 level 1", fired)
	}
}

func TestFloodDetector(t *testing.T) {
	clk := clock.NewFake(time.Now())
	f := NewFloodDetector(time.Minute, 3, clk)

	if count, flooding := f.RecordAlert("veh1"); count != 1 || flooding {
		t.Errorf("first: count=%d flooding=%v", count, flooding)
	}
	if count, flooding := f.RecordAlert("veh1"); count != 2 || flooding {
		t.Errorf("second: count=%d flooding=%v", count, flooding)
	}
	if count, flooding := f.RecordAlert("veh1"); count != 3 || !flooding {
		t.Errorf("third: count=%d flooding=%v", count, flooding)
	}

	// 车辆之间互不影响
	if count, flooding := f.RecordAlert("veh2"); count != 1 || flooding {
		t.Errorf("other vehicle: count=%d flooding=%v", count, flooding)
	}

	// 窗口滑过后计数重新开始
	clk.Advance(61 * time.Second)
	if count, flooding := f.RecordAlert("veh1"); count != 1 || flooding {
		t.Errorf("after window: count=%d flooding=%v", count, flooding)
	}
}
