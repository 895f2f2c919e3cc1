package signal

import (
	"reflect"
	"testing"

	"github.com/haoyan/vms808/internal/models"
)

func TestSignalsFromReport(t *testing.T) {
	c := NewCatalog("default", nil)

	report := &models.AlarmReport{
		VehicleID:          "013812345678",
		AlarmBits:          []int{0, 2, 29},
		VideoAlarmBits:     []int{2, 4},
		SignalLossChannels: []int{1, 2},
		MemoryFailureMain:  []int{3},
		Behavior:           &models.BehaviorRecord{Fatigue: true, Smoking: true, CustomCode: 5},
	}

	got := c.SignalsFromReport(report)
	want := []string{
		"jt808_emergency",
		"jt808_fatigue",
		"jt808_collision_warning",
		"video_storage_failure",
		"bus_overcrowding",
		"video_signal_loss_channels_1_2",
		"memory_failure_main_3",
		"dms_fatigue_driving",
		"dms_smoking",
		"dms_custom_5",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SignalsFromReport = %v\nwant %v", got, want)
	}
}

func TestSignalsFromReportUnknownBits(t *testing.T) {
	c := NewCatalog("default", nil)

	report := &models.AlarmReport{AlarmBits: []int{9}, VideoAlarmBits: []int{9}}
	got := c.SignalsFromReport(report)
	want := []string{"jt808_alarm_bit_9", "video_alarm_bit_9"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SignalsFromReport = %v, want %v", got, want)
	}
}

func TestDetailAndPriority(t *testing.T) {
	c := NewCatalog("default", nil)

	tests := []struct {
		code     string
		kind     Kind
		priority models.Priority
	}{
		{"jt808_emergency", KindEmergency, models.PriorityCritical},
		{"jt808_rollover_warning", KindRollover, models.PriorityCritical},
		{"jt808_overspeed", KindOverspeed, models.PriorityMedium},
		{"dms_phone_call", KindPhone, models.PriorityHigh},
		{"video_storage_failure", KindStorageFailure, models.PriorityHigh},
		{"memory_failure_backup_2", KindStorageFailure, models.PriorityHigh},
		{"dms_custom_7", KindOther, models.PriorityLow},
		{"never_seen_before", KindOther, models.PriorityLow},
	}
	for _, tt := range tests {
		d := c.Detail(tt.code)
		if d.Kind != tt.kind {
			t.Errorf("Detail(%q).Kind = %q, want %q", tt.code, d.Kind, tt.kind)
		}
		if got := c.PriorityFor(tt.code); got != tt.priority {
			t.Errorf("PriorityFor(%q) = %q, want %q", tt.code, got, tt.priority)
		}
	}
}

func TestPriorityOverrides(t *testing.T) {
	c := NewCatalog("default", map[int]models.Priority{10003: models.PriorityCritical})

	if got := c.PriorityFor("adas_10003_headway_too_close"); got != models.PriorityCritical {
		t.Errorf("override not applied: %q", got)
	}
	// 未覆盖的编码保持默认
	if got := c.PriorityFor("adas_10002_lane_departure_warning"); got != models.PriorityHigh {
		t.Errorf("default changed: %q", got)
	}
}

func TestActionableProfiles(t *testing.T) {
	def := NewCatalog("default", nil)
	full := NewCatalog("full", nil)

	// 常驻视频信号故障在默认档位下不生成事件
	suppressed := []string{"video_signal_loss", "video_signal_blocking", "video_signal_loss_channels_1_2"}
	for _, code := range suppressed {
		if def.Actionable(code) {
			t.Errorf("default profile: %q actionable", code)
		}
		if !full.Actionable(code) {
			t.Errorf("full profile: %q not actionable", code)
		}
	}

	if !def.Actionable("jt808_emergency") {
		t.Error("emergency suppressed")
	}

	got := def.FilterActionable([]string{"video_signal_loss", "jt808_emergency", "video_storage_failure"})
	want := []string{"jt808_emergency", "video_storage_failure"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FilterActionable = %v, want %v", got, want)
	}
}
