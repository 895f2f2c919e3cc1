package alert

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/metrics"
	"github.com/haoyan/vms808/internal/models"
	"github.com/haoyan/vms808/internal/signal"
	"github.com/haoyan/vms808/pkg/clock"
)

// 报警触发证据取证的通道：位置汇报不携带媒体通道号，默认取 1 路
const defaultEvidenceChannel = 1

// ErrAlertNotFound 报警不存在或已淘汰出活动集合
var ErrAlertNotFound = errors.New("alert not found")

// Store 报警持久化
type Store interface {
	SaveAlert(ctx context.Context, a *models.AlertEvent) error
	UpdateAlert(ctx context.Context, a *models.AlertEvent) error
}

// EvidenceCapturer 证据取证接口
type EvidenceCapturer interface {
	Capture(vehicleID string, channel int, alertID string, preSeconds int) (*models.ClipRef, bool)
}

// ClipStore 证据片段登记
type ClipStore interface {
	SaveClip(ctx context.Context, alertID, kind string, clip *models.ClipRef) error
}

// Config 引擎参数
type Config struct {
	DedupWindow time.Duration // 0 表示关闭去重
	PreSeconds  int           // 事前取证秒数
}

// 主类型裁决顺序：多个信号同时出现时排前面的类别胜出
// 未列出的类别走首个新信号标签的兜底
var kindPrecedence = []signal.Kind{
	signal.KindEmergency,
	signal.KindCollision,
	signal.KindRollover,
	signal.KindFatigue,
	signal.KindDangerousDriving,
	signal.KindPhone,
	signal.KindSmoking,
	signal.KindOverspeed,
	signal.KindStorageFailure,
	signal.KindVideoSignal,
	signal.KindOvercrowding,
}

var priorityRank = map[models.Priority]int{
	models.PriorityLow:      0,
	models.PriorityMedium:   1,
	models.PriorityHigh:     2,
	models.PriorityCritical: 3,
}

type chanKey struct {
	vehicleID string
	channel   int
}

// channelState 单路信号的电平状态，用于边沿检测
type channelState struct {
	mu     sync.Mutex
	active map[string]bool
}

// alertRecord 活动报警与其状态机
type alertRecord struct {
	mu        sync.Mutex
	event     *models.AlertEvent
	lifecycle *lifecycle
}

// Engine 报警引擎
// 信号是电平语义：只有 未置位→置位 的边沿产生新报警事件
type Engine struct {
	logger    *zap.Logger
	catalog   *signal.Catalog
	evidence  EvidenceCapturer
	store     Store
	clips     ClipStore
	scheduler *Scheduler
	flood     *FloodDetector
	clk       clock.Clock
	cfg       Config

	mu       sync.Mutex
	channels map[chanKey]*channelState
	alerts   map[string]*alertRecord
	dedup    map[string]time.Time

	subMu       sync.RWMutex
	subscribers []chan Event
}

// NewEngine 创建报警引擎
func NewEngine(cfg Config, catalog *signal.Catalog, evidence EvidenceCapturer, store Store, scheduler *Scheduler, flood *FloodDetector, clk clock.Clock, logger *zap.Logger) *Engine {
	e := &Engine{
		logger:    logger,
		catalog:   catalog,
		evidence:  evidence,
		store:     store,
		scheduler: scheduler,
		flood:     flood,
		clk:       clk,
		cfg:       cfg,
		channels:  make(map[chanKey]*channelState),
		alerts:    make(map[string]*alertRecord),
		dedup:     make(map[string]time.Time),
	}
	if scheduler != nil {
		scheduler.SetFireFunc(e.onEscalationDue)
	}
	return e
}

// SetClipStore 设置证据片段登记仓库
func (e *Engine) SetClipStore(s ClipStore) {
	e.clips = s
}

// Subscribe 订阅引擎事件，返回只读通道
func (e *Engine) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()
	return ch
}

// publish 非阻塞广播，慢订阅者丢消息不拖垮引擎
func (e *Engine) publish(ev Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ProcessReport 处理一条位置汇报：提取信号、边沿检测、分类并生成报警
func (e *Engine) ProcessReport(ctx context.Context, r *models.AlarmReport) (*models.AlertEvent, error) {
	codes := e.catalog.FilterActionable(e.catalog.SignalsFromReport(r))

	asserted := e.edgeDetect(r.VehicleID, 0, codes)
	if len(asserted) == 0 {
		return nil, nil
	}

	priority, primary := e.classify(asserted, r.Behavior)
	return e.emit(ctx, r.VehicleID, 0, priority, primary, asserted, r.Time, r.Latitude, r.Longitude, r.Speed)
}

// ProcessExternalSignal 处理透传通道解析出的厂商信号
// 事件语义而非电平语义，不做边沿检测，直接进入去重与分类
func (e *Engine) ProcessExternalSignal(ctx context.Context, vehicleID string, channel int, code string, ts time.Time) (*models.AlertEvent, error) {
	d := e.catalog.Detail(code)
	return e.emit(ctx, vehicleID, channel, d.DefaultPriority, d.Label, []string{code}, ts, 0, 0, 0)
}

// edgeDetect 更新电平状态并返回本次新置位的信号
func (e *Engine) edgeDetect(vehicleID string, channel int, codes []string) []string {
	e.mu.Lock()
	cs, ok := e.channels[chanKey{vehicleID: vehicleID, channel: channel}]
	if !ok {
		cs = &channelState{active: make(map[string]bool)}
		e.channels[chanKey{vehicleID: vehicleID, channel: channel}] = cs
	}
	e.mu.Unlock()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	next := make(map[string]bool, len(codes))
	var asserted []string
	for _, code := range codes {
		next[code] = true
		if !cs.active[code] {
			asserted = append(asserted, code)
		}
	}
	cs.active = next
	return asserted
}

// classify 决定报警优先级与主类型
// 优先级取全部新信号中的最高档；疲劳评分超过 80 提到 critical
// 主类型取裁决顺序中最靠前类别的首个信号标签，没有已知类别时退回首个信号标签
func (e *Engine) classify(codes []string, behavior *models.BehaviorRecord) (models.Priority, string) {
	priority := models.PriorityLow
	details := make([]signal.Detail, len(codes))
	kinds := make(map[signal.Kind]bool, len(codes))

	for i, code := range codes {
		d := e.catalog.Detail(code)
		details[i] = d
		kinds[d.Kind] = true
		if priorityRank[d.DefaultPriority] > priorityRank[priority] {
			priority = d.DefaultPriority
		}
	}

	if behavior != nil && behavior.FatigueScore > 80 && kinds[signal.KindFatigue] {
		priority = models.PriorityCritical
	}

	for _, k := range kindPrecedence {
		if !kinds[k] {
			continue
		}
		for _, d := range details {
			if d.Kind == k {
				return priority, d.Label
			}
		}
	}
	if len(details) > 0 {
		return priority, details[0].Label
	}
	return priority, "General Alert"
}

// normalizeType 去重签名中的主类型归一：大小写与空白不敏感
func normalizeType(primary string) string {
	return strings.ToLower(strings.Join(strings.Fields(primary), "_"))
}

// emit 去重检查后创建报警事件，触发证据取证、持久化、升级监控和广播
func (e *Engine) emit(ctx context.Context, vehicleID string, channel int, priority models.Priority, primary string, codes []string, ts time.Time, lat, lon, speed float64) (*models.AlertEvent, error) {
	now := e.clk.Now()

	if e.cfg.DedupWindow > 0 {
		sig := vehicleID + "|" + strconv.Itoa(channel) + "|" + normalizeType(primary)
		e.mu.Lock()
		if last, ok := e.dedup[sig]; ok && now.Sub(last) < e.cfg.DedupWindow {
			e.mu.Unlock()
			metrics.AlertsSuppressed.Inc()
			e.logger.Debug("去重窗口内重复报警被抑制",
				zap.String("vehicle_id", vehicleID),
				zap.String("primary_type", primary))
			return nil, nil
		}
		e.dedup[sig] = now
		e.pruneDedupLocked(now)
		e.mu.Unlock()
	}

	alert := &models.AlertEvent{
		ID:          uuid.New().String(),
		VehicleID:   vehicleID,
		Channel:     channel,
		Priority:    priority,
		PrimaryType: primary,
		SignalCodes: codes,
		Time:        ts,
		Latitude:    lat,
		Longitude:   lon,
		Speed:       speed,
		Status:      models.AlertStatusNew,
		CreatedAt:   now,
	}

	record := &alertRecord{event: alert, lifecycle: newLifecycle()}
	e.mu.Lock()
	e.alerts[alert.ID] = record
	e.mu.Unlock()

	evidenceCh := channel
	if evidenceCh == 0 {
		evidenceCh = defaultEvidenceChannel
	}

	// 证据取证同步进行，失败或缓冲区为空不阻断报警
	if e.evidence != nil {
		if clip, ok := e.evidence.Capture(vehicleID, evidenceCh, alert.ID, e.cfg.PreSeconds); ok {
			alert.Evidence.Pre = clip
		}
	}

	if e.store != nil {
		if err := e.store.SaveAlert(ctx, alert); err != nil {
			e.logger.Error("报警持久化失败", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	if e.scheduler != nil {
		e.scheduler.MonitorAlert(alert.ID, priority, now)
	}

	metrics.AlertsCreated.WithLabelValues(string(priority)).Inc()
	e.logger.Info("生成报警事件",
		zap.String("alert_id", alert.ID),
		zap.String("vehicle_id", vehicleID),
		zap.String("priority", string(priority)),
		zap.String("primary_type", primary),
		zap.Strings("signals", codes))

	e.publish(Event{Type: EventAlertCreated, Time: now, Alert: alert})

	// 终端侧取证：请求设备端录像回传与抓拍，指令由订阅方下发
	winBase := ts
	if winBase.IsZero() {
		winBase = now
	}
	preWin := time.Duration(e.cfg.PreSeconds) * time.Second
	e.publish(Event{
		Type:        EventCameraVideoRequest,
		Time:        now,
		Alert:       alert,
		VehicleID:   vehicleID,
		Channel:     evidenceCh,
		WindowStart: winBase.Add(-preWin),
		WindowEnd:   winBase.Add(preWin),
	})
	e.publish(Event{
		Type:      EventScreenshotRequest,
		Time:      now,
		Alert:     alert,
		VehicleID: vehicleID,
		Channel:   evidenceCh,
	})

	if e.flood != nil {
		if count, flooding := e.flood.RecordAlert(vehicleID); flooding {
			metrics.FloodsDetected.Inc()
			e.logger.Warn("检测到报警风暴",
				zap.String("vehicle_id", vehicleID),
				zap.Int("count", count))
			e.publish(Event{Type: EventFloodingDetected, Time: now, VehicleID: vehicleID, Count: count})
		}
	}

	return alert, nil
}

// pruneDedupLocked 清理过期的去重记录，调用方须持有 e.mu
func (e *Engine) pruneDedupLocked(now time.Time) {
	if len(e.dedup) < 1024 {
		return
	}
	for sig, t := range e.dedup {
		if now.Sub(t) >= e.cfg.DedupWindow {
			delete(e.dedup, sig)
		}
	}
}

// Acknowledge 确认报警，取消后续升级
func (e *Engine) Acknowledge(ctx context.Context, alertID string) (*models.AlertEvent, error) {
	return e.transition(ctx, alertID, TransitionAcknowledge, EventAlertAcknowledged, 0)
}

// Resolve 解决报警
func (e *Engine) Resolve(ctx context.Context, alertID string) (*models.AlertEvent, error) {
	return e.transition(ctx, alertID, TransitionResolve, EventAlertResolved, 0)
}

func (e *Engine) transition(ctx context.Context, alertID, trans string, evType EventType, level int) (*models.AlertEvent, error) {
	e.mu.Lock()
	record, ok := e.alerts[alertID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrAlertNotFound
	}

	record.mu.Lock()
	if err := record.lifecycle.trigger(trans); err != nil {
		record.mu.Unlock()
		return nil, err
	}

	now := e.clk.Now()
	record.event.Status = record.lifecycle.current()
	switch trans {
	case TransitionAcknowledge:
		record.event.AcknowledgedAt = &now
	case TransitionResolve:
		record.event.ResolvedAt = &now
	case TransitionEscalate:
		record.event.EscalationLevel = level
	}
	alertCopy := *record.event
	record.mu.Unlock()

	if trans != TransitionEscalate && e.scheduler != nil {
		e.scheduler.StopMonitoring(alertID)
	}

	if e.store != nil {
		if err := e.store.UpdateAlert(ctx, &alertCopy); err != nil {
			e.logger.Error("报警状态更新持久化失败", zap.String("alert_id", alertID), zap.Error(err))
		}
	}

	e.publish(Event{Type: evType, Time: now, Alert: &alertCopy, Level: level})
	return &alertCopy, nil
}

// onEscalationDue 升级到期回调：仅在报警仍未被确认/解决时升级
func (e *Engine) onEscalationDue(alertID string, level int) {
	e.mu.Lock()
	record, ok := e.alerts[alertID]
	e.mu.Unlock()
	if !ok {
		return
	}

	status := record.lifecycle.current()
	if status != models.AlertStatusNew && status != models.AlertStatusEscalated {
		return
	}

	metrics.AlertsEscalated.Inc()
	e.logger.Warn("报警升级",
		zap.String("alert_id", alertID),
		zap.Int("level", level))

	if _, err := e.transition(context.Background(), alertID, TransitionEscalate, EventAlertEscalated, level); err != nil {
		e.logger.Error("报警升级失败", zap.String("alert_id", alertID), zap.Error(err))
	}
}

// OnEvidenceReady 证据片段落盘回调，补挂到对应报警并广播
func (e *Engine) OnEvidenceReady(vehicleID string, channel int, alertID string, clip *models.ClipRef, post bool) {
	e.mu.Lock()
	record, ok := e.alerts[alertID]
	e.mu.Unlock()

	if ok && clip != nil {
		record.mu.Lock()
		if post {
			record.event.Evidence.Post = clip
		} else {
			record.event.Evidence.Pre = clip
		}
		alertCopy := *record.event
		record.mu.Unlock()

		if e.store != nil {
			if err := e.store.UpdateAlert(context.Background(), &alertCopy); err != nil {
				e.logger.Error("证据记录更新失败", zap.String("alert_id", alertID), zap.Error(err))
			}
		}
	}

	kind := "pre"
	if post {
		kind = "post"
	}
	if clip != nil {
		metrics.ClipsWritten.WithLabelValues(kind).Inc()
		if e.clips != nil {
			if err := e.clips.SaveClip(context.Background(), alertID, kind, clip); err != nil {
				e.logger.Error("证据片段登记失败", zap.String("alert_id", alertID), zap.Error(err))
			}
		}
	}

	e.publish(Event{
		Type:      EventEvidenceReady,
		Time:      e.clk.Now(),
		VehicleID: vehicleID,
		Channel:   channel,
		Clip:      clip,
		Post:      post,
		Alert:     e.snapshot(alertID),
	})
}

// PublishControl 广播下行控制类事件（视频请求、远程抓拍）
func (e *Engine) PublishControl(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.clk.Now()
	}
	e.publish(ev)
}

// Get 查询活动报警快照
func (e *Engine) Get(alertID string) (*models.AlertEvent, bool) {
	a := e.snapshot(alertID)
	return a, a != nil
}

func (e *Engine) snapshot(alertID string) *models.AlertEvent {
	e.mu.Lock()
	record, ok := e.alerts[alertID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	alertCopy := *record.event
	return &alertCopy
}
