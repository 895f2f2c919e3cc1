package jt1078

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haoyan/vms808/internal/metrics"
)

const (
	// 未完成帧驻留上限与清扫间隔
	defaultPartialTimeout = 10 * time.Second
	defaultSweepInterval  = 5 * time.Second
	// 并发未完成帧硬上限，超出时淘汰最旧的一条，防止丢包或攻击下内存无界增长
	defaultMaxPartial = 1024
)

// streamKey 未完成帧的键：终端+通道+帧时间戳
type streamKey struct {
	terminal  string
	channel   byte
	timestamp uint64
}

type paramKey struct {
	terminal string
	channel  byte
}

// partialFrame 分包重组状态
type partialFrame struct {
	fragments   [][]byte
	expectedSeq uint16
	dataType    DataType
	startedAt   time.Time
}

// paramSetCache 每路流最近的 SPS/PPS
type paramSetCache struct {
	sps []byte
	pps []byte
}

// Frame 重组完成的一帧
type Frame struct {
	TerminalID string
	Channel    byte
	DataType   DataType
	Timestamp  uint64
	IFrame     bool
	Data       []byte
}

// Assembler 视频/音频帧重组器
// 透传类型的包不经过重组，由调用方直接路由到厂商报警解析
type Assembler struct {
	logger *zap.Logger

	mu        sync.Mutex
	partial   map[streamKey]*partialFrame
	order     []streamKey // 创建顺序，用于超限淘汰
	paramSets map[paramKey]*paramSetCache

	partialTimeout time.Duration
	maxPartial     int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAssembler 创建重组器
func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{
		logger:         logger,
		partial:        make(map[streamKey]*partialFrame),
		paramSets:      make(map[paramKey]*paramSetCache),
		partialTimeout: defaultPartialTimeout,
		maxPartial:     defaultMaxPartial,
		stopCh:         make(chan struct{}),
	}
}

// Start 启动后台清扫
func (a *Assembler) Start() {
	a.wg.Add(1)
	go a.sweepLoop()
}

// Stop 停止后台清扫
func (a *Assembler) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

// Assemble 处理一个媒体包，返回重组完成的帧；未完成或丢弃时返回 nil
func (a *Assembler) Assemble(pkt *Packet) *Frame {
	if pkt.DataType == DataTypeTransparent {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := streamKey{terminal: pkt.TerminalID, channel: pkt.Channel, timestamp: pkt.Timestamp}

	switch pkt.Subpackage {
	case SubpackageAtomic:
		return a.finalize(pkt, pkt.Payload)

	case SubpackageFirst:
		if len(a.partial) >= a.maxPartial {
			a.evictOldest()
		}
		a.partial[key] = &partialFrame{
			fragments:   [][]byte{pkt.Payload},
			expectedSeq: pkt.Sequence + 1,
			dataType:    pkt.DataType,
			startedAt:   time.Now(),
		}
		a.order = append(a.order, key)
		return nil

	case SubpackageMiddle, SubpackageLast:
		pf, ok := a.partial[key]
		if !ok {
			return nil
		}
		if pkt.Sequence != pf.expectedSeq {
			// 序号断裂：丢弃未完成帧，避免乱序/丢包静默破坏帧内容
			a.logger.Debug("分包序号不连续，丢弃未完成帧",
				zap.String("terminal_id", pkt.TerminalID),
				zap.Uint8("channel", pkt.Channel),
				zap.Uint16("expected", pf.expectedSeq),
				zap.Uint16("got", pkt.Sequence))
			a.remove(key)
			metrics.FramesDiscarded.Inc()
			return nil
		}
		pf.fragments = append(pf.fragments, pkt.Payload)
		pf.expectedSeq++

		if pkt.Subpackage == SubpackageMiddle {
			return nil
		}

		total := 0
		for _, f := range pf.fragments {
			total += len(f)
		}
		data := make([]byte, 0, total)
		for _, f := range pf.fragments {
			data = append(data, f...)
		}
		a.remove(key)
		return a.finalize(pkt, data)
	}

	return nil
}

// finalize 缓存参数集并在 I 帧前补齐 SPS/PPS，使每个输出的 I 帧可独立解码
func (a *Assembler) finalize(pkt *Packet, data []byte) *Frame {
	frame := &Frame{
		TerminalID: pkt.TerminalID,
		Channel:    pkt.Channel,
		DataType:   pkt.DataType,
		Timestamp:  pkt.Timestamp,
		Data:       data,
	}

	if pkt.DataType.IsVideo() {
		pk := paramKey{terminal: pkt.TerminalID, channel: pkt.Channel}
		units := scanNALUnits(data)
		for _, u := range units {
			switch u.typ {
			case nalTypeSPS, nalTypePPS:
				cache, ok := a.paramSets[pk]
				if !ok {
					cache = &paramSetCache{}
					a.paramSets[pk] = cache
				}
				if u.typ == nalTypeSPS {
					cache.sps = append([]byte(nil), u.data...)
				} else {
					cache.pps = append([]byte(nil), u.data...)
				}
			}
		}

		if containsNALType(units, nalTypeIDR) {
			frame.IFrame = true
			if !containsNALType(units, nalTypeSPS) {
				if cache, ok := a.paramSets[pk]; ok && cache.sps != nil && cache.pps != nil {
					prefixed := make([]byte, 0, len(cache.sps)+len(cache.pps)+len(data))
					prefixed = append(prefixed, cache.sps...)
					prefixed = append(prefixed, cache.pps...)
					prefixed = append(prefixed, data...)
					frame.Data = prefixed
				}
			}
		}
	}

	return frame
}

func (a *Assembler) remove(key streamKey) {
	delete(a.partial, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Assembler) evictOldest() {
	for len(a.order) > 0 {
		key := a.order[0]
		a.order = a.order[1:]
		if _, ok := a.partial[key]; ok {
			delete(a.partial, key)
			metrics.FramesDiscarded.Inc()
			a.logger.Warn("未完成帧超限，淘汰最旧帧",
				zap.String("terminal_id", key.terminal),
				zap.Uint8("channel", key.channel))
			return
		}
	}
}

// sweepLoop 定期清理超时的未完成帧
func (a *Assembler) sweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.sweep(time.Now())
		}
	}
}

func (a *Assembler) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var expired []streamKey
	for key, pf := range a.partial {
		if now.Sub(pf.startedAt) > a.partialTimeout {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		a.remove(key)
	}
	if len(expired) > 0 {
		metrics.FramesDiscarded.Add(float64(len(expired)))
		a.logger.Debug("清理超时未完成帧", zap.Int("count", len(expired)))
	}
}

// PartialCount 当前未完成帧数量
func (a *Assembler) PartialCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.partial)
}
