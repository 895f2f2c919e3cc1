package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/haoyan/vms808/internal/models"
)

// 生命周期转换事件
const (
	TransitionAcknowledge = "acknowledge"
	TransitionEscalate    = "escalate"
	TransitionResolve     = "resolve"
)

// lifecycle 单条报警的生命周期状态机
// escalated 允许自转换，升级可以逐级推进
type lifecycle struct {
	mu  sync.Mutex
	fsm *fsm.FSM
}

func newLifecycle() *lifecycle {
	l := &lifecycle{}
	l.fsm = fsm.NewFSM(
		string(models.AlertStatusNew),
		fsm.Events{
			{Name: TransitionAcknowledge, Src: []string{string(models.AlertStatusNew), string(models.AlertStatusEscalated)}, Dst: string(models.AlertStatusAcknowledged)},
			{Name: TransitionEscalate, Src: []string{string(models.AlertStatusNew), string(models.AlertStatusEscalated)}, Dst: string(models.AlertStatusEscalated)},
			{Name: TransitionResolve, Src: []string{string(models.AlertStatusNew), string(models.AlertStatusAcknowledged), string(models.AlertStatusEscalated)}, Dst: string(models.AlertStatusResolved)},
		},
		fsm.Callbacks{},
	)
	return l
}

// trigger 触发转换，非法转换返回错误
func (l *lifecycle) trigger(event string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.fsm.Event(context.Background(), event)
	if err != nil {
		// escalated→escalated 是合法的逐级升级
		if _, ok := err.(fsm.NoTransitionError); ok {
			return nil
		}
		return fmt.Errorf("alert transition %s: %w", event, err)
	}
	return nil
}

// current 当前状态
func (l *lifecycle) current() models.AlertStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.AlertStatus(l.fsm.Current())
}

// can 是否允许转换
func (l *lifecycle) can(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fsm.Can(event)
}
