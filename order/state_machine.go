package order

import (
	"fmt"
	"sync"
)

// Phase 表示持仓生命周期阶段。
type Phase string

const (
	PhaseScheduled    Phase = "SCHEDULED"     // 等待触发窗口
	PhaseBuying       Phase = "BUYING"        // 并发抢单
	PhaseAwaitingFill Phase = "AWAITING_FILL" // 轮询余额确认成交
	PhaseWatching     Phase = "WATCHING_PRICE"
	PhaseSelling      Phase = "SELLING"
	PhaseDone         Phase = "DONE"
)

// Ordinal 用于指标中的阶段编号。
func (p Phase) Ordinal() int {
	switch p {
	case PhaseScheduled:
		return 0
	case PhaseBuying:
		return 1
	case PhaseAwaitingFill:
		return 2
	case PhaseWatching:
		return 3
	case PhaseSelling:
		return 4
	case PhaseDone:
		return 5
	default:
		return -1
	}
}

// StateTransition 状态转换
type StateTransition struct {
	From Phase
	To   Phase
}

// StateMachine 持仓阶段状态机，只允许单向推进。
type StateMachine struct {
	transitions map[StateTransition]bool
	current     Phase
	onChange    func(from, to Phase)
	mu          sync.RWMutex
}

// NewStateMachine 创建新的状态机，初始阶段为 SCHEDULED。
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
		current:     PhaseScheduled,
	}
	sm.initializeTransitions()
	return sm
}

func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		{PhaseScheduled, PhaseBuying},
		{PhaseBuying, PhaseAwaitingFill},
		{PhaseAwaitingFill, PhaseWatching},
		{PhaseWatching, PhaseSelling},
		{PhaseSelling, PhaseDone},
		// DONE 为终态
	}
	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// OnChange 注册阶段变化回调（日志/指标）。
func (sm *StateMachine) OnChange(fn func(from, to Phase)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}

// validateTransition 验证状态转换是否合法；transitions 初始化后只读，无需加锁。
func (sm *StateMachine) validateTransition(from, to Phase) error {
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal phase transition: %s -> %s", from, to)
	}
	return nil
}

// Advance 推进到下一个阶段。
func (sm *StateMachine) Advance(to Phase) error {
	sm.mu.Lock()
	from := sm.current
	if err := sm.validateTransition(from, to); err != nil {
		sm.mu.Unlock()
		return err
	}
	sm.current = to
	cb := sm.onChange
	sm.mu.Unlock()

	if cb != nil {
		cb(from, to)
	}
	return nil
}

// Current 返回当前阶段。
func (sm *StateMachine) Current() Phase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
