package proxy

import (
	"sync"

	"github.com/schatten/schatten/internal/proxy/hooks"
)

// Aggregate 是单个请求内 backend 名称到 Outcome 的共享映射。所有读写都经过同一把锁，
// 锁只覆盖单次插入或读取，从不跨越分发调用。
type Aggregate struct {
	mu       sync.Mutex
	outcomes map[string]hooks.Outcome
}

// NewAggregate returns an empty aggregate sized for the expected participants.
func NewAggregate(capacity int) *Aggregate {
	return &Aggregate{outcomes: make(map[string]hooks.Outcome, capacity)}
}

// Record 写入一个 backend 的结果；同名条目已存在时保留先写入的值并返回 false。
func (a *Aggregate) Record(outcome hooks.Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.outcomes[outcome.Backend]; exists {
		return false
	}
	a.outcomes[outcome.Backend] = outcome
	return true
}

// Len returns the number of recorded outcomes.
func (a *Aggregate) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes)
}

// Get returns the outcome recorded for name.
func (a *Aggregate) Get(name string) (hooks.Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	outcome, ok := a.outcomes[name]
	return outcome, ok
}

// Snapshot 返回当前结果的浅拷贝，调用方可以自由持有。
func (a *Aggregate) Snapshot() map[string]hooks.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Complete 在同一把锁内检查条目数是否等于 participants 并返回快照。
func (a *Aggregate) Complete(participants int) (map[string]hooks.Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.outcomes) != participants {
		return nil, false
	}
	return a.snapshotLocked(), true
}

func (a *Aggregate) snapshotLocked() map[string]hooks.Outcome {
	out := make(map[string]hooks.Outcome, len(a.outcomes))
	for name, outcome := range a.outcomes {
		out[name] = outcome
	}
	return out
}
