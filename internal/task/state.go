package task

import (
	"sync"
	"time"
)

// Listener receives a snapshot copy of the execution state after every
// mutation. Snapshots are safe to keep; mutating them has no effect on the
// engine.
type Listener func(ExecutionState)

// StateManager owns the mutable ExecutionState and the notification
// channel to UI observers. All mutation funnels through its methods so a
// listener always observes a fully-applied, consistent snapshot.
type StateManager struct {
	mu        sync.Mutex
	state     ExecutionState
	listeners map[int]Listener
	nextID    int
}

func NewStateManager() *StateManager {
	m := &StateManager{listeners: make(map[int]Listener)}
	m.state = zeroState()
	return m
}

func zeroState() ExecutionState {
	return ExecutionState{
		ActionStatuses: make(map[string]ActionStatus),
		RetryCount:     make(map[string]int),
		ExtractedData:  make(map[string][]ExtractedItem),
		Results:        make(map[string]string),
		StartTime:      time.Now(),
	}
}

// Reset discards all per-plan state and starts a fresh execution record.
func (m *StateManager) Reset() {
	m.update(func(s *ExecutionState) {
		*s = zeroState()
	})
}

// GetState returns a point-in-time snapshot of the current state.
func (m *StateManager) GetState() ExecutionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers a listener and returns its unsubscribe function.
// Listeners are notified synchronously, in registration order.
func (m *StateManager) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *StateManager) SetExecuting(executing bool) {
	m.update(func(s *ExecutionState) { s.Executing = executing })
}

// SetCurrentStep records the index of the action being executed; pass nil
// when no action is in flight.
func (m *StateManager) SetCurrentStep(step *int) {
	m.update(func(s *ExecutionState) {
		if step == nil {
			s.CurrentStep = nil
			return
		}
		v := *step
		s.CurrentStep = &v
	})
}

// SetProgress records the completed fraction of the running plan in the
// range [0, 1].
func (m *StateManager) SetProgress(p float64) {
	m.update(func(s *ExecutionState) { s.Progress = p })
}

// SetError overwrites the last top-level error message.
func (m *StateManager) SetError(msg string) {
	m.update(func(s *ExecutionState) { s.Error = msg })
}

func (m *StateManager) UpdateActionStatus(actionID string, status ActionStatus) {
	m.update(func(s *ExecutionState) {
		s.ActionStatuses[actionID] = status
	})
}

// IncrementRetryCount bumps the retry counter for the action and returns
// the new count.
func (m *StateManager) IncrementRetryCount(actionID string) int {
	var count int
	m.update(func(s *ExecutionState) {
		s.RetryCount[actionID]++
		count = s.RetryCount[actionID]
	})
	return count
}

func (m *StateManager) RetryCount(actionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.RetryCount[actionID]
}

// UpdateExtractedData stores the extraction result for the action and
// derives the joined-text results entry alongside it.
func (m *StateManager) UpdateExtractedData(actionID string, items []ExtractedItem) {
	m.update(func(s *ExecutionState) {
		s.ExtractedData[actionID] = items
		s.Results[actionID] = joinItemTexts(items)
	})
}

// update applies the mutation under the lock and notifies every listener
// exactly once with a snapshot of the merged state.
func (m *StateManager) update(fn func(*ExecutionState)) {
	m.mu.Lock()
	fn(&m.state)
	snap := m.snapshotLocked()
	listeners := make([]Listener, 0, len(m.listeners))
	for i := 0; i < m.nextID; i++ {
		if l, ok := m.listeners[i]; ok {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (m *StateManager) snapshotLocked() ExecutionState {
	snap := m.state
	snap.ElapsedTime = time.Since(m.state.StartTime)
	if m.state.CurrentStep != nil {
		v := *m.state.CurrentStep
		snap.CurrentStep = &v
	}
	snap.ActionStatuses = make(map[string]ActionStatus, len(m.state.ActionStatuses))
	for k, v := range m.state.ActionStatuses {
		snap.ActionStatuses[k] = v
	}
	snap.RetryCount = make(map[string]int, len(m.state.RetryCount))
	for k, v := range m.state.RetryCount {
		snap.RetryCount[k] = v
	}
	snap.ExtractedData = make(map[string][]ExtractedItem, len(m.state.ExtractedData))
	for k, v := range m.state.ExtractedData {
		items := make([]ExtractedItem, len(v))
		copy(items, v)
		snap.ExtractedData[k] = items
	}
	snap.Results = make(map[string]string, len(m.state.Results))
	for k, v := range m.state.Results {
		snap.Results[k] = v
	}
	return snap
}
