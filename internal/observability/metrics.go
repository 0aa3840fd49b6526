package observability

import "sync"

// Metrics provides basic in-memory counters for the bot.
type Metrics struct {
	mu            sync.Mutex
	updateCount   map[string]int64
	actionCount   map[string]int64
	errorCount    map[string]int64
	notifyFailed  int64
	notifySuccess int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		updateCount: make(map[string]int64),
		actionCount: make(map[string]int64),
		errorCount:  make(map[string]int64),
	}
}

// RecordUpdate increments the counter for an inbound update kind.
func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCount[kind]++
}

// RecordAction increments the counter for a handled operation and its outcome.
func (m *Metrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionCount[action+"|"+outcome]++
}

// RecordError counts a failed HTTP request by route and error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[method+" "+path+"|"+code]++
}

// RecordNotification tracks outbound notification delivery results.
func (m *Metrics) RecordNotification(ok bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.notifySuccess++
	} else {
		m.notifyFailed++
	}
}

// Snapshot copies the counters for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := make(map[string]int64, len(m.updateCount))
	for k, v := range m.updateCount {
		updates[k] = v
	}
	actions := make(map[string]int64, len(m.actionCount))
	for k, v := range m.actionCount {
		actions[k] = v
	}
	errors := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errors[k] = v
	}
	return map[string]any{
		"updates": updates,
		"actions": actions,
		"errors":  errors,
		"notifications": map[string]int64{
			"sent":   m.notifySuccess,
			"failed": m.notifyFailed,
		},
	}
}
