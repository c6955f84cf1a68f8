package trigger

import (
	"context"
	"sync"
	"time"
)

// Level is a raw sensor reading.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Sensor samples the trigger input.
type Sensor interface {
	Sample(ctx context.Context) (Level, error)
}

// Options configures a Monitor.
type Options struct {
	// ActiveLow treats a low reading as "detected", matching a normally
	// closed shock sensor that pulls the line low on impact.
	ActiveLow bool
	// Confirmations is the number of consecutive polls a new level must be
	// observed on before it is honoured. Values below 1 mean 1.
	Confirmations int
	Clock         func() time.Time
}

// State is a point-in-time view of the debouncer.
type State struct {
	Active         bool
	Candidate      bool
	Pending        int
	LastTransition time.Time
	Edges          uint64
}

// Monitor debounces a Sensor into trigger edges. It is safe for concurrent
// use, but PollEdge is intended to be called from a single capture loop.
type Monitor struct {
	sensor        Sensor
	activeLow     bool
	confirmations int
	clock         func() time.Time

	mu        sync.Mutex
	active    bool
	candidate bool
	pending   int
	changedAt time.Time
	edges     uint64
}

// NewMonitor wraps sensor. The debounced state starts inactive.
func NewMonitor(sensor Sensor, opts Options) *Monitor {
	confirmations := opts.Confirmations
	if confirmations < 1 {
		confirmations = 1
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		sensor:        sensor,
		activeLow:     opts.ActiveLow,
		confirmations: confirmations,
		clock:         clock,
	}
}

// Sample returns the raw level without affecting debounce state.
func (m *Monitor) Sample(ctx context.Context) (Level, error) {
	return m.sensor.Sample(ctx)
}

// PollEdge samples the sensor once and reports whether this poll completed a
// transition into the active level.
func (m *Monitor) PollEdge(ctx context.Context) (bool, error) {
	level, err := m.sensor.Sample(ctx)
	if err != nil {
		return false, err
	}
	return m.observe(m.isActive(level)), nil
}

func (m *Monitor) isActive(level Level) bool {
	if m.activeLow {
		return level == Low
	}
	return level == High
}

func (m *Monitor) observe(active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if active == m.active {
		m.pending = 0
		m.candidate = m.active
		return false
	}
	if m.pending == 0 || m.candidate != active {
		m.candidate = active
		m.pending = 0
	}
	m.pending++
	if m.pending < m.confirmations {
		return false
	}
	m.active = active
	m.pending = 0
	m.changedAt = m.clock()
	if active {
		m.edges++
		return true
	}
	return false
}

// State returns the current debounce state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Active:         m.active,
		Candidate:      m.candidate,
		Pending:        m.pending,
		LastTransition: m.changedAt,
		Edges:          m.edges,
	}
}
