package trigger

import (
	"context"
	"sync"
)

// FuncSensor adapts a function to the Sensor interface.
type FuncSensor func(ctx context.Context) (Level, error)

func (f FuncSensor) Sample(ctx context.Context) (Level, error) {
	return f(ctx)
}

// Switch is an in-memory sensor whose level is set programmatically. It backs
// the synthetic run mode and tests.
type Switch struct {
	mu    sync.Mutex
	level Level
}

// NewSwitch returns a switch reading level.
func NewSwitch(level Level) *Switch {
	return &Switch{level: level}
}

// Set changes the level reported by subsequent samples.
func (s *Switch) Set(level Level) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *Switch) Sample(context.Context) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// Script replays a fixed sequence of levels, repeating the last one once the
// sequence is exhausted.
type Script struct {
	mu     sync.Mutex
	levels []Level
	next   int
}

// NewScript returns a sensor that yields levels in order.
func NewScript(levels ...Level) *Script {
	return &Script{levels: levels}
}

func (s *Script) Sample(context.Context) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return High, nil
	}
	idx := min(s.next, len(s.levels)-1)
	s.next++
	return s.levels[idx], nil
}
