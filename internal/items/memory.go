package items

import (
	"context"
	"fmt"
	"sync"
)

// Command is a command recorded by the Memory registry.
type Command struct {
	Item  string
	Value string
}

// Memory is an in-process registry. Commands become the item's state immediately.
type Memory struct {
	mu       sync.RWMutex
	states   map[string]string
	commands []Command
	onChange ChangeFunc
}

// NewMemory creates a registry seeded with the given states.
func NewMemory(initial map[string]string) *Memory {
	states := make(map[string]string, len(initial))
	for k, v := range initial {
		states[k] = v
	}
	return &Memory{states: states}
}

// OnChange sets the hook fired after a state change.
func (m *Memory) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// State returns the item's state.
func (m *Memory) State(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	return state, nil
}

// Set updates an item's state without recording a command, as a device report would.
func (m *Memory) Set(name, state string) {
	m.update(name, state)
}

// SendCommand records the command and applies it as the new state.
func (m *Memory) SendCommand(_ context.Context, name, value string) error {
	m.mu.Lock()
	m.commands = append(m.commands, Command{Item: name, Value: value})
	m.mu.Unlock()

	m.update(name, value)
	return nil
}

// SendCommandIfDifferent sends value unless the item already has it.
func (m *Memory) SendCommandIfDifferent(ctx context.Context, name, value string) (bool, error) {
	return sendIfDifferent(ctx, m, name, value)
}

// Commands returns a copy of all commands sent so far.
func (m *Memory) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Reset clears the command log.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = nil
}

func (m *Memory) update(name, state string) {
	m.mu.Lock()
	prev, existed := m.states[name]
	m.states[name] = state
	hook := m.onChange
	m.mu.Unlock()

	if hook != nil && (!existed || prev != state) {
		hook(name, prev, state)
	}
}
