package workflow

import (
	"context"
	"fmt"
)

// StateMachineBuilder collects transitions and produces independent machines
type StateMachineBuilder interface {
	// Configure returns the transition table for the given source state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration adds transitions leaving one state
type StateConfiguration interface {
	// Permit allows trigger to move to toState
	Permit(trigger Trigger, toState State) StateConfiguration
}

type transitionTable map[Trigger]State

type stateConfig struct {
	transitions transitionTable
}

type stateMachineBuilder struct {
	tables map[State]*stateConfig
}

type stateMachine struct {
	current State
	tables  map[State]transitionTable
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		tables: make(map[State]*stateConfig),
	}
}

// Configure returns the configuration for state, creating it on first use
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	cfg, ok := b.tables[state]
	if !ok {
		cfg = &stateConfig{transitions: make(transitionTable)}
		b.tables[state] = cfg
	}
	return cfg
}

// Build snapshots the configured transitions so later Configure calls do not leak into the machine
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	tables := make(map[State]transitionTable, len(b.tables))
	for state, cfg := range b.tables {
		table := make(transitionTable, len(cfg.transitions))
		for trigger, to := range cfg.transitions {
			table[trigger] = to
		}
		tables[state] = table
	}

	return &stateMachine{
		current: initialState,
		tables:  tables,
	}
}

// Permit allows trigger to move to toState; a second Permit for the same trigger replaces the first
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = toState
	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.current
}

// CanFire reports whether a transition exists for trigger
func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.tables[m.current][trigger]
	return ok
}

// Fire moves to the state configured for trigger
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	to, ok := m.tables[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}
