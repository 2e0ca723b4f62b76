package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateActive, false},
		{StateApproved, true},
		{StateRejected, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"unknown", State("ON_HOLD"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigureReturnsSameConfig(t *testing.T) {
	builder := NewBuilder()

	first := builder.Configure(StatePending)
	second := builder.Configure(StatePending)
	if first != second {
		t.Error("Configure() should return the same configuration for the same state")
	}
}

func TestBuilder_PanicsOnInvalidStates(t *testing.T) {
	cases := map[string]func(){
		"configure": func() { NewBuilder().Configure(State("BOGUS")) },
		"build":     func() { NewBuilder().Build(State("BOGUS")) },
		"permit":    func() { NewBuilder().Configure(StatePending).Permit(TriggerActivate, State("BOGUS")) },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("%s should panic on invalid state", name)
				}
			}()
			fn()
		})
	}
}

func TestStateMachine_MachinesAreIndependent(t *testing.T) {
	builder := NewInstanceLifecycle()

	m1 := builder.Build(StatePending)
	m2 := builder.Build(StatePending)

	if err := m1.Fire(context.Background(), TriggerActivate); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m2.State() != StatePending {
		t.Errorf("m2 state = %v, want %v", m2.State(), StatePending)
	}

	// configuring after Build must not change existing machines
	builder.Configure(StateActive).Permit(TriggerCancel, StateCancelled)
	if m1.CanFire(TriggerCancel) {
		t.Error("machine built before Configure() should not see new transitions")
	}
}

func TestCanFire(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		want    bool
	}{
		{StatePending, TriggerActivate, true},
		{StatePending, TriggerCancel, true},
		{StatePending, TriggerApprove, false},
		{StateActive, TriggerApprove, true},
		{StateActive, TriggerReject, true},
		{StateActive, TriggerCancel, false},
		{StateApproved, TriggerCancel, false},
		{StateRejected, TriggerCancel, false},
		{StateCancelled, TriggerActivate, false},
		{State("LOST"), TriggerCancel, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			if got := CanFire(tt.from, tt.trigger); got != tt.want {
				t.Errorf("CanFire(%v, %v) = %v, want %v", tt.from, tt.trigger, got, tt.want)
			}
		})
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		wantErr error
	}{
		{"activate pending", StatePending, TriggerActivate, StateActive, nil},
		{"cancel pending", StatePending, TriggerCancel, StateCancelled, nil},
		{"approve active", StateActive, TriggerApprove, StateApproved, nil},
		{"reject active", StateActive, TriggerReject, StateRejected, nil},
		{"approve pending", StatePending, TriggerApprove, StatePending, ErrInvalidTransition},
		{"activate active", StateActive, TriggerActivate, StateActive, ErrInvalidTransition},
		{"cancel active", StateActive, TriggerCancel, StateActive, ErrInvalidTransition},
		{"reopen approved", StateApproved, TriggerActivate, StateApproved, ErrInvalidTransition},
		{"unknown state", State("LOST"), TriggerActivate, State("LOST"), ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(context.Background(), tt.from, tt.trigger)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Next() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Next() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceLifecycle_TerminalStatesHaveNoExits(t *testing.T) {
	terminal := []State{StateApproved, StateRejected, StateCancelled}
	triggers := []Trigger{TriggerActivate, TriggerApprove, TriggerReject, TriggerCancel}

	for _, state := range terminal {
		m := NewInstanceLifecycle().Build(state)
		for _, trig := range triggers {
			if m.CanFire(trig) {
				t.Errorf("%v should have no exit, but %v is permitted", state, trig)
			}
		}
	}
}
