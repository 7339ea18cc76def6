package state

import (
	"errors"
	"testing"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            string
	OnEnterCalled bool
	OnExitCalled  bool
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() string {
	return m.ID
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	initialState.reset()

	if err := sm.ChangeState(nextState); err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}
	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}
	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	if err := sm.AddTransition(stateA, stateB, func() bool { return true }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}
	if err := sm.AddTransition(stateB, stateC, func() bool { return false }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	if err := sm.ChangeState(stateB); err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}

	stateB.reset()
	if err := sm.ChangeState(stateC); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestStrictStateMachine_RejectsUnregistered(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}

	sm := NewStrictStateMachine(stateA)
	if err := sm.ChangeState(stateB); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("Expected strict machine to reject unregistered transition, got %v", err)
	}

	_ = sm.AddTransition(stateA, stateB, nil)
	if err := sm.ChangeState(stateB); err != nil {
		t.Fatalf("Expected registered transition to succeed, got %v", err)
	}
}

func TestLifecycle_IsLinear(t *testing.T) {
	var terminalEntered, discardedEntered int
	l := NewLifecycle(LifecycleHooks{
		OnTerminal:  func() { terminalEntered++ },
		OnDiscarded: func() { discardedEntered++ },
	})

	if l.Phase() != PhaseCreated {
		t.Fatalf("Expected created, got %s", l.Phase())
	}
	if err := l.Terminate(); err == nil {
		t.Fatal("created -> terminal must be rejected")
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(); err == nil {
		t.Fatal("in_progress must not be re-entered")
	}
	if err := l.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := l.Terminate(); err == nil {
		t.Fatal("terminal must not be re-entered")
	}
	if err := l.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := l.Start(); err == nil {
		t.Fatal("discarded room must not restart")
	}

	if terminalEntered != 1 || discardedEntered != 1 {
		t.Errorf("Expected hooks to run once each, got terminal=%d discarded=%d", terminalEntered, discardedEntered)
	}
}

func TestLifecycle_VoidFromInProgress(t *testing.T) {
	l := NewLifecycle(LifecycleHooks{})
	_ = l.Start()
	if err := l.Discard(); err != nil {
		t.Fatalf("in_progress -> discarded should be allowed for voided rooms: %v", err)
	}
	if l.Phase() != PhaseDiscarded {
		t.Errorf("Expected discarded, got %s", l.Phase())
	}
}
