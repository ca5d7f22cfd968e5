package telemetry

import "testing"

func TestNewAppServerStatus_StartsStopped(t *testing.T) {
	s := NewAppServerStatus()
	if s.Mode() != ModeStopped {
		t.Errorf("Mode() = %v, want %v", s.Mode(), ModeStopped)
	}
	if len(s.Decisions()) != 0 || len(s.Transitions()) != 0 {
		t.Error("new status should start with empty logs")
	}
}

func TestTransition_UpdatesModeAndLogsFromTo(t *testing.T) {
	s := NewAppServerStatus()
	s.Transition(ModeStarting)
	s.Transition(ModeRunning)

	if s.Mode() != ModeRunning {
		t.Errorf("Mode() = %v, want %v", s.Mode(), ModeRunning)
	}
	transitions := s.Transitions()
	if len(transitions) != 2 {
		t.Fatalf("len(Transitions()) = %d, want 2", len(transitions))
	}
	if transitions[0].From != ModeStopped || transitions[0].To != ModeStarting {
		t.Errorf("transitions[0] = %+v, want stopped->starting", transitions[0])
	}
	if transitions[1].From != ModeStarting || transitions[1].To != ModeRunning {
		t.Errorf("transitions[1] = %+v, want starting->running", transitions[1])
	}
}

func TestTransition_CapsAt100Entries(t *testing.T) {
	s := NewAppServerStatus()
	for i := 0; i < maxTransitionLogEntries+25; i++ {
		mode := ModeRunning
		if i%2 == 0 {
			mode = ModeBackoff
		}
		s.Transition(mode)
	}
	if len(s.Transitions()) != maxTransitionLogEntries {
		t.Errorf("len(Transitions()) = %d, want %d", len(s.Transitions()), maxTransitionLogEntries)
	}
}

func TestRecordDecision_CapsAt200Entries(t *testing.T) {
	s := NewAppServerStatus()
	for i := 0; i < maxDecisionLogEntries+50; i++ {
		s.RecordDecision(Decision{Mode: ModeBackoff, Allowed: false, Reason: "budget exhausted"})
	}
	if len(s.Decisions()) != maxDecisionLogEntries {
		t.Errorf("len(Decisions()) = %d, want %d", len(s.Decisions()), maxDecisionLogEntries)
	}
}

func TestDecisionsAndTransitions_ReturnCopies(t *testing.T) {
	s := NewAppServerStatus()
	s.RecordDecision(Decision{Mode: ModeStopped, Allowed: true})
	s.Transition(ModeStarting)

	decisions := s.Decisions()
	decisions[0].Allowed = false
	if s.Decisions()[0].Allowed != true {
		t.Error("mutating a returned Decisions() slice should not affect internal state")
	}

	transitions := s.Transitions()
	transitions[0].To = ModeBackoff
	if s.Transitions()[0].To != ModeStarting {
		t.Error("mutating a returned Transitions() slice should not affect internal state")
	}
}
