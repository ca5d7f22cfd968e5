package telemetry

import "sync"

const (
	maxDecisionLogEntries   = 200
	maxTransitionLogEntries = 100
)

// AppServerMode is a Codex-app-server supervisor mode.
type AppServerMode string

const (
	ModeStopped  AppServerMode = "stopped"
	ModeStarting AppServerMode = "starting"
	ModeRunning  AppServerMode = "running"
	ModeBackoff  AppServerMode = "backoff"
)

// Decision records one restart-budget evaluation.
type Decision struct {
	Mode    AppServerMode
	Allowed bool
	Reason  string
}

// Transition records one mode change.
type Transition struct {
	From AppServerMode
	To   AppServerMode
}

// AppServerStatus is the bounded, append-only, mutex-guarded runtime state
// spec.md §5 assigns to the Codex-app-server supervisor: a restart-budget
// decisions log (capped at 200 entries) and a mode-transition log (capped at
// 100 entries). Per spec.md §9's Open Question framing, the supervisor never
// spawns the sidecar process in this implementation — this type exists so
// the shape of that runtime state matches spec, with nothing currently
// writing to it beyond NewAppServerStatus.
type AppServerStatus struct {
	mu          sync.Mutex
	mode        AppServerMode
	decisions   []Decision
	transitions []Transition
}

// NewAppServerStatus returns a status tracker starting in ModeStopped.
func NewAppServerStatus() *AppServerStatus {
	return &AppServerStatus{mode: ModeStopped}
}

// Mode returns the current mode.
func (s *AppServerStatus) Mode() AppServerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RecordDecision appends d to the decisions log, evicting the oldest entry
// once the log reaches maxDecisionLogEntries.
func (s *AppServerStatus) RecordDecision(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	if len(s.decisions) > maxDecisionLogEntries {
		s.decisions = s.decisions[len(s.decisions)-maxDecisionLogEntries:]
	}
}

// Transition appends a Transition from the current mode to next and updates
// the current mode, evicting the oldest transition once the log reaches
// maxTransitionLogEntries.
func (s *AppServerStatus) Transition(next AppServerMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, Transition{From: s.mode, To: next})
	if len(s.transitions) > maxTransitionLogEntries {
		s.transitions = s.transitions[len(s.transitions)-maxTransitionLogEntries:]
	}
	s.mode = next
}

// Decisions returns a copy of the decisions log.
func (s *AppServerStatus) Decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// Transitions returns a copy of the transitions log.
func (s *AppServerStatus) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}
