package order

import "testing"

func TestNewIntentUniqueLinkID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		in := NewIntent("BTCUSDT", SideBuy, "0.001", "65000")
		if in.LinkID == "" {
			t.Fatalf("empty link id")
		}
		if seen[in.LinkID] {
			t.Fatalf("duplicate link id %s", in.LinkID)
		}
		seen[in.LinkID] = true
		if in.Type != TypeLimit {
			t.Fatalf("unexpected type %s", in.Type)
		}
	}
}

func TestStateMachineForwardOnly(t *testing.T) {
	sm := NewStateMachine()
	var changes []Phase
	sm.OnChange(func(_, to Phase) { changes = append(changes, to) })

	path := []Phase{PhaseBuying, PhaseAwaitingFill, PhaseWatching, PhaseSelling, PhaseDone}
	for _, p := range path {
		if err := sm.Advance(p); err != nil {
			t.Fatalf("advance to %s: %v", p, err)
		}
	}
	if sm.Current() != PhaseDone {
		t.Fatalf("expected DONE, got %s", sm.Current())
	}
	if len(changes) != len(path) {
		t.Fatalf("expected %d callbacks, got %d", len(path), len(changes))
	}
	if err := sm.Advance(PhaseSelling); err == nil {
		t.Fatalf("expected error leaving terminal phase")
	}
}

func TestStateMachineRejectsSkip(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.Advance(PhaseSelling); err == nil {
		t.Fatalf("expected illegal transition")
	}
	if sm.Current() != PhaseScheduled {
		t.Fatalf("phase changed on illegal transition: %s", sm.Current())
	}
	if err := sm.validateTransition(PhaseWatching, PhaseSelling); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := sm.validateTransition(PhaseSelling, PhaseWatching); err == nil {
		t.Fatalf("expected backward transition to be rejected")
	}
}
