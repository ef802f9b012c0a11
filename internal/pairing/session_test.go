package pairing

import "testing"

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateDelivered, StateClosed, StateExpired, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []State{StatePending, StateChallengeIssued, StateConnected} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestStatePollStatus(t *testing.T) {
	cases := map[State]string{
		StatePending:         "pending",
		StateChallengeIssued: "pending",
		StateConnected:       "connected",
		StateDelivered:       "connected",
		StateClosed:          "closed",
		StateFailed:          "closed",
		StateExpired:         "expired",
	}
	for state, want := range cases {
		if got := state.PollStatus(); got != want {
			t.Errorf("%s.PollStatus() = %q, want %q", state, got, want)
		}
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	s := newSession("id", ModeQR, "", "/tmp/x")
	s.state = StateChallengeIssued

	if !s.advance(StateChallengeIssued, StateConnected) {
		t.Fatal("first advance rejected")
	}
	// A duplicate of the same transition must be absorbed.
	if s.advance(StateChallengeIssued, StateConnected) {
		t.Error("duplicate advance accepted")
	}
	// Terminal states admit no further transitions.
	s.state = StateDelivered
	if s.advance(StateDelivered, StateConnected) {
		t.Error("advance out of terminal state accepted")
	}
}
