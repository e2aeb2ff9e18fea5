package monitor

import "testing"

func TestTracker_LazyInitialState(t *testing.T) {
	tr := NewTracker()
	st := tr.Get("s1")
	if !st.Initial() || st.ConsecutiveStales != 0 || !st.LastPollTime.IsZero() {
		t.Errorf("initial state = %+v", st)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTracker_RetainAndForget(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"a", "b", "c"} {
		tr.Set(id, PollState{LastMediaSequence: 1})
	}

	if removed := tr.Retain([]string{"a", "c", "z"}); removed != 1 {
		t.Errorf("Retain removed %d, want 1", removed)
	}
	tr.Forget("a")
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
	if st := tr.Get("c"); st.LastMediaSequence != 1 {
		t.Errorf("c lost its state: %+v", st)
	}
}
