package dispatch

import "testing"

func TestStatusTransitionTable(t *testing.T) {
	all := []Status{
		StatusPending, StatusAccepted, StatusOnTheWay, StatusArrived,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusRejected,
	}
	legal := map[Status]map[Status]bool{
		StatusPending:    {StatusAccepted: true, StatusRejected: true, StatusCancelled: true},
		StatusAccepted:   {StatusOnTheWay: true, StatusCancelled: true},
		StatusOnTheWay:   {StatusArrived: true, StatusCancelled: true},
		StatusArrived:    {StatusInProgress: true, StatusCancelled: true},
		StatusInProgress: {StatusCompleted: true, StatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRejected} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusOnTheWay, StatusArrived, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusPending.Valid() {
		t.Error("expected pending to be valid")
	}
	if Status("teleported").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}
