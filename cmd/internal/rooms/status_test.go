package rooms

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusExchangeStarted, true},
		{StatusOpen, StatusClosed, true},
		{StatusExchangeStarted, StatusClosed, true},
		{StatusExchangeStarted, StatusOpen, false},
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusExchangeStarted, false},
		{StatusOpen, StatusOpen, false},
		{StatusClosed, StatusClosed, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusOpen, StatusExchangeStarted, StatusClosed} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if Status("archived").Valid() {
		t.Errorf("expected unknown status to be invalid")
	}
}
