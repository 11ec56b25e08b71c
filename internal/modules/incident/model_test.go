package incident

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusAssigned, true},
		{StatusActive, StatusInProgress, true},
		{StatusActive, StatusFalseAlarm, true},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusResolved, true},
		{StatusInProgress, StatusResolved, true},
		{StatusAssigned, StatusFalseAlarm, false},
		{StatusAssigned, StatusActive, false},
		{StatusInProgress, StatusAssigned, false},
		{StatusResolved, StatusActive, false},
		{StatusFalseAlarm, StatusResolved, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusResolved, StatusFalseAlarm} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusActive, StatusAssigned, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanAdvance(t *testing.T) {
	if !CanAdvance(CommitmentEnRoute, CommitmentArrived) || !CanAdvance(CommitmentArrived, CommitmentHelping) {
		t.Fatal("forward moves must be allowed")
	}
	if !CanAdvance(CommitmentEnRoute, CommitmentHelping) {
		t.Fatal("skipping ahead must be allowed")
	}
	if CanAdvance(CommitmentHelping, CommitmentEnRoute) || CanAdvance(CommitmentArrived, CommitmentArrived) {
		t.Fatal("backward or repeated moves must be rejected")
	}
	if CanAdvance("lost", CommitmentHelping) {
		t.Fatal("unknown status must be rejected")
	}
}

func TestSeverityValid(t *testing.T) {
	for _, s := range []Severity{SeverityMinor, SeverityModerate, SeverityCritical} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Severity("catastrophic").Valid() {
		t.Error("unknown severity accepted")
	}
}
