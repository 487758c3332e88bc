package services

import (
	"testing"
	"time"
)

func TestFirstOfMonthGate_Permits(t *testing.T) {
	gate := FirstOfMonthGate{}

	tests := []struct {
		name  string
		today time.Time
		want  bool
	}{
		{
			name:  "first of month - permitted",
			today: time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "late on the first - permitted",
			today: time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC),
			want:  true,
		},
		{
			name:  "second of month - not permitted",
			today: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "last day of month - not permitted",
			today: time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.Permits(tt.today); got != tt.want {
				t.Errorf("FirstOfMonthGate.Permits() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatchUpGate_Permits(t *testing.T) {
	gate := CatchUpGate{}
	for day := 1; day <= 31; day++ {
		today := time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC)
		if !gate.Permits(today) {
			t.Errorf("CatchUpGate.Permits(%s) = false, want true", today.Format(time.DateOnly))
		}
	}
}

func TestGetRollForwardGate(t *testing.T) {
	tests := []struct {
		policy  string
		want    RollForwardGate
		wantErr bool
	}{
		{policy: PolicyFirstOfMonth, want: FirstOfMonthGate{}},
		{policy: PolicyCatchUp, want: CatchUpGate{}},
		{policy: "weekly", wantErr: true},
		{policy: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			got, err := GetRollForwardGate(tt.policy)
			if tt.wantErr {
				if err == nil {
					t.Errorf("GetRollForwardGate(%q) should fail", tt.policy)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetRollForwardGate(%q) error = %v", tt.policy, err)
			}
			if got != tt.want {
				t.Errorf("GetRollForwardGate(%q) = %T, want %T", tt.policy, got, tt.want)
			}
		})
	}
}

type neverGate struct{}

func (neverGate) Permits(time.Time) bool { return false }

func TestRegisterRollForwardGate(t *testing.T) {
	RegisterRollForwardGate("never", neverGate{})
	t.Cleanup(func() { delete(rollForwardGates, "never") })

	gate, err := GetRollForwardGate("never")
	if err != nil {
		t.Fatalf("GetRollForwardGate() error = %v", err)
	}
	if gate.Permits(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("registered gate should be used")
	}
	if got := RollForwardPolicies(); len(got) != 3 {
		t.Errorf("RollForwardPolicies() = %v, want 3 entries", got)
	}
}
