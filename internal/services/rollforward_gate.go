package services

import (
	"fmt"
	"sort"
	"time"

	"pennylogs/internal/core"
)

// RollForwardGate decides whether a roll-forward run may create instances on
// a given day. Duplicate suppression is not its job; the ledger key and the
// existence check handle that.
type RollForwardGate interface {
	Permits(today time.Time) bool
}

const (
	PolicyFirstOfMonth = "first_of_month"
	PolicyCatchUp      = "catch_up"
)

// FirstOfMonthGate only opens on the first calendar day of the month.
type FirstOfMonthGate struct{}

func (FirstOfMonthGate) Permits(today time.Time) bool {
	return core.IsFirstOfMonth(today)
}

// CatchUpGate opens on every day, so a run missed on the 1st still rolls
// templates forward later in the month.
type CatchUpGate struct{}

func (CatchUpGate) Permits(time.Time) bool { return true }

var rollForwardGates = map[string]RollForwardGate{
	PolicyFirstOfMonth: FirstOfMonthGate{},
	PolicyCatchUp:      CatchUpGate{},
}

// GetRollForwardGate returns the gate registered under policy.
func GetRollForwardGate(policy string) (RollForwardGate, error) {
	gate, ok := rollForwardGates[policy]
	if !ok {
		return nil, fmt.Errorf("unknown roll-forward policy: %q", policy)
	}
	return gate, nil
}

// RegisterRollForwardGate adds or replaces a policy.
func RegisterRollForwardGate(policy string, gate RollForwardGate) {
	rollForwardGates[policy] = gate
}

// RollForwardPolicies lists the registered policy names.
func RollForwardPolicies() []string {
	names := make([]string, 0, len(rollForwardGates))
	for name := range rollForwardGates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
