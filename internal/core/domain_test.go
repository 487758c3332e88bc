package core

import (
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be accepted, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Name:     "Coffee",
		Amount:   Money{Cents: 400},
		Category: "5",
		Date:     NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Name: "a", Amount: Money{Cents: 1}, Category: "c"},
		{Name: " ", Amount: Money{Cents: 1}, Category: "c", Date: NewDate(2025, 1, 1)},
		{Name: strings.Repeat("x", 201), Amount: Money{Cents: 1}, Category: "c", Date: NewDate(2025, 1, 1)},
		{Name: "a", Amount: Money{Cents: -5}, Category: "c", Date: NewDate(2025, 1, 1)},
		{Name: "a", Amount: Money{Cents: 1}, Category: "", Date: NewDate(2025, 1, 1)},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpensePatchApply(t *testing.T) {
	base := Expense{ID: "x", Name: "Rent", Amount: Money{Cents: 100000}, Category: "6", Monthly: true}
	paused := true
	name := "Rent (flat)"

	got := ExpensePatch{IsPaused: &paused, Name: &name}.Apply(base)
	if !got.IsPaused || got.Name != name {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Amount != base.Amount || got.Category != base.Category || !got.Monthly {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if !(ExpensePatch{}).IsEmpty() {
		t.Fatalf("zero patch should be empty")
	}
}

func TestCategorySetName(t *testing.T) {
	set := NewCategorySet([]Category{{ID: "c-1", Name: "Pets", Icon: "paw"}})
	if got := set.Name("6"); got != "Housing" {
		t.Fatalf("default name = %q", got)
	}
	if got := set.Name("c-1"); got != "Pets" {
		t.Fatalf("custom name = %q", got)
	}
	if got := set.Name("deleted"); got != UncategorizedName {
		t.Fatalf("unknown id should be %q, got %q", UncategorizedName, got)
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Pets", Icon: "paw"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Name: "Pets", Icon: "fa-paw"}).Validate(); err != ErrInvalidIcon {
		t.Fatalf("expected ErrInvalidIcon, got %v", err)
	}
	if err := (Category{Name: "", Icon: "paw"}).Validate(); err != ErrEmptyName {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestFirstOfNextMonth(t *testing.T) {
	cases := []struct {
		in   time.Time
		want Date
	}{
		{time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC), NewDate(2025, 2, 1)},
		{time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), NewDate(2026, 1, 1)},
	}
	for _, tc := range cases {
		if got := FirstOfNextMonth(tc.in); !got.Equal(tc.want.Time) {
			t.Fatalf("FirstOfNextMonth(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
