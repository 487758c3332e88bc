package core

import "time"

// Status is the visible state of a recurring template.
type Status string

const (
	StatusPaused              Status = "paused"
	StatusAddedThisMonth      Status = "added_this_month"
	StatusPendingFirstOfMonth Status = "pending_first_of_month"
)

// TemplateKey groups recurring templates that may not coexist.
func TemplateKey(e Expense) string {
	return e.Name + "_" + e.Category
}

// IsActiveTemplate reports whether e takes part in roll-forward.
func IsActiveTemplate(e Expense) bool {
	return e.Monthly && !e.IsPaused
}

// HasRecordInMonth reports whether any expense matching name and category is dated in ym.
func HasRecordInMonth(expenses []Expense, name, category string, ym YearMonth) bool {
	for _, e := range expenses {
		if e.Name == name && e.Category == category && ym.Contains(e.Date.Time) {
			return true
		}
	}
	return false
}

// ComputeStatus evaluates a template against all of the user's expenses.
// A realized record this month wins over the paused flag, which in turn
// wins over lastAdded.
func ComputeStatus(template Expense, all []Expense, today time.Time) Status {
	ym := YearMonthOf(today)
	if HasRecordInMonth(all, template.Name, template.Category, ym) {
		return StatusAddedThisMonth
	}
	if template.IsPaused {
		return StatusPaused
	}
	if ym.Contains(template.LastAdded.Time) {
		return StatusAddedThisMonth
	}
	return StatusPendingFirstOfMonth
}

// DedupeTemplates keeps one recurring template per TemplateKey: the one with
// the strictly greatest amount, or the first encountered on ties. It returns a
// copy of expenses with the losers set to Monthly=false, and the losers in
// input order.
func DedupeTemplates(expenses []Expense) ([]Expense, []Expense) {
	out := make([]Expense, len(expenses))
	copy(out, expenses)

	survivor := make(map[string]int)
	lost := make([]bool, len(out))
	for i, e := range out {
		if !e.Monthly {
			continue
		}
		key := TemplateKey(e)
		j, ok := survivor[key]
		if !ok {
			survivor[key] = i
			continue
		}
		if e.Amount.Cents > out[j].Amount.Cents {
			lost[j] = true
			survivor[key] = i
		} else {
			lost[i] = true
		}
	}

	var demoted []Expense
	for i := range out {
		if lost[i] {
			out[i].Monthly = false
			demoted = append(demoted, out[i])
		}
	}
	return out, demoted
}

// Templates returns the recurring templates in expenses, in order.
func Templates(expenses []Expense) []Expense {
	var out []Expense
	for _, e := range expenses {
		if e.Monthly {
			out = append(out, e)
		}
	}
	return out
}
