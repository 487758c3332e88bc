package core

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Key formats the month as "2006-01"; it is the roll-forward ledger key component.
func (ym YearMonth) Key() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Contains reports whether t falls in the month. Zero times never do.
func (ym YearMonth) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return t.Year() == ym.Year && t.Month() == ym.Month
}

// FirstOfNextMonth returns the first day of the month after t.
func FirstOfNextMonth(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)}
}

// IsFirstOfMonth reports whether t is the first calendar day of its month.
func IsFirstOfMonth(t time.Time) bool {
	return t.Day() == 1
}
