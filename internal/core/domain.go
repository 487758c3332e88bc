package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	// Timestamp is an instant that serializes to "" when unset.
	Timestamp struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Amount       Money     `json:"amount"`
		Category     string    `json:"category"`
		CategoryName string    `json:"categoryName"`
		Date         Date      `json:"date"`
		Monthly      bool      `json:"monthly"`
		IsPaused     bool      `json:"isPaused"`
		LastAdded    Timestamp `json:"lastAdded"`
		NextDate     Date      `json:"nextDate"`
		StartDate    Date      `json:"startDate"`
	}

	// ExpensePatch carries a partial update; nil fields are left untouched.
	ExpensePatch struct {
		Name         *string    `json:"name,omitempty"`
		Amount       *Money     `json:"amount,omitempty"`
		Category     *string    `json:"category,omitempty"`
		CategoryName *string    `json:"categoryName,omitempty"`
		Date         *Date      `json:"date,omitempty"`
		Monthly      *bool      `json:"monthly,omitempty"`
		IsPaused     *bool      `json:"isPaused,omitempty"`
		LastAdded    *Timestamp `json:"lastAdded,omitempty"`
		NextDate     *Date      `json:"nextDate,omitempty"`
		StartDate    *Date      `json:"startDate,omitempty"`
	}

	User struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Preferences struct {
		DisplayCurrency     string `json:"displayCurrency"`
		RollForwardReminder bool   `json:"rollForwardReminder"`
	}
)

// ReferenceCurrency is the currency every stored amount is normalized to.
const ReferenceCurrency = "USD"

const maxNameLength = 200

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrNameTooLong      = errors.New("name too long (max 200 characters)")
	ErrEmptyCategory    = errors.New("empty category")
	ErrDuplicateExpense = errors.New("expense already recorded this month")
	ErrNotFound         = errors.New("not found")
	ErrNotRecurring     = errors.New("expense is not recurring")
	ErrInvalidIcon      = errors.New("invalid category icon")
	ErrEmailTaken       = errors.New("email already registered")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping the day as seen in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewExpenseFromTemplate returns the one-off instance a template materializes on day.
func NewExpenseFromTemplate(t Expense, day Date) Expense {
	return Expense{
		Name:         t.Name,
		Amount:       t.Amount,
		Category:     t.Category,
		CategoryName: t.CategoryName,
		Date:         day,
		Monthly:      false,
	}
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > maxNameLength {
		return ErrNameTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Apply returns a copy of e with the non-nil fields of p applied.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.CategoryName != nil {
		e.CategoryName = *p.CategoryName
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Monthly != nil {
		e.Monthly = *p.Monthly
	}
	if p.IsPaused != nil {
		e.IsPaused = *p.IsPaused
	}
	if p.LastAdded != nil {
		e.LastAdded = *p.LastAdded
	}
	if p.NextDate != nil {
		e.NextDate = *p.NextDate
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p == ExpensePatch{}
}
