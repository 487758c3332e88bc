package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names the change an ExpenseEvent reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ExpenseEvent is a lightweight change notification. Consumers fetch the
// expense itself from storage.
type ExpenseEvent struct {
	MessageID string    `json:"messageId"`
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"userId"`
	ExpenseID string    `json:"expenseId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(kind EventKind, uid, expenseID string) *ExpenseEvent {
	return &ExpenseEvent{
		MessageID: uuid.NewString(),
		Kind:      kind,
		UserID:    uid,
		ExpenseID: expenseID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseEvent) Validate() error {
	switch m.Kind {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("unknown event kind %q", m.Kind)
	}
	if m.UserID == "" || m.ExpenseID == "" {
		return fmt.Errorf("event %s: missing user or expense id", m.MessageID)
	}
	return nil
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates a message body.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
