package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

type userRecord struct {
	user core.User
	hash string
}

type sessionRecord struct {
	uid       string
	expiresAt time.Time
}

// Store keeps every namespace in maps guarded by one mutex. Expenses keep
// insertion order per user.
type Store struct {
	mu           sync.Mutex
	expenses     map[string][]core.Expense
	rollForwards map[string]map[ports.RollForwardKey]string
	categories   map[string][]core.Category
	prefs        map[string]core.Preferences
	users        map[string]userRecord // by id
	emails       map[string]string     // email -> id
	sessions     map[string]sessionRecord
	attempts     map[string]ports.LoginAttempts

	// failUpdate makes UpdateExpense fail for matching ids; used by tests.
	failUpdate func(id string) bool
	// failRollForward makes InsertRollForward fail for matching template ids.
	failRollForward func(templateID string) bool
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		expenses:     make(map[string][]core.Expense),
		rollForwards: make(map[string]map[ports.RollForwardKey]string),
		categories:   make(map[string][]core.Category),
		prefs:        make(map[string]core.Preferences),
		users:        make(map[string]userRecord),
		emails:       make(map[string]string),
		sessions:     make(map[string]sessionRecord),
		attempts:     make(map[string]ports.LoginAttempts),
	}
}

// FailUpdates installs a predicate that makes UpdateExpense return an error.
func (s *Store) FailUpdates(fn func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate = fn
}

// FailRollForwards installs a predicate that makes InsertRollForward return
// an error for the matching templates.
func (s *Store) FailRollForwards(fn func(templateID string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRollForward = fn
}

func (s *Store) Close() error { return nil }

func (s *Store) ListExpenses(_ context.Context, uid string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses[uid]...), nil
}

func (s *Store) GetExpense(_ context.Context, uid, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(uid, id)
	if i < 0 {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return s.expenses[uid][i], nil
}

func (s *Store) CreateExpense(_ context.Context, uid string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(uid, e), nil
}

func (s *Store) appendLocked(uid string, e core.Expense) core.Expense {
	e.ID = uuid.NewString()
	s.expenses[uid] = append(s.expenses[uid], e)
	return e
}

func (s *Store) UpdateExpense(_ context.Context, uid, id string, patch core.ExpensePatch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil && s.failUpdate(id) {
		return core.Expense{}, fmt.Errorf("update expense %s: injected failure", id)
	}
	i := s.indexOf(uid, id)
	if i < 0 {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	updated := patch.Apply(s.expenses[uid][i])
	if err := updated.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.expenses[uid][i] = updated
	return updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(uid, id)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	list := s.expenses[uid]
	s.expenses[uid] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *Store) InsertRollForward(_ context.Context, uid string, key ports.RollForwardKey, instance core.Expense) (core.Expense, bool, error) {
	if err := instance.Validate(); err != nil {
		return core.Expense{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRollForward != nil && s.failRollForward(key.TemplateID) {
		return core.Expense{}, false, fmt.Errorf("roll forward %s: injected failure", key.TemplateID)
	}
	claimed := s.rollForwards[uid]
	if claimed == nil {
		claimed = make(map[ports.RollForwardKey]string)
		s.rollForwards[uid] = claimed
	}
	if _, ok := claimed[key]; ok {
		return core.Expense{}, false, nil
	}
	e := s.appendLocked(uid, instance)
	claimed[key] = e.ID
	return e, true, nil
}

func (s *Store) indexOf(uid, id string) int {
	for i, e := range s.expenses[uid] {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for id := range s.users {
		seen[id] = struct{}{}
	}
	for uid := range s.expenses {
		seen[uid] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListCategories(_ context.Context, uid string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.categories[uid]...), nil
}

func (s *Store) CreateCategory(_ context.Context, uid string, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.Custom = true
	s.categories[uid] = append(s.categories[uid], c)
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.categories[uid]
	for i, c := range list {
		if c.ID == id {
			s.categories[uid] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
}

func (s *Store) GetPreferences(_ context.Context, uid string) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[uid]
	if !ok {
		return core.Preferences{DisplayCurrency: core.ReferenceCurrency}, nil
	}
	return p, nil
}

func (s *Store) PutPreferences(_ context.Context, uid string, p core.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[uid] = p
	return nil
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[email]; ok {
		return core.User{}, core.ErrEmailTaken
	}
	u := core.User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = userRecord{user: u, hash: passwordHash}
	s.emails[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return core.User{}, "", fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	rec := s.users[id]
	return rec.user, rec.hash, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return rec.user, nil
}

func (s *Store) CreateSession(_ context.Context, tokenHash, uid string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = sessionRecord{uid: uid, expiresAt: expiresAt}
	return nil
}

func (s *Store) GetSession(_ context.Context, tokenHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[tokenHash]
	if !ok || !now.Before(rec.expiresAt) {
		return "", fmt.Errorf("session: %w", core.ErrNotFound)
	}
	return rec.uid, nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[tokenHash]
	if !ok {
		return "", fmt.Errorf("session: %w", core.ErrNotFound)
	}
	delete(s.sessions, tokenHash)
	return rec.uid, nil
}

func (s *Store) CountSessions(_ context.Context, uid string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.sessions {
		if rec.uid == uid && now.Before(rec.expiresAt) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetAttempts(_ context.Context, email string) (ports.LoginAttempts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[strings.ToLower(email)], nil
}

func (s *Store) PutAttempts(_ context.Context, email string, a ports.LoginAttempts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[strings.ToLower(email)] = a
	return nil
}

func (s *Store) ResetAttempts(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, strings.ToLower(email))
	return nil
}
