// Package storetest holds the behaviour every ports.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pennylogs/internal/core"
	"pennylogs/internal/ports"
)

// StoreSuite runs against a fresh store for every test.
type StoreSuite struct {
	suite.Suite
	NewStore func() ports.Store

	store ports.Store
	ctx   context.Context
}

func (suite *StoreSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = suite.NewStore()
}

func (suite *StoreSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func expense(name, category string, cents int64, day core.Date) core.Expense {
	return core.Expense{Name: name, Category: category, CategoryName: name, Amount: core.Money{Cents: cents}, Date: day}
}

func (suite *StoreSuite) TestCreateAndListKeepsInsertionOrder() {
	t := suite.T()
	names := []string{"Rent", "Gym", "Coffee"}
	for _, n := range names {
		_, err := suite.store.CreateExpense(suite.ctx, "u1", expense(n, "6", 1000, core.NewDate(2024, 3, 1)))
		require.NoError(t, err)
	}
	_, err := suite.store.CreateExpense(suite.ctx, "u2", expense("Other", "6", 1, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	got, err := suite.store.ListExpenses(suite.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, names[i], e.Name)
		assert.NotEmpty(t, e.ID)
	}
}

func (suite *StoreSuite) TestRoundTripsAllFields() {
	t := suite.T()
	in := core.Expense{
		Name:         "Gym",
		Amount:       core.Money{Cents: 4999},
		Category:     "10",
		CategoryName: "Fitness",
		Date:         core.NewDate(2024, 3, 10),
		Monthly:      true,
		IsPaused:     true,
		LastAdded:    core.Timestamp{Time: time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)},
		NextDate:     core.NewDate(2024, 4, 1),
		StartDate:    core.NewDate(2024, 1, 1),
	}
	created, err := suite.store.CreateExpense(suite.ctx, "u1", in)
	require.NoError(t, err)

	got, err := suite.store.GetExpense(suite.ctx, "u1", created.ID)
	require.NoError(t, err)
	in.ID = created.ID
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Amount, got.Amount)
	assert.Equal(t, in.CategoryName, got.CategoryName)
	assert.True(t, in.Date.Equal(got.Date.Time))
	assert.True(t, in.LastAdded.Equal(got.LastAdded.Time))
	assert.True(t, in.NextDate.Equal(got.NextDate.Time))
	assert.True(t, in.StartDate.Equal(got.StartDate.Time))
	assert.True(t, got.Monthly)
	assert.True(t, got.IsPaused)
}

func (suite *StoreSuite) TestCreateRejectsInvalid() {
	_, err := suite.store.CreateExpense(suite.ctx, "u1", expense("", "1", 100, core.NewDate(2024, 3, 1)))
	assert.ErrorIs(suite.T(), err, core.ErrEmptyName)

	_, err = suite.store.CreateExpense(suite.ctx, "u1", expense("Lunch", "1", -1, core.NewDate(2024, 3, 1)))
	assert.ErrorIs(suite.T(), err, core.ErrInvalidAmount)
}

func (suite *StoreSuite) TestUpdateAppliesPatchOnly() {
	t := suite.T()
	created, err := suite.store.CreateExpense(suite.ctx, "u1", expense("Rent", "6", 120000, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	monthly := true
	updated, err := suite.store.UpdateExpense(suite.ctx, "u1", created.ID, core.ExpensePatch{Monthly: &monthly})
	require.NoError(t, err)
	assert.True(t, updated.Monthly)
	assert.Equal(t, int64(120000), updated.Amount.Cents)

	got, err := suite.store.GetExpense(suite.ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.True(t, got.Monthly)
	assert.Equal(t, "Rent", got.Name)
}

func (suite *StoreSuite) TestNamespacesAreIsolated() {
	t := suite.T()
	created, err := suite.store.CreateExpense(suite.ctx, "u1", expense("Rent", "6", 100, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	_, err = suite.store.GetExpense(suite.ctx, "u2", created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, suite.store.DeleteExpense(suite.ctx, "u2", created.ID), core.ErrNotFound)

	flag := true
	_, err = suite.store.UpdateExpense(suite.ctx, "u2", created.ID, core.ExpensePatch{Monthly: &flag})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func (suite *StoreSuite) TestDelete() {
	t := suite.T()
	created, err := suite.store.CreateExpense(suite.ctx, "u1", expense("Rent", "6", 100, core.NewDate(2024, 3, 1)))
	require.NoError(t, err)

	require.NoError(t, suite.store.DeleteExpense(suite.ctx, "u1", created.ID))
	got, err := suite.store.ListExpenses(suite.ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.ErrorIs(t, suite.store.DeleteExpense(suite.ctx, "u1", created.ID), core.ErrNotFound)
}

func (suite *StoreSuite) TestInsertRollForwardClaimsOnce() {
	t := suite.T()
	key := ports.RollForwardKey{TemplateID: "tpl-1", YearMonth: "2024-03"}
	inst := expense("Gym", "10", 5000, core.NewDate(2024, 3, 1))

	first, created, err := suite.store.InsertRollForward(suite.ctx, "u1", key, inst)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	_, created, err = suite.store.InsertRollForward(suite.ctx, "u1", key, inst)
	require.NoError(t, err)
	assert.False(t, created)

	// Next month and another user have their own keys.
	_, created, err = suite.store.InsertRollForward(suite.ctx, "u1",
		ports.RollForwardKey{TemplateID: "tpl-1", YearMonth: "2024-04"}, expense("Gym", "10", 5000, core.NewDate(2024, 4, 1)))
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = suite.store.InsertRollForward(suite.ctx, "u2", key, inst)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := suite.store.ListExpenses(suite.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func (suite *StoreSuite) TestInsertRollForwardConcurrent() {
	t := suite.T()
	key := ports.RollForwardKey{TemplateID: "tpl-1", YearMonth: "2024-03"}
	inst := expense("Gym", "10", 5000, core.NewDate(2024, 3, 1))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := suite.store.InsertRollForward(suite.ctx, "u1", key, inst)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	got, err := suite.store.ListExpenses(suite.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func (suite *StoreSuite) TestUsersAndSessions() {
	t := suite.T()
	u, err := suite.store.CreateUser(suite.ctx, " Ana@Example.com ", "hash")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = suite.store.CreateUser(suite.ctx, "ana@example.com", "other")
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	byEmail, hash, err := suite.store.GetUserByEmail(suite.ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "hash", hash)

	byID, err := suite.store.GetUser(suite.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, _, err = suite.store.GetUserByEmail(suite.ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, suite.store.CreateSession(suite.ctx, "live", u.ID, now.Add(time.Hour)))
	require.NoError(t, suite.store.CreateSession(suite.ctx, "stale", u.ID, now.Add(-time.Hour)))

	uid, err := suite.store.GetSession(suite.ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = suite.store.GetSession(suite.ctx, "stale", now)
	assert.ErrorIs(t, err, core.ErrNotFound)

	n, err := suite.store.CountSessions(suite.ctx, u.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	uid, err = suite.store.DeleteSession(suite.ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
	_, err = suite.store.DeleteSession(suite.ctx, "live")
	assert.ErrorIs(t, err, core.ErrNotFound)

	ids, err := suite.store.ListUserIDs(suite.ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, u.ID)
}

func (suite *StoreSuite) TestLoginAttempts() {
	t := suite.T()
	a, err := suite.store.GetAttempts(suite.ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Zero(t, a.Failures)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, suite.store.PutAttempts(suite.ctx, "ana@example.com", ports.LoginAttempts{Failures: 3, WindowStart: start}))
	a, err = suite.store.GetAttempts(suite.ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Failures)
	assert.True(t, start.Equal(a.WindowStart))

	require.NoError(t, suite.store.ResetAttempts(suite.ctx, "ana@example.com"))
	a, err = suite.store.GetAttempts(suite.ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Zero(t, a.Failures)
}

func (suite *StoreSuite) TestCategoriesAndPreferences() {
	t := suite.T()
	_, err := suite.store.CreateCategory(suite.ctx, "u1", core.Category{Name: "Pets", Icon: "not-an-icon"})
	assert.ErrorIs(t, err, core.ErrInvalidIcon)

	c, err := suite.store.CreateCategory(suite.ctx, "u1", core.Category{Name: "Pets", Icon: "paw"})
	require.NoError(t, err)
	assert.True(t, c.Custom)

	list, err := suite.store.ListCategories(suite.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pets", list[0].Name)

	require.NoError(t, suite.store.DeleteCategory(suite.ctx, "u1", c.ID))
	assert.ErrorIs(t, suite.store.DeleteCategory(suite.ctx, "u1", c.ID), core.ErrNotFound)

	p, err := suite.store.GetPreferences(suite.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.ReferenceCurrency, p.DisplayCurrency)

	want := core.Preferences{DisplayCurrency: "EUR", RollForwardReminder: true}
	require.NoError(t, suite.store.PutPreferences(suite.ctx, "u1", want))
	p, err = suite.store.GetPreferences(suite.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, p)
}
