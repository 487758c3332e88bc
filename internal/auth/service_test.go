package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"pennylogs/internal/core"
	"pennylogs/internal/storage/memory"
)

type stateEvent struct {
	uid      string
	signedIn bool
}

type recorder struct {
	mu     sync.Mutex
	events []stateEvent
}

func (r *recorder) AuthStateChanged(_ context.Context, uid string, user *core.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stateEvent{uid: uid, signedIn: user != nil})
}

type AuthSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *memory.Store
	svc   *Service
	rec   *recorder
	user  core.User
}

func (suite *AuthSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	suite.store = memory.New()
	suite.svc = NewService(suite.store, Config{BcryptCost: bcrypt.MinCost}).
		WithClock(func() time.Time { return suite.now })
	suite.rec = &recorder{}
	suite.svc.OnAuthStateChanged(suite.rec)

	u, err := suite.svc.Register(suite.ctx, "Ana@Example.com", "correct horse")
	require.NoError(suite.T(), err)
	suite.user = u
}

func (suite *AuthSuite) TestRegisterValidation() {
	t := suite.T()
	_, err := suite.svc.Register(suite.ctx, "not-an-email", "longenough")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = suite.svc.Register(suite.ctx, "bo@example.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = suite.svc.Register(suite.ctx, "ana@example.com", "another password")
	assert.ErrorIs(t, err, core.ErrEmailTaken)
}

func (suite *AuthSuite) TestLoginAuthenticateLogout() {
	t := suite.T()
	sess, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)
	assert.Equal(t, suite.now.Add(DefaultSessionTTL), sess.ExpiresAt)

	u, err := suite.svc.Authenticate(suite.ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, suite.user.ID, u.ID)

	require.NoError(t, suite.svc.Logout(suite.ctx, sess.Token))
	_, err = suite.svc.Authenticate(suite.ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, suite.svc.Logout(suite.ctx, sess.Token), ErrUnauthenticated)

	assert.Equal(t, []stateEvent{{suite.user.ID, true}, {suite.user.ID, false}}, suite.rec.events)
}

func (suite *AuthSuite) TestSignOutNotifiesAfterLastSession() {
	t := suite.T()
	a, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)
	b, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, suite.svc.Logout(suite.ctx, a.Token))
	assert.Len(t, suite.rec.events, 2, "one session still live")

	require.NoError(t, suite.svc.Logout(suite.ctx, b.Token))
	assert.Equal(t, stateEvent{suite.user.ID, false}, suite.rec.events[2])
}

func (suite *AuthSuite) TestSessionExpires() {
	t := suite.T()
	sess, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)

	suite.now = suite.now.Add(DefaultSessionTTL)
	_, err = suite.svc.Authenticate(suite.ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = suite.svc.Authenticate(suite.ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func (suite *AuthSuite) TestLoginThrottling() {
	t := suite.T()
	for i := 0; i < DefaultMaxAttempts; i++ {
		_, err := suite.svc.Login(suite.ctx, "ana@example.com", "wrong password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		suite.now = suite.now.Add(time.Minute)
	}

	// Even the right password is refused inside the window.
	_, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// The counter is persisted, so a fresh service sees it too.
	other := NewService(suite.store, Config{BcryptCost: bcrypt.MinCost}).
		WithClock(func() time.Time { return suite.now })
	_, err = other.Login(suite.ctx, "ana@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// The window opened at the first failure; after it passes login works.
	suite.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(DefaultAttemptWindow)
	_, err = suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)

	a, err := suite.store.GetAttempts(suite.ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Zero(t, a.Failures, "success resets the counter")
}

func (suite *AuthSuite) TestUnknownEmailCountsAsFailure() {
	t := suite.T()
	_, err := suite.svc.Login(suite.ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	a, err := suite.store.GetAttempts(suite.ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Failures)
	assert.Empty(t, suite.rec.events)
}

func (suite *AuthSuite) TestListenerRemoval() {
	t := suite.T()
	extra := &recorder{}
	remove := suite.svc.OnAuthStateChanged(extra)
	remove()

	_, err := suite.svc.Login(suite.ctx, "ana@example.com", "correct horse")
	require.NoError(t, err)
	assert.Empty(t, extra.events)
	assert.Len(t, suite.rec.events, 1)
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthSuite))
}

func TestTokenHelpers(t *testing.T) {
	a, err := GenerateSessionToken()
	require.NoError(t, err)
	b, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, HashToken(a), 64)
	assert.NotEqual(t, a, HashToken(a))

	hash, err := hashPasswordCost("secret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret-pass"))
	assert.False(t, CheckPassword(hash, "Secret-pass"))
}
