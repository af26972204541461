package identity_test

import (
	"context"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	stack.seedUser(t, "active@example.com", "correct-password", true, true)
	stack.seedUser(t, "pending@example.com", "correct-password", false, false)
	stack.seedUser(t, "deactivated@example.com", "correct-password", true, false)

	t.Run("valid credentials issue a session", func(t *testing.T) {
		session, err := stack.auth.Login(ctx, "active@example.com", "correct-password")
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)
		assert.NotEmpty(t, session.RefreshToken)
		assert.True(t, stack.sink.has(identity.ActivityEventLoginSuccess))
	})

	t.Run("email lookup is case and whitespace insensitive", func(t *testing.T) {
		session, err := stack.auth.Login(ctx, "  Active@Example.COM ", "correct-password")
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := stack.auth.Login(ctx, "nobody@example.com", "correct-password")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := stack.auth.Login(ctx, "active@example.com", "wrong-password")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
		assert.True(t, stack.sink.has(identity.ActivityEventLoginFailure))
	})

	t.Run("unverified account is rejected before the password check", func(t *testing.T) {
		_, err := stack.auth.Login(ctx, "pending@example.com", "correct-password")
		assert.ErrorIs(t, err, identity.ErrAccountNotVerified)
	})

	t.Run("inactive account is rejected before the password check", func(t *testing.T) {
		_, err := stack.auth.Login(ctx, "deactivated@example.com", "correct-password")
		assert.ErrorIs(t, err, identity.ErrAccountInactive)
	})
}

func TestLoginAttemptTracking(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	user := stack.seedUser(t, "tracked@example.com", "correct-password", true, true)

	for i := 0; i < 3; i++ {
		_, err := stack.auth.Login(ctx, "tracked@example.com", "wrong-password")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}

	stored, err := stack.repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, stored.LoginAttempts)
	require.NotNil(t, stored.LoginAttemptAt)

	// attempt tracking touches the counters and nothing else
	assert.Equal(t, user.Email, stored.Email)
	assert.Equal(t, user.AccountType, stored.AccountType)
	assert.True(t, stored.EmailVerified)
	assert.True(t, stored.Active)
	assert.NoError(t, identity.ComparePasswordAndHash("correct-password", stored.PasswordHash))

	// a successful login resets the counter
	_, err = stack.auth.Login(ctx, "tracked@example.com", "correct-password")
	require.NoError(t, err)

	stored, err = stack.repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.LoginAttempts)
	assert.Nil(t, stored.LoginAttemptAt)
	assert.NotNil(t, stored.LoggedInAt)
}

func TestLoginCoolDown(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	user := stack.seedUser(t, "cooldown@example.com", "correct-password", true, true)

	t.Run("over the attempt limit", func(t *testing.T) {
		recent := time.Now().Add(-5 * time.Minute)
		_, err := stack.db.Exec(
			"UPDATE users SET login_attempts = ?, login_attempt_at = ? WHERE id = ?",
			identity.MaxLoginAttempts+1, recent, user.ID,
		)
		require.NoError(t, err)

		_, err = stack.auth.Login(ctx, "cooldown@example.com", "correct-password")
		assert.ErrorIs(t, err, identity.ErrTooManyLoginAttempts)
	})

	t.Run("counter resets after the cooldown window", func(t *testing.T) {
		stale := time.Now().Add(-25 * time.Hour)
		_, err := stack.db.Exec(
			"UPDATE users SET login_attempts = ?, login_attempt_at = ? WHERE id = ?",
			identity.MaxLoginAttempts+1, stale, user.ID,
		)
		require.NoError(t, err)

		session, err := stack.auth.Login(ctx, "cooldown@example.com", "correct-password")
		require.NoError(t, err)
		assert.NotEmpty(t, session.RefreshToken)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	user := stack.seedUser(t, "changer@example.com", "old-password", true, true)

	t.Run("wrong current password", func(t *testing.T) {
		err := stack.auth.ChangePassword(ctx, user.ID.String(), "not-the-password", "new-password")
		assert.ErrorIs(t, err, identity.ErrIncorrectCurrentPassword)

		// credential unchanged
		_, err = stack.auth.Login(ctx, "changer@example.com", "old-password")
		assert.NoError(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		err := stack.auth.ChangePassword(ctx, "c3cee8f0-0000-0000-0000-000000000000", "old-password", "new-password")
		assert.Error(t, err)
	})

	t.Run("valid change swaps the credential", func(t *testing.T) {
		err := stack.auth.ChangePassword(ctx, user.ID.String(), "old-password", "new-password")
		require.NoError(t, err)

		_, err = stack.auth.Login(ctx, "changer@example.com", "old-password")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

		_, err = stack.auth.Login(ctx, "changer@example.com", "new-password")
		assert.NoError(t, err)

		assert.True(t, stack.sink.has(identity.ActivityEventPasswordChanged))
	})
}
