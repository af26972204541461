package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForgotPasswordUniformResponse(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	stack.seedUser(t, "active@example.com", "password123", true, true)
	stack.seedUser(t, "inactive@example.com", "password123", true, false)

	handler := identity.NewForgotPasswordHandler(stack.repo, stack.engine, stack.mailer).
		WithActivitySink(stack.sink)

	ask := func(t *testing.T, email string) string {
		t.Helper()
		var got string
		require.NoError(t, handler.Execute(ctx, identity.ForgotPasswordMessage{
			Email: email,
			OnResponse: func(r *identity.ForgotPasswordResponse) {
				got = r.Message
			},
		}))
		return got
	}

	t.Run("active account gets a token", func(t *testing.T) {
		msg := ask(t, "active@example.com")
		assert.Equal(t, identity.ForgotPasswordMessageText, msg)
		assert.Equal(t, 1, stack.mailer.count())

		sent := stack.mailer.last()
		assert.Equal(t, identity.MailKindPasswordReset, sent.Kind)
		assert.Equal(t, "active@example.com", sent.Recipient)

		_, err := stack.engine.Resolve(ctx, identity.TokenKindPasswordReset, sent.RawToken)
		assert.NoError(t, err)

		assert.True(t, stack.sink.has(identity.ActivityEventPasswordResetStart))
	})

	t.Run("unknown account gets the same answer and no mail", func(t *testing.T) {
		msg := ask(t, "nobody@example.com")
		assert.Equal(t, identity.ForgotPasswordMessageText, msg)
		assert.Equal(t, 1, stack.mailer.count())
	})

	t.Run("inactive account gets the same answer and no mail", func(t *testing.T) {
		msg := ask(t, "inactive@example.com")
		assert.Equal(t, identity.ForgotPasswordMessageText, msg)
		assert.Equal(t, 1, stack.mailer.count())
	})

	t.Run("malformed email is the only visible failure", func(t *testing.T) {
		err := handler.Execute(ctx, identity.ForgotPasswordMessage{Email: "not-an-email"})
		assert.Error(t, err)
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	user := stack.seedUser(t, "reset@example.com", "old-password1!", true, true)

	handler := identity.NewResetPasswordHandler(stack.repo, stack.engine).
		WithActivitySink(stack.sink)

	raw, err := stack.engine.Issue(ctx, identity.TokenKindPasswordReset, user.ID)
	require.NoError(t, err)

	var resp *identity.ResetPasswordResponse
	require.NoError(t, handler.Execute(ctx, identity.ResetPasswordMessage{
		Token:    raw,
		Password: "new-password1!",
		OnResponse: func(r *identity.ResetPasswordResponse) {
			resp = r
		},
	}))

	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	t.Run("credential is swapped", func(t *testing.T) {
		_, err := stack.auth.Login(ctx, "reset@example.com", "old-password1!")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

		_, err = stack.auth.Login(ctx, "reset@example.com", "new-password1!")
		assert.NoError(t, err)
	})

	t.Run("reset is audited", func(t *testing.T) {
		assert.True(t, stack.sink.has(identity.ActivityEventPasswordReset))
	})

	t.Run("token cannot be replayed", func(t *testing.T) {
		err := handler.Execute(ctx, identity.ResetPasswordMessage{
			Token:    raw,
			Password: "third-password1!",
		})
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}

func TestResetPasswordRevokesSiblingTokens(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	user := stack.seedUser(t, "siblings@example.com", "old-password1!", true, true)

	handler := identity.NewResetPasswordHandler(stack.repo, stack.engine)

	// two forgot-password requests, two outstanding reset tokens
	first, err := stack.engine.Issue(ctx, identity.TokenKindPasswordReset, user.ID)
	require.NoError(t, err)
	second, err := stack.engine.Issue(ctx, identity.TokenKindPasswordReset, user.ID)
	require.NoError(t, err)

	require.NoError(t, handler.Execute(ctx, identity.ResetPasswordMessage{
		Token:    first,
		Password: "new-password1!",
	}))

	// a successful reset invalidates every other outstanding reset token
	err = handler.Execute(ctx, identity.ResetPasswordMessage{
		Token:    second,
		Password: "stale-password1!",
	})
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	_, err = stack.auth.Login(ctx, "siblings@example.com", "new-password1!")
	assert.NoError(t, err)
}

func TestResetPasswordRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	handler := identity.NewResetPasswordHandler(stack.repo, stack.engine)

	t.Run("never issued token", func(t *testing.T) {
		err := handler.Execute(ctx, identity.ResetPasswordMessage{
			Token:    "deadbeef",
			Password: "new-password1!",
		})
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("missing token", func(t *testing.T) {
		err := handler.Execute(ctx, identity.ResetPasswordMessage{Password: "new-password1!"})
		assert.Error(t, err)
	})

	t.Run("short password", func(t *testing.T) {
		err := handler.Execute(ctx, identity.ResetPasswordMessage{Token: "sometoken", Password: "short"})
		assert.Error(t, err)
	})
}

func TestPasswordMessageTypes(t *testing.T) {
	assert.Equal(t, "identity.forgot_password", identity.ForgotPasswordMessage{}.Type())
	assert.Equal(t, "identity.reset_password", identity.ResetPasswordMessage{}.Type())
}
