package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccessTokenService(expirationMinutes int) identity.AccessTokenService {
	return identity.NewAccessTokenService(
		[]byte("super-secret-signing-key"),
		expirationMinutes,
		"identity-test",
		jwt.ClaimStrings{"identity-clients"},
		nil,
	)
}

func TestAccessTokenMintAndValidate(t *testing.T) {
	svc := testAccessTokenService(15)

	user := &identity.User{
		ID:          uuid.New(),
		Email:       "claims@example.com",
		AccountType: identity.AccountTypeOrganization,
	}

	tokenString, err := svc.Mint(user)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := svc.Validate(tokenString)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.UID)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, identity.AccountTypeOrganization, claims.AccountType)
	assert.Equal(t, "identity-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "every token should carry a token ID")

	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.Expires(), time.Minute)
}

func TestAccessTokenValidateFailures(t *testing.T) {
	svc := testAccessTokenService(15)
	user := &identity.User{ID: uuid.New(), Email: "claims@example.com"}

	t.Run("expired token", func(t *testing.T) {
		stale := testAccessTokenService(-1)

		tokenString, err := stale.Mint(user)
		require.NoError(t, err)

		_, err = stale.Validate(tokenString)
		assert.ErrorIs(t, err, identity.ErrAccessTokenExpired)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := identity.NewAccessTokenService(
			[]byte("a-different-key"), 15, "identity-test", nil, nil,
		)

		tokenString, err := other.Mint(user)
		require.NoError(t, err)

		_, err = svc.Validate(tokenString)
		assert.Error(t, err)

		var rich *goerrors.Error
		require.True(t, goerrors.As(err, &rich))
		assert.Equal(t, "ACCESS_TOKEN_MALFORMED", rich.TextCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		assert.Error(t, err)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject: user.ID.String(),
		})
		tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Validate(tokenString)
		assert.Error(t, err)
	})
}

func TestSignClaimsRoundTrip(t *testing.T) {
	svc := testAccessTokenService(15)

	claims := &identity.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity-test",
			Subject:   uuid.NewString(),
			Audience:  jwt.ClaimStrings{"identity-clients"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		UID:         uuid.NewString(),
		Email:       "signed@example.com",
		AccountType: identity.AccountTypeIndividual,
	}

	tokenString, err := svc.SignClaims(claims)
	require.NoError(t, err)

	decoded, err := svc.Validate(tokenString)
	require.NoError(t, err)
	assert.Equal(t, claims.UID, decoded.UID)
	assert.Equal(t, claims.Email, decoded.Email)
}
