package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// ErrAccessTokenExpired is surfaced when a presented access token is stale.
var ErrAccessTokenExpired = errors.New("access token is expired", errors.CategoryAuth).
	WithTextCode("ACCESS_TOKEN_EXPIRED").
	WithCode(errors.CodeUnauthorized)

// ErrAccessTokenMalformed is surfaced when a presented access token cannot be
// parsed or fails signature verification.
var ErrAccessTokenMalformed = errors.New("access token is malformed", errors.CategoryAuth).
	WithTextCode("ACCESS_TOKEN_MALFORMED").
	WithCode(errors.CodeUnauthorized)

// AccessTokenService mints and validates the signed, stateless half of a
// session.
type AccessTokenService interface {
	Mint(user *User) (string, error)
	SignClaims(claims *AccessClaims) (string, error)
	Validate(tokenString string) (*AccessClaims, error)
}

// AccessTokenServiceImpl implements AccessTokenService with HMAC signing.
type AccessTokenServiceImpl struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewAccessTokenService creates a new AccessTokenService instance. Expiration
// is in minutes; access tokens are meant to be short-lived.
func NewAccessTokenService(signingKey []byte, expirationMinutes int, issuer string, audience jwt.ClaimStrings, logger Logger) AccessTokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &AccessTokenServiceImpl{
		signingKey: signingKey,
		expiration: time.Duration(expirationMinutes) * time.Minute,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
	}
}

// Mint creates a signed access token for an account.
func (ts *AccessTokenServiceImpl) Mint(user *User) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := time.Now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
		},
		UID:         user.ID.String(),
		Email:       user.Email,
		AccountType: user.AccountType,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary access claims using the configured signing key.
func (ts *AccessTokenServiceImpl) SignClaims(claims *AccessClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Token verification past this point is the transport layer's concern.
func (ts *AccessTokenServiceImpl) Validate(tokenString string) (*AccessClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("AccessTokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, errors.Wrap(err, ErrAccessTokenMalformed.Category, ErrAccessTokenMalformed.Message).
			WithTextCode(ErrAccessTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("AccessTokenService validate could not decode or validate claims")
	return nil, ErrAccessTokenMalformed
}
