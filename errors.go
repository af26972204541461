package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeEmailTaken flags a duplicate account email
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodePhoneTaken flags a duplicate phone number
	TextCodePhoneTaken = "PHONE_TAKEN"
	// TextCodeOfficialEmailTaken flags a duplicate organization official email
	TextCodeOfficialEmailTaken = "OFFICIAL_EMAIL_TAKEN"
	// TextCodeInvalidCredentials flags unknown email or wrong password
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeAccountNotVerified flags login against an unverified account
	TextCodeAccountNotVerified = "ACCOUNT_NOT_VERIFIED"
	// TextCodeAccountInactive flags login against a deactivated account
	TextCodeAccountInactive = "ACCOUNT_INACTIVE"
	// TextCodeInvalidToken flags a missing, expired, or replayed secret token
	TextCodeInvalidToken = "INVALID_OR_EXPIRED_TOKEN"
	// TextCodeInvalidRefreshToken flags a failed refresh rotation
	TextCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	// TextCodeIncorrectPassword flags a change-password current-password mismatch
	TextCodeIncorrectPassword = "INCORRECT_CURRENT_PASSWORD"
	// TextCodeTooManyAttempts flags the login cooldown gate
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrEmailTaken is returned when a registration email already has an account.
// Registration conflicts deliberately confirm existence; see ForgotPassword
// for the uniform counterpart.
var ErrEmailTaken = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrPhoneTaken is returned when a registration phone already has an account.
var ErrPhoneTaken = goerrors.New("an account with this phone number already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodePhoneTaken).
	WithCode(goerrors.CodeConflict)

// ErrOfficialEmailTaken is returned when an organization official email is
// already registered on another organization profile.
var ErrOfficialEmailTaken = goerrors.New("an organization with this official email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeOfficialEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials covers unknown email and password mismatch with one
// message so login failures do not reveal which half was wrong.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotVerified is returned when the email gate fails at login.
var ErrAccountNotVerified = goerrors.New("account email has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive is returned when the activation gate fails at login.
var ErrAccountInactive = goerrors.New("account has been deactivated", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is the single generic failure for every secret-token miss:
// never issued, expired, and already consumed are indistinguishable on purpose.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRefreshToken is returned when refresh rotation fails; the caller
// must re-login. A replayed (already rotated) token lands here too.
var ErrInvalidRefreshToken = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrIncorrectCurrentPassword is returned by the authenticated change-password
// path when the supplied current password does not match.
var ErrIncorrectCurrentPassword = goerrors.New("current password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when an account is inside its login
// cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch signal. The
// authenticator converts it to ErrInvalidCredentials before it leaves this
// package.
var ErrMismatchedHashAndPassword = goerrors.New("hashed password does not match", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = goerrors.New("value must not be an empty string", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// WrapDatabase classifies an unhandled persistence failure. The original error
// is retained for logging; it is never echoed to callers.
func WrapDatabase(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}

// TranslateUniqueViolation converts storage-level unique constraint failures
// into the matching Conflict error. The constraint is the authority: two
// concurrent registrations both pass the advisory pre-check, only one survives
// the insert, and the loser must surface the same Conflict as the pre-check.
func TranslateUniqueViolation(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value violates unique constraint") {
		return err
	}

	switch {
	case strings.Contains(msg, "official_email"):
		return ErrOfficialEmailTaken
	case strings.Contains(msg, "phone_number"):
		return ErrPhoneTaken
	case strings.Contains(msg, "email"):
		return ErrEmailTaken
	}

	return goerrors.Wrap(err, goerrors.CategoryConflict, "record violates a unique constraint")
}

// IsConflict reports whether err carries the Conflict category.
func IsConflict(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryConflict
	}
	return false
}

// IsAuthFailure reports whether err carries the Auth category.
func IsAuthFailure(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryAuth
	}
	return false
}
