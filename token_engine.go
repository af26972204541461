package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenKind namespaces the single-purpose secret tokens.
type TokenKind string

const (
	// TokenKindEmailVerification activates individual registrations
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset authorizes a self-service password reset
	TokenKindPasswordReset TokenKind = "password_reset"
	// TokenKindRefresh is the stored half of a session
	TokenKindRefresh TokenKind = "refresh"
	// TokenKindPasswordSetup claims an organization invite
	TokenKindPasswordSetup TokenKind = "password_setup"
)

// TokenSecretBytes is the entropy of every raw secret (32 bytes = 64 hex chars).
const TokenSecretBytes = 32

func defaultTokenTTLs() map[TokenKind]time.Duration {
	return map[TokenKind]time.Duration{
		TokenKindEmailVerification: 24 * time.Hour,
		TokenKindPasswordReset:     20 * time.Minute,
		TokenKindRefresh:           30 * 24 * time.Hour,
		TokenKindPasswordSetup:     48 * time.Hour,
	}
}

// SecretToken is the stored half of a single-use token. Only the sha256 of the
// raw secret is persisted; the raw value travels out-of-band and is never
// written anywhere.
type SecretToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Kind          TokenKind  `bun:"kind,notnull" json:"kind,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// GenerateTokenSecret creates a random secret and its storable hash.
// The raw value goes to the user, the hash to the database.
func GenerateTokenSecret() (raw, hash string, err error) {
	buf := make([]byte, TokenSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token secret")
	}

	raw = hex.EncodeToString(buf)
	return raw, HashTokenSecret(raw), nil
}

// HashTokenSecret computes the hex sha256 digest of a raw secret. Lookups key
// on this digest, so it has to be deterministic (no salted KDF here).
func HashTokenSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// TokenEngine issues, resolves, and single-use-consumes the four token kinds.
type TokenEngine struct {
	db     *bun.DB
	ttls   map[TokenKind]time.Duration
	now    func() time.Time
	logger Logger
}

// TokenEngineOption customizes engine construction.
type TokenEngineOption func(*TokenEngine)

// WithTokenTTL overrides the lifetime of one token kind.
func WithTokenTTL(kind TokenKind, ttl time.Duration) TokenEngineOption {
	return func(e *TokenEngine) {
		if ttl > 0 {
			e.ttls[kind] = ttl
		}
	}
}

// WithTokenEngineClock injects a custom clock (useful for tests).
func WithTokenEngineClock(clock func() time.Time) TokenEngineOption {
	return func(e *TokenEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithTokenEngineLogger overrides the engine logger.
func WithTokenEngineLogger(logger Logger) TokenEngineOption {
	return func(e *TokenEngine) {
		e.logger = normalizeLogger(logger)
	}
}

// NewTokenEngine creates a TokenEngine backed by the given database.
func NewTokenEngine(db *bun.DB, opts ...TokenEngineOption) *TokenEngine {
	engine := &TokenEngine{
		db:     db,
		ttls:   defaultTokenTTLs(),
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}

	return engine
}

// TTL returns the configured lifetime for a token kind.
func (e *TokenEngine) TTL(kind TokenKind) time.Duration {
	return e.ttls[kind]
}

// Issue generates a secret for userID and stores its hash. The returned raw
// secret is the caller's to deliver; it cannot be recovered afterwards.
func (e *TokenEngine) Issue(ctx context.Context, kind TokenKind, userID uuid.UUID) (string, error) {
	return e.IssueTx(ctx, e.db, kind, userID)
}

// IssueTx is Issue inside an existing transaction.
func (e *TokenEngine) IssueTx(ctx context.Context, tx bun.IDB, kind TokenKind, userID uuid.UUID) (string, error) {
	raw, hash, err := GenerateTokenSecret()
	if err != nil {
		return "", err
	}

	record := &SecretToken{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		TokenHash: hash,
		ExpiresAt: e.now().Add(e.ttls[kind]).UTC(),
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return "", WrapDatabase(err, "failed to store secret token")
	}

	return raw, nil
}

// Resolve maps a raw secret to its owning account without consuming it.
// Missing, expired, and consumed secrets all collapse into ErrInvalidToken so
// callers cannot turn the failure mode into token-guessing feedback.
func (e *TokenEngine) Resolve(ctx context.Context, kind TokenKind, raw string) (*User, error) {
	return e.ResolveTx(ctx, e.db, kind, raw)
}

// ResolveTx is Resolve inside an existing transaction.
func (e *TokenEngine) ResolveTx(ctx context.Context, tx bun.IDB, kind TokenKind, raw string) (*User, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	record := &SecretToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", HashTokenSecret(raw)).
		Where("?TableAlias.kind = ?", string(kind)).
		Where("?TableAlias.expires_at > ?", e.now().UTC()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, WrapDatabase(err, "failed to resolve secret token")
	}

	return e.ownerOf(ctx, tx, record.UserID)
}

// Consume resolves and deletes a secret in one atomic statement: a conditional
// delete with RETURNING. Two concurrent consumers of the same secret race on
// the row; exactly one delete returns it, the other observes ErrInvalidToken.
func (e *TokenEngine) Consume(ctx context.Context, kind TokenKind, raw string) (*User, error) {
	return e.ConsumeTx(ctx, e.db, kind, raw)
}

// ConsumeTx is Consume inside an existing transaction.
func (e *TokenEngine) ConsumeTx(ctx context.Context, tx bun.IDB, kind TokenKind, raw string) (*User, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var userID uuid.UUID
	err := tx.NewRaw(`DELETE FROM auth_tokens
WHERE token_hash = ?
  AND kind = ?
  AND expires_at > ?
RETURNING user_id`,
		HashTokenSecret(raw), string(kind), e.now().UTC(),
	).Scan(ctx, &userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, WrapDatabase(err, "failed to consume secret token")
	}

	return e.ownerOf(ctx, tx, userID)
}

// Delete removes a single token by raw secret regardless of expiry. Used by
// logout, where a stale token is not an error. Returns the owning account and
// whether a row existed, so the caller can attribute the revocation.
func (e *TokenEngine) Delete(ctx context.Context, kind TokenKind, raw string) (uuid.UUID, bool, error) {
	return e.DeleteTx(ctx, e.db, kind, raw)
}

// DeleteTx is Delete inside an existing transaction.
func (e *TokenEngine) DeleteTx(ctx context.Context, tx bun.IDB, kind TokenKind, raw string) (uuid.UUID, bool, error) {
	if raw == "" {
		return uuid.Nil, false, nil
	}

	var userID uuid.UUID
	err := tx.NewRaw(`DELETE FROM auth_tokens
WHERE token_hash = ?
  AND kind = ?
RETURNING user_id`,
		HashTokenSecret(raw), string(kind),
	).Scan(ctx, &userID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, WrapDatabase(err, "failed to delete secret token")
	}

	return userID, true, nil
}

// RevokeAllForUser deletes every token of one kind owned by an account.
func (e *TokenEngine) RevokeAllForUser(ctx context.Context, kind TokenKind, userID uuid.UUID) error {
	return e.RevokeAllForUserTx(ctx, e.db, kind, userID)
}

// RevokeAllForUserTx is RevokeAllForUser inside an existing transaction.
func (e *TokenEngine) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, kind TokenKind, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*SecretToken)(nil)).
		Where("user_id = ?", userID).
		Where("kind = ?", string(kind)).
		Exec(ctx)
	if err != nil {
		return WrapDatabase(err, "failed to revoke tokens")
	}
	return nil
}

// DeleteExpired sweeps rows past their expiry. Expiry is enforced lazily at
// resolution time, so this exists for storage hygiene only.
func (e *TokenEngine) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := e.db.NewDelete().
		Model((*SecretToken)(nil)).
		Where("expires_at <= ?", e.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, WrapDatabase(err, "failed to delete expired tokens")
	}

	return res.RowsAffected()
}

func (e *TokenEngine) ownerOf(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*User, error) {
	user := &User{}
	err := tx.NewSelect().
		Model(user).
		Where("?TableAlias.id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// token outlived its account; treat as invalid, not as a leak
			return nil, ErrInvalidToken
		}
		return nil, WrapDatabase(err, "failed to load token owner")
	}

	return user, nil
}
