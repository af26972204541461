package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Session is the credential pair granted after authentication or activation:
// a signed stateless access token and an opaque stored refresh token.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionManager issues sessions and rotates refresh tokens.
type SessionManager struct {
	repo     RepositoryManager
	engine   *TokenEngine
	access   AccessTokenService
	activity ActivitySink
	logger   Logger
}

// NewSessionManager creates a SessionManager with sane defaults.
func NewSessionManager(repo RepositoryManager, engine *TokenEngine, access AccessTokenService) *SessionManager {
	return &SessionManager{
		repo:     repo,
		engine:   engine,
		access:   access,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (s *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the logger used by the manager.
func (s *SessionManager) WithLogger(logger Logger) *SessionManager {
	s.logger = normalizeLogger(logger)
	return s
}

// IssueSession mints an access token and stores a fresh refresh token for the
// account. Callers are login and the two activation flows.
func (s *SessionManager) IssueSession(ctx context.Context, user *User) (*Session, error) {
	if user == nil {
		return nil, goerrors.New("cannot issue session without a user", goerrors.CategoryInternal)
	}

	accessToken, err := s.access.Mint(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.engine.Issue(ctx, TokenKindRefresh, user.ID)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh rotates a session: the presented refresh token is consumed and a
// brand-new pair is issued. Consumption is atomic, so when two calls race on
// the same token exactly one rotates and the other fails. A failure on an
// already-rotated token is the replay signal; the caller must re-login.
func (s *SessionManager) Refresh(ctx context.Context, rawRefreshToken string) (*Session, error) {
	user, err := s.engine.Consume(ctx, TokenKindRefresh, rawRefreshToken)
	if err != nil {
		if goerrors.Is(err, ErrInvalidToken) {
			s.emitEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"operation": "refresh",
				"error":     ErrInvalidRefreshToken.Message,
			})
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	// deactivation after issuance cuts the session chain here
	if !user.Active {
		s.emitEvent(ctx, ActivityEventLoginFailure, actorFromUser(user), user.ID.String(), map[string]any{
			"operation": "refresh",
			"error":     ErrAccountInactive.Message,
		})
		return nil, ErrAccountInactive
	}

	session, err := s.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, ActivityEventSessionRefreshed, actorFromUser(user), user.ID.String(), nil)

	return session, nil
}

// Logout deletes a single refresh token. Best-effort: an unknown or expired
// token is not an error, the session is gone either way.
func (s *SessionManager) Logout(ctx context.Context, rawRefreshToken string) error {
	ownerID, existed, err := s.engine.Delete(ctx, TokenKindRefresh, rawRefreshToken)
	if err != nil {
		return err
	}

	if existed {
		actor := ActorRef{ID: ownerID.String(), Type: "user"}
		s.emitEvent(ctx, ActivityEventSessionRevoked, actor, ownerID.String(), nil)
	}

	return nil
}

// LogoutEverywhere revokes every refresh token the account holds, ending all
// of its sessions at once.
func (s *SessionManager) LogoutEverywhere(ctx context.Context, userID uuid.UUID) error {
	if err := s.engine.RevokeAllForUser(ctx, TokenKindRefresh, userID); err != nil {
		return err
	}

	s.emitEvent(ctx, ActivityEventSessionRevoked, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), map[string]any{
		"scope": "all",
	})

	return nil
}

func (s *SessionManager) emitEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   user.ID.String(),
		Type: "user",
	}
}
