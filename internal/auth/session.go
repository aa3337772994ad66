package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionType separates the login channels sharing the store.
type SessionType string

const (
	SessionWeb      SessionType = "web"
	SessionWhatsApp SessionType = "whatsapp"
)

// DefaultSessionTTL applies to both channels.
const DefaultSessionTTL = 24 * time.Hour

// KeyValueStore is the subset of kvstore.Store the auth layer needs.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Session is what the store holds for a logged-in principal: the user claims with
// bookkeeping fields merged in.
type Session struct {
	UserClaims
	SessionType SessionType `json:"sessionType"`
	SessionUser string      `json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresIn   int64       `json:"expiresIn"`
}

// SessionService manages sessions keyed by (sessionType, userID). Expiry is enforced by
// the store TTL; a miss is the normal "not logged in" answer.
type SessionService struct {
	store  KeyValueStore
	logger *slog.Logger
	now    func() time.Time
}

func NewSessionService(store KeyValueStore, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{store: store, logger: logger, now: time.Now}
}

func sessionKey(sessionType SessionType, userID string) string {
	return fmt.Sprintf("auth_session:%s:%s", sessionType, userID)
}

// SaveSession writes (or overwrites) the session with a fresh TTL.
func (s *SessionService) SaveSession(ctx context.Context, userID string, user UserClaims, sessionType SessionType, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	record := Session{
		UserClaims:  user,
		SessionType: sessionType,
		SessionUser: userID,
		CreatedAt:   s.now().UTC(),
		ExpiresIn:   int64(ttl / time.Second),
	}

	if err := s.store.Set(ctx, sessionKey(sessionType, userID), record, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.logger.Debug("session_saved", "session_type", sessionType, "ttl_seconds", record.ExpiresIn)
	return nil
}

// GetSession returns nil, nil when there is no live session.
func (s *SessionService) GetSession(ctx context.Context, userID string, sessionType SessionType) (*Session, error) {
	var record Session
	found, err := s.store.GetJSON(ctx, sessionKey(sessionType, userID), &record)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &record, nil
}

func (s *SessionService) IsAuthenticated(ctx context.Context, userID string, sessionType SessionType) (bool, error) {
	ok, err := s.store.Exists(ctx, sessionKey(sessionType, userID))
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return ok, nil
}

// DeleteSession is idempotent: deleting an absent session returns false.
func (s *SessionService) DeleteSession(ctx context.Context, userID string, sessionType SessionType) (bool, error) {
	removed, err := s.store.Delete(ctx, sessionKey(sessionType, userID))
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return removed, nil
}

// ExtendSession re-saves a live session with a full new TTL (absolute reset, not
// remaining + ttl). Returns false when there is nothing to extend. The read and the
// write are separate store calls; a concurrent logout may win either way.
func (s *SessionService) ExtendSession(ctx context.Context, userID string, sessionType SessionType, ttl time.Duration) (bool, error) {
	current, err := s.GetSession(ctx, userID, sessionType)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	if err := s.SaveSession(ctx, userID, current.UserClaims, sessionType, ttl); err != nil {
		return false, err
	}
	return true, nil
}
