package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
)

// SessionManager はセッションの発行・復元・破棄を行う。
// セッションに保存するのはユーザーIDのみで、復元のたびにユーザーストアを参照する。
type SessionManager struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	maxAge   time.Duration
	now      func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(users repository.UserRepository, sessions repository.SessionRepository, maxAge time.Duration) *SessionManager {
	return &SessionManager{
		users:    users,
		sessions: sessions,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Serialize はセッションに保存するユーザー参照を返す。
func (m *SessionManager) Serialize(user *model.User) string {
	return user.ID
}

// Deserialize はユーザー参照からユーザーを復元する。見つからない場合はnilを返す。
func (m *SessionManager) Deserialize(ctx context.Context, ref string) (*model.User, error) {
	if ref == "" {
		return nil, nil
	}
	user, err := m.users.FindByID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize user: %w", err)
	}
	return user, nil
}

// Establish はユーザーのセッションを発行し永続化する。
func (m *SessionManager) Establish(ctx context.Context, user *model.User) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now().UTC()
	session := &model.Session{
		ID:        token,
		UserID:    m.Serialize(user),
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Lookup はセッショントークンから現在のユーザーを返す。
// セッションが存在しない、期限切れ、またはユーザーが存在しない場合はnilを返す。
func (m *SessionManager) Lookup(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	session, err := m.sessions.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.IsExpired(m.now()) {
		return nil, nil
	}

	return m.Deserialize(ctx, session.UserID)
}

// Destroy はセッションを破棄する。
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if err := m.sessions.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
