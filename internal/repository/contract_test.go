package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/model"
)

// newTestUser はテスト用ユーザーを生成する。
// ストアごとの時刻精度の違いを吸収するためミリ秒に丸める。
func newTestUser(providerID string) *model.User {
	return &model.User{
		ID:          uuid.NewString(),
		ProviderID:  providerID,
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
		AvatarURL:   "https://example.com/ada.png",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// testUserRepositoryContract はUserRepository実装に共通する振る舞いを検証する。
func testUserRepositoryContract(t *testing.T, repo UserRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("見つからない場合はnilを返す", func(t *testing.T) {
		u, err := repo.FindByProviderID(ctx, "missing-"+uuid.NewString())
		if err != nil {
			t.Fatalf("FindByProviderID() error = %v", err)
		}
		if u != nil {
			t.Errorf("expected nil, got %+v", u)
		}

		u, err = repo.FindByID(ctx, uuid.NewString())
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if u != nil {
			t.Errorf("expected nil, got %+v", u)
		}
	})

	t.Run("作成したユーザーをIDとProviderIDで取得できる", func(t *testing.T) {
		want := newTestUser("google-" + uuid.NewString())
		if err := repo.Create(ctx, want); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		byProvider, err := repo.FindByProviderID(ctx, want.ProviderID)
		if err != nil {
			t.Fatalf("FindByProviderID() error = %v", err)
		}
		assertSameUser(t, byProvider, want)

		byID, err := repo.FindByID(ctx, want.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		assertSameUser(t, byID, want)
	})

	t.Run("同一ProviderIDの作成はErrDuplicateProviderIDを返す", func(t *testing.T) {
		providerID := "google-" + uuid.NewString()
		first := newTestUser(providerID)
		if err := repo.Create(ctx, first); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		second := newTestUser(providerID)
		second.DisplayName = "Someone Else"
		err := repo.Create(ctx, second)
		if !errors.Is(err, model.ErrDuplicateProviderID) {
			t.Fatalf("Create() error = %v, want ErrDuplicateProviderID", err)
		}

		got, err := repo.FindByProviderID(ctx, providerID)
		if err != nil {
			t.Fatalf("FindByProviderID() error = %v", err)
		}
		assertSameUser(t, got, first)
	})
}

// testSessionRepositoryContract はSessionRepository実装に共通する振る舞いを検証する。
// userIDはセッションが参照する既存ユーザーのID。
func testSessionRepositoryContract(t *testing.T, repo SessionRepository, userID string) {
	t.Helper()
	ctx := context.Background()

	t.Run("作成したセッションを取得できる", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		s := &model.Session{ID: uuid.NewString(), UserID: userID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("expected session, got nil")
		}
		if got.UserID != userID {
			t.Errorf("UserID = %q, want %q", got.UserID, userID)
		}
		if !got.ExpiresAt.Equal(s.ExpiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, s.ExpiresAt)
		}
	})

	t.Run("削除したセッションは取得できない", func(t *testing.T) {
		now := time.Now().UTC()
		s := &model.Session{ID: uuid.NewString(), UserID: userID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.DeleteByID(ctx, s.ID); err != nil {
			t.Fatalf("DeleteByID() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("expected nil after delete, got %+v", got)
		}
	})

	t.Run("存在しないセッションの削除はエラーにならない", func(t *testing.T) {
		if err := repo.DeleteByID(ctx, uuid.NewString()); err != nil {
			t.Errorf("DeleteByID() error = %v", err)
		}
	})
}

func assertSameUser(t *testing.T, got, want *model.User) {
	t.Helper()
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.ID != want.ID || got.ProviderID != want.ProviderID {
		t.Errorf("identity mismatch: got (%s, %s), want (%s, %s)", got.ID, got.ProviderID, want.ID, want.ProviderID)
	}
	if got.DisplayName != want.DisplayName || got.Email != want.Email || got.AvatarURL != want.AvatarURL {
		t.Errorf("profile mismatch: got %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}
