package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
)

// Resolver はIdPのプロフィールをローカルユーザーに対応付ける。
//
// 未登録のProviderIDであればユーザーを作成し、登録済みであれば既存ユーザーをそのまま返す
// （プロフィールの再同期は行わない）。同一プロセス内の同時解決はsingleflightでまとめ、
// プロセスをまたぐ競合はストアの一意制約違反を検知して既存ユーザーを再取得する。
//
// まとめられた解決処理は特定の呼び出し元のキャンセルを引き継がず、timeoutでのみ打ち切る。
// 各呼び出し元は自身のctxが終了した時点で待機をやめる。
type Resolver struct {
	users   repository.UserRepository
	metrics metrics.MetricsCollector
	timeout time.Duration
	group   singleflight.Group
	now     func() time.Time
	newID   func() string
}

// NewResolver はResolverを生成する。timeoutは共有される解決処理1回あたりの上限。
func NewResolver(users repository.UserRepository, collector metrics.MetricsCollector, timeout time.Duration) *Resolver {
	return &Resolver{
		users:   users,
		metrics: collector,
		timeout: timeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Resolve はプロフィールに対応するユーザーを返す。存在しなければ作成する。
func (r *Resolver) Resolve(ctx context.Context, profile *ProviderProfile) (*model.User, error) {
	if profile == nil || profile.ProviderID == "" {
		return nil, errors.New("provider profile has no identifier")
	}

	ch := r.group.DoChan(profile.ProviderID, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, r.timeout)
			defer cancel()
		}
		return r.findOrCreate(shared, profile)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.User), nil
	}
}

func (r *Resolver) findOrCreate(ctx context.Context, profile *ProviderProfile) (*model.User, error) {
	existing, err := r.users.FindByProviderID(ctx, profile.ProviderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := &model.User{
		ID:          r.newID(),
		ProviderID:  profile.ProviderID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		CreatedAt:   r.now().UTC(),
	}

	err = r.users.Create(ctx, user)
	if errors.Is(err, model.ErrDuplicateProviderID) {
		// 別インスタンスが先に作成した
		existing, err := r.users.FindByProviderID(ctx, profile.ProviderID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("user for provider id conflicted but was not found")
		}
		slog.Info("user creation conflicted, using existing user",
			slog.String("user_id", existing.ID),
		)
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	slog.Info("new user created", slog.String("user_id", user.ID))
	r.metrics.RecordUserCreated()
	return user, nil
}
