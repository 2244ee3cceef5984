package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hitoshi/authgate/internal/config"
	"github.com/hitoshi/authgate/internal/database"
	"github.com/hitoshi/authgate/internal/handler"
	"github.com/hitoshi/authgate/internal/repository"
)

// stores はSTORE_URLとREDIS_URLから構成したリポジトリと接続をまとめる。
type stores struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	checks   map[string]handler.HealthCheck
	closers  []func(ctx context.Context) error
}

// openStores はユーザーストアとセッションストアに接続する。
// REDIS_URLが設定されている場合、セッションはRedisに保存する。
func openStores(ctx context.Context, cfg *config.Config) (st *stores, err error) {
	st = &stores{checks: map[string]handler.HealthCheck{}}
	defer func() {
		if err != nil {
			st.Close(context.Background())
			st = nil
		}
	}()

	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.OpenAndPing(ctx, cfg.StoreURL)
		if err != nil {
			return st, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		st.closers = append(st.closers, func(context.Context) error { return db.Close() })
		st.checks["postgres"] = db.PingContext
		st.users = repository.NewPostgresUserRepo(db)
		st.sessions = repository.NewPostgresSessionRepo(db)

	case config.StoreMongo:
		client, err := database.OpenMongo(ctx, cfg.StoreURL)
		if err != nil {
			return st, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		st.closers = append(st.closers, client.Disconnect)
		st.checks["mongodb"] = func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}

		db := client.Database(cfg.StoreDatabase)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			return st, err
		}
		st.users = repository.NewMongoUserRepo(db)
		st.sessions = repository.NewMongoSessionRepo(db)

	case config.StoreMemory:
		slog.Warn("using in-memory store; users and sessions are lost on restart")
		st.users = repository.NewMemoryUserRepo()
		st.sessions = repository.NewMemorySessionRepo()

	default:
		return st, fmt.Errorf("unsupported store backend: %q", cfg.Store)
	}

	if cfg.RedisURL != "" {
		rc, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return st, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st.closers = append(st.closers, func(context.Context) error { return rc.Close() })
		st.checks["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
		st.sessions = repository.NewRedisSessionRepo(rc)
	}

	slog.Info("store connections established",
		slog.String("store", string(cfg.Store)),
		slog.Bool("redis_sessions", cfg.RedisURL != ""),
	)
	return st, nil
}

// Close は開いた接続をすべて閉じる。
func (s *stores) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Error("failed to close store connections", slog.String("error", err.Error()))
		return err
	}
	return nil
}
