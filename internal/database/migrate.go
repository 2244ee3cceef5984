// Package database はユーザーストアとセッションストアへの接続、
// PostgreSQL上のusers/sessionsスキーマのマイグレーションを提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	// schemaSourceName はマイグレーションソースの名前。ログとエラーに現れる。
	schemaSourceName = "authgate-schema"
	// schemaMigrationsTable は適用済みバージョンを記録するテーブル。
	schemaMigrationsTable = "authgate_schema_migrations"
)

// usersとsessionsテーブルの定義。
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// ErrNotPostgres はSTORE_URLがPostgreSQL以外のときにマイグレーションを要求した場合に返る。
// MongoDBのインデックスはrepository.EnsureMongoIndexesで作成する。
var ErrNotPostgres = errors.New("schema migrations require a postgres store url")

func requirePostgres(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ErrNotPostgres
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q", ErrNotPostgres, u.Scheme)
	}
}

// NewMigrator はusers/sessionsスキーマ用のmigrateインスタンスを生成する。
// 呼び出し側はCloseでDB接続も閉じること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	if err := requirePostgres(databaseURL); err != nil {
		return nil, err
	}

	source, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", schemaSourceName, err)
	}

	db, err := Open(databaseURL)
	if err != nil {
		source.Close()
		return nil, err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: schemaMigrationsTable})
	if err != nil {
		source.Close()
		db.Close()
		return nil, fmt.Errorf("failed to prepare %s driver: %w", schemaSourceName, err)
	}

	m, err := migrate.NewWithInstance(schemaSourceName, source, "postgres", driver)
	if err != nil {
		source.Close()
		driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はusers/sessionsスキーマを最新バージョンにする。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply %s: %w", schemaSourceName, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read %s version: %w", schemaSourceName, err)
	}
	slog.Info("schema is up to date",
		slog.String("source", schemaSourceName),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}
