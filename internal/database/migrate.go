// Package database はデータベース接続とマイグレーション管理を提供する。
// 認証情報ストアのバックエンドとしてSQLite（既定）とPostgreSQLに対応する。
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator は既存の接続に対するmigrateインスタンスを生成する。
// migrate.Closeはdbも閉じるため、呼び出し元はCloseを呼ばずにdbのライフサイクルを管理すること。
func NewMigrator(db *sql.DB, dialect Dialect) (*migrate.Migrate, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	return newMigrator(db, dialect, src)
}

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return src, nil
}

func newMigrator(db *sql.DB, dialect Dialect, src source.Driver) (*migrate.Migrate, error) {
	var driver database.Driver
	var err error
	switch dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
// migrate.Closeはデータベースドライバー経由でdbまで閉じるため呼ばない。
// 代わりにソースドライバーだけをここで閉じ、dbは呼び出し元が引き続き使用できる。
func RunMigrations(db *sql.DB, dialect Dialect) error {
	src, err := newSource()
	if err != nil {
		return err
	}
	return runMigrations(db, dialect, src)
}

func runMigrations(db *sql.DB, dialect Dialect, src source.Driver) (err error) {
	defer func() {
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close migration source: %w", closeErr)
		}
	}()

	m, err := newMigrator(db, dialect, src)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
