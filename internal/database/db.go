package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Dialect は接続先データベースの種類。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf はdsnから接続先の種類を判定する。
// postgres:// または postgresql:// で始まる場合はPostgreSQL、それ以外はSQLiteのファイルパスとして扱う。
func DialectOf(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open はdsnに応じてPostgreSQLまたはSQLiteの接続を開く。
// SQLiteの場合は親ディレクトリを作成する。sql.Openは接続を試行しないため、
// 実際の接続確認にはdb.Ping()を使用すること。
func Open(dsn string) (*sql.DB, Dialect, error) {
	dialect := DialectOf(dsn)

	switch dialect {
	case DialectPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		return db, dialect, nil

	default:
		if dsn == "" {
			return nil, "", fmt.Errorf("empty SQLite path")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		// SQLiteは単一ファイルへの書き込みを直列化する
		db.SetMaxOpenConns(1)
		return db, dialect, nil
	}
}
