// Package credstore はログイン中のユーザー名とトークンを端末に保存する。
// 次回起動時の再ログインに使用する。
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/snoozeclient/internal/database"
)

// Credential は保存済みの認証情報。
type Credential struct {
	Username string
	Token    string
	SavedAt  time.Time
}

// CredentialStore は認証情報の永続化インターフェース。
type CredentialStore interface {
	// Save は認証情報を保存する。以前の認証情報は置き換えられる。
	Save(ctx context.Context, cred Credential) error
	// Load は保存済みの認証情報を返す。ない場合はnilを返す。
	Load(ctx context.Context) (*Credential, error)
	// Clear は保存済みの認証情報を削除する。
	Clear(ctx context.Context) error
}

// SQLStore はSQLiteまたはPostgreSQLを使用した認証情報ストア。
// 端末ごとに1件のみ保持する。
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore はマイグレーション済みの接続からSQLStoreを生成する。
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Open はdsnのデータベースを開き、マイグレーションを適用してSQLStoreを返す。
// dsnがpostgres://で始まる場合はPostgreSQL、それ以外はSQLiteのファイルパスとして扱う。
func Open(dsn string) (*SQLStore, error) {
	db, dialect, err := database.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db, dialect), nil
}

// Close はデータベース接続を閉じる。
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save は認証情報を保存する。以前の認証情報は同一トランザクションで削除する。
func (s *SQLStore) Save(ctx context.Context, cred Credential) error {
	if cred.Username == "" || cred.Token == "" {
		return fmt.Errorf("username and token are required")
	}
	if cred.SavedAt.IsZero() {
		cred.SavedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO credentials (username, token, saved_at) VALUES (%s, %s, %s)`,
			s.placeholder(1), s.placeholder(2), s.placeholder(3)),
		cred.Username, cred.Token, cred.SavedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load は保存済みの認証情報を返す。ない場合はnilを返す。
func (s *SQLStore) Load(ctx context.Context) (*Credential, error) {
	var cred Credential
	var savedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT username, token, saved_at FROM credentials LIMIT 1`,
	).Scan(&cred.Username, &cred.Token, &savedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	cred.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse saved_at: %w", err)
	}
	return &cred, nil
}

// Clear は保存済みの認証情報を削除する。
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// placeholder はn番目のバインドパラメータの記法を返す。
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == database.DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// compile-time interface check
var _ CredentialStore = (*SQLStore)(nil)
