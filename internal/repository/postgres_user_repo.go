package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// STORE_DRIVER=postgres のときにファイルストアの代わりに使う。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `SELECT external_id, username, email, avatar, discriminator, first_login, last_login, login_count FROM users`

// List は全ユーザーを返す。
func (r *PostgresUserRepo) List(ctx context.Context) (map[string]*model.UserRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectUserColumns+` ORDER BY first_login`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := map[string]*model.UserRecord{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[u.ExternalID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.UserRecord, error) {
	row := r.db.QueryRowContext(ctx, selectUserColumns+` WHERE external_id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Upsert はSELECT ... FOR UPDATEで行ロックを取り、同一トランザクション内で書き込む。
// 新規ユーザーの同時作成はON CONFLICTで後勝ちにする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, id string, mutate UserMutator) (*model.UserRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanUser(tx.QueryRowContext(ctx, selectUserColumns+` WHERE external_id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		existing = nil
	} else if err != nil {
		return nil, err
	}

	updated, err := mutate(existing)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (external_id, username, email, avatar, discriminator, first_login, last_login, login_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (external_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   email = EXCLUDED.email,
		   avatar = EXCLUDED.avatar,
		   discriminator = EXCLUDED.discriminator,
		   first_login = EXCLUDED.first_login,
		   last_login = EXCLUDED.last_login,
		   login_count = EXCLUDED.login_count`,
		id, updated.Username, updated.Email, updated.Avatar, updated.Discriminator,
		updated.FirstLogin, updated.LastLogin, updated.LoginCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.UserRecord, error) {
	u := &model.UserRecord{}
	err := row.Scan(&u.ExternalID, &u.Username, &u.Email, &u.Avatar, &u.Discriminator,
		&u.FirstLogin, &u.LastLogin, &u.LoginCount)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
