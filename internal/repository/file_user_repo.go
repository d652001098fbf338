package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// FileUserRepo は1つのJSONオブジェクトファイルにユーザーを保存するリポジトリ。
// ファイルは外部IDの文字列をキーとする。
type FileUserRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileUserRepo はFileUserRepoを生成する。
// 親ディレクトリが存在しない場合は作成する。
func NewFileUserRepo(path string) (*FileUserRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileUserRepo{path: path}, nil
}

// List は全ユーザーを返す。ファイルが存在しない場合は空のマップを返す。
func (r *FileUserRepo) List(ctx context.Context) (map[string]*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *FileUserRepo) FindByID(ctx context.Context, id string) (*model.UserRecord, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return users[id], nil
}

// Upsert はファイル全体を読み込み、mutateの結果で該当キーを置き換えて書き戻す。
func (r *FileUserRepo) Upsert(ctx context.Context, id string, mutate UserMutator) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return nil, err
	}

	updated, err := mutate(users[id])
	if err != nil {
		return nil, err
	}
	users[id] = updated

	if err := r.save(users); err != nil {
		return nil, err
	}

	return updated, nil
}

// load はロック保持中に呼ぶこと。
func (r *FileUserRepo) load() (map[string]*model.UserRecord, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*model.UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	users := map[string]*model.UserRecord{}
	if len(data) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	return users, nil
}

// save は一時ファイルに書き出してからrenameし、途中状態のファイルが読まれないようにする。
func (r *FileUserRepo) save(users map[string]*model.UserRecord) error {
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close users file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace users file: %w", err)
	}

	return nil
}

// compile-time interface check
var _ UserRepository = (*FileUserRepo)(nil)
