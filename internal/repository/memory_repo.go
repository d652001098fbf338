package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// MemoryUserRepo はプロセス内マップにユーザーを保持するリポジトリ。
// テストとローカル検証で使う。
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]model.UserRecord
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.UserRecord)}
}

// List は全ユーザーのコピーを返す。
func (r *MemoryUserRepo) List(ctx context.Context) (map[string]*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*model.UserRecord, len(r.users))
	for id, u := range r.users {
		u := u
		out[id] = &u
	}
	return out, nil
}

// FindByID は指定IDのユーザーのコピーを返す。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Upsert は排他区間内でmutateを適用して保存する。
func (r *MemoryUserRepo) Upsert(ctx context.Context, id string, mutate UserMutator) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *model.UserRecord
	if u, ok := r.users[id]; ok {
		existing = &u
	}

	updated, err := mutate(existing)
	if err != nil {
		return nil, err
	}
	r.users[id] = *updated

	out := *updated
	return &out, nil
}

// MemoryEventLogRepo はストリームごとのスライスにエントリを保持するリポジトリ。
type MemoryEventLogRepo struct {
	mu      sync.Mutex
	entries map[model.LogStream][]json.RawMessage
}

// NewMemoryEventLogRepo はMemoryEventLogRepoを生成する。
func NewMemoryEventLogRepo() *MemoryEventLogRepo {
	return &MemoryEventLogRepo{entries: make(map[model.LogStream][]json.RawMessage)}
}

// Append はエントリをJSON化して追加する。
func (r *MemoryEventLogRepo) Append(ctx context.Context, stream model.LogStream, entry any) error {
	if _, err := model.ParseLogStream(string(stream)); err != nil {
		return err
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[stream] = append(r.entries[stream], line)
	return nil
}

// Tail は末尾からlimit件を書き込み順で返す。
func (r *MemoryEventLogRepo) Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error) {
	if _, err := model.ParseLogStream(string(stream)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.entries[stream]
	if limit <= 0 {
		return []json.RawMessage{}, nil
	}
	if limit > len(all) {
		limit = len(all)
	}

	out := make([]json.RawMessage, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// compile-time interface check
var (
	_ UserRepository     = (*MemoryUserRepo)(nil)
	_ EventLogRepository = (*MemoryEventLogRepo)(nil)
)
