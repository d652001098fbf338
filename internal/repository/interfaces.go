// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hitoshi/oauthrelay/internal/model"
)

// ErrCorruptStore はバックエンドのデータが解析できない状態を表す。
// 破損したデータを上書きしないよう、Upsertはこのエラーで中断する。
var ErrCorruptStore = errors.New("store data is corrupt")

// UserMutator は既存レコード（存在しない場合はnil）から新しいレコードを作る。
// UserRepository.Upsertの排他区間内で呼ばれる。
type UserMutator func(existing *model.UserRecord) (*model.UserRecord, error)

// UserRepository はユーザーレコードの永続化インターフェース。
type UserRepository interface {
	// List は全ユーザーを外部IDをキーとするマップで返す。
	// バックエンドが未作成の場合は空のマップを返す。
	List(ctx context.Context) (map[string]*model.UserRecord, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserRecord, error)

	// Upsert は読み込み・変更・書き込みを単一ライターの排他区間で行う。
	// 同時ログインによる更新の消失を防ぐ。
	Upsert(ctx context.Context, id string, mutate UserMutator) (*model.UserRecord, error)
}

// EventLogRepository はイベントログの永続化インターフェース。
type EventLogRepository interface {
	// Append はエントリを1行として不可分に追記する。
	Append(ctx context.Context, stream model.LogStream, entry any) error

	// Tail は末尾からlimit件を書き込み順で返す。解析できない行は読み飛ばす。
	Tail(ctx context.Context, stream model.LogStream, limit int) ([]json.RawMessage, error)
}
