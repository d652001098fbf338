// Package model はドメインモデルを定義する。
package model

import "time"

// UserRecord はOAuthログインしたユーザーの永続化レコードを表す。
// キーはプロバイダーが発行した外部IDの文字列表現。
type UserRecord struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	Discriminator string    `json:"discriminator"`
	FirstLogin    time.Time `json:"first_login"`
	LastLogin     time.Time `json:"last_login"`
	LoginCount    int       `json:"login_count"`
}

// Identity はOAuthプロバイダーから取得した検証済みのユーザー情報を表す。
type Identity struct {
	ExternalID    string
	Username      string
	Email         string
	Avatar        string
	Discriminator string
}

// DefaultDiscriminator はプロバイダーがdiscriminatorを返さない場合の値。
const DefaultDiscriminator = "0"
