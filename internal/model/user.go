// Package model はドメインモデルを定義する。
package model

import "time"

// User は外部IdPのidentityに紐付いたローカルユーザーを表す。
// プロフィール項目は初回ログイン時にのみ設定され、以後は更新しない。
type User struct {
	ID          string
	ProviderID  string
	DisplayName string
	Email       string
	AvatarURL   string
	CreatedAt   time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはCookieで受け渡す不透明なトークンそのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
