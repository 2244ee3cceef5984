package auth

import "context"

// ProviderProfile はIdPから取得したユーザープロフィール。
type ProviderProfile struct {
	ProviderID  string // IdP内で一意かつ不変の識別子（Googleのsub）
	DisplayName string
	Email       string
	AvatarURL   string
}

// IdentityProvider は外部IdPとの認可コードフローを抽象化する。
type IdentityProvider interface {
	// AuthCodeURL はstateを含む認可エンドポイントのURLを返す。
	AuthCodeURL(state string) string
	// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
	// IdPが拒否した場合は ErrProviderDenied、通信失敗時は ErrProviderExchange をラップして返す。
	Exchange(ctx context.Context, code string) (*ProviderProfile, error)
}
