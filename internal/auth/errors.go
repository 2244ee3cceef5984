package auth

import "errors"

// 認証フローのエラー分類。呼び出し側はerrors.Isで判定する。
var (
	// ErrProviderDenied はユーザーの同意拒否、invalid_grant、state不一致などIdP側での拒否を表す。
	ErrProviderDenied = errors.New("provider denied authorization")
	// ErrProviderExchange はIdPとの通信失敗またはタイムアウトを表す。
	ErrProviderExchange = errors.New("provider exchange failed")
	// ErrResolutionFailed はユーザーストアでの検索・作成の失敗を表す。
	ErrResolutionFailed = errors.New("identity resolution failed")
	// ErrSessionFailed はセッションの発行または破棄の失敗を表す。
	ErrSessionFailed = errors.New("session operation failed")
	// ErrUnauthorized は有効なセッションが存在しないことを表す。
	ErrUnauthorized = errors.New("unauthorized")
)
