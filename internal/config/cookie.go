package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "session_id"

// CookiePolicy はセッションCookieの属性を保持する。
// SecureとSameSiteはDeriveCookiePolicyでのみ決定し、個別に設定しない。
type CookiePolicy struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// DeriveCookiePolicy はデプロイモードとCORS許可オリジンからCookie属性を導出する。
//
//   - development: Secure=false, SameSite=Lax
//   - production:  Secure=true。全オリジンがコールバックURLと同一サイトならLax、
//     1つでもクロスサイトのオリジンがあればNone
//
// sameSiteとCORSの許可リストが別々に変更されてログインリダイレクトが壊れることを防ぐ。
func DeriveCookiePolicy(mode DeploymentMode, callbackURL string, origins []string) (CookiePolicy, error) {
	policy := CookiePolicy{
		Name:     SessionCookieName,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}

	if mode != ModeProduction {
		return policy, nil
	}
	policy.Secure = true

	backend, err := url.Parse(callbackURL)
	if err != nil || backend.Host == "" {
		return CookiePolicy{}, fmt.Errorf("invalid callback URL for cookie policy: %q", callbackURL)
	}

	for _, origin := range origins {
		o, err := url.Parse(origin)
		if err != nil || o.Host == "" {
			return CookiePolicy{}, fmt.Errorf("invalid allowed origin: %q", origin)
		}
		if !SameSite(backend, o) {
			policy.SameSite = http.SameSiteNoneMode
			break
		}
	}

	return policy, nil
}

// SameSite は2つのURLが同一サイト（スキームと登録可能ドメインが一致）かどうかを返す。
// 登録可能ドメインが求められないホスト（localhost、IPアドレス）はホスト名の完全一致で判定する。
func SameSite(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	return registrableDomain(a.Hostname()) == registrableDomain(b.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

// NewCookie はポリシーに従ったセッションCookieを生成する。
func (p CookiePolicy) NewCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   int(p.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// ExpiredCookie はセッションCookieを削除するためのCookieを生成する。
func (p CookiePolicy) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "lax"
	case http.SameSiteStrictMode:
		return "strict"
	case http.SameSiteNoneMode:
		return "none"
	default:
		return "default"
	}
}
