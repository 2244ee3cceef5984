package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authgate/internal/model"
)

const cookieIssuer = "authgate"

// CookieSigner はセッショントークンをSESSION_SECRETで署名したCookie値に変換する。
// Cookie値はHS256のJWTで、jtiにセッショントークン、expにセッションの有効期限を持つ。
type CookieSigner struct {
	secret []byte
	now    func() time.Time
}

// NewCookieSigner はCookieSignerを生成する。
func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret), now: time.Now}
}

// Sign はセッションのCookie値を生成する。
func (s *CookieSigner) Sign(session *model.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

// Verify はCookie値を検証し、セッショントークンを返す。
// 改ざん、別の鍵での署名、期限切れの場合は ErrUnauthorized をラップして返す。
func (s *CookieSigner) Verify(value string) (string, error) {
	if value == "" {
		return "", ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, errors.New("session cookie has no token"))
	}
	return claims.ID, nil
}
