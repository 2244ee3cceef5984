// Package security はIdPとの外向き通信に使うHTTPクライアントを提供する。
package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewProviderClient はIdPとの通信に使うSSRF防止機能付きHTTPクライアントを生成する。
// 許可するのはhttpsの443番ポートのみ。
// safeurlがnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// 以下への接続はDNS再バインディングを含めてブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
func NewProviderClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
