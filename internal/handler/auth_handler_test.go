package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/config"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginURLFn       func(state string) string
	handleCallbackFn func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error)
	logoutFn         func(ctx context.Context, token string) error
}

func (m *mockAuthService) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, req)
	}
	return nil, auth.ErrProviderDenied
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

// mockCookieCodec は "signed." を前置するだけの可逆なCookieCodec。
type mockCookieCodec struct {
	signErr error
}

func (m *mockCookieCodec) Sign(session *model.Session) (string, error) {
	if m.signErr != nil {
		return "", m.signErr
	}
	return "signed." + session.ID, nil
}

func (m *mockCookieCodec) Verify(value string) (string, error) {
	token, ok := strings.CutPrefix(value, "signed.")
	if !ok || token == "" {
		return "", auth.ErrUnauthorized
	}
	return token, nil
}

func testHandlerConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		Cookie: config.CookiePolicy{
			Name:     config.SessionCookieName,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
			MaxAge:   24 * time.Hour,
		},
		SuccessURL: "https://app.example.com/home",
		FailureURL: "https://app.example.com/login?error=auth",
		LogoutURL:  "https://app.example.com/login",
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Login ---

func TestAuthHandler_Login_SetsStateCookieAndRedirects(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		loginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "https://accounts.google.com/") {
		t.Errorf("Location = %q, want google oauth URL", loc)
	}

	c := findCookie(resp, oauthStateCookie)
	if c == nil {
		t.Fatal("expected oauth_state cookie")
	}
	if c.Value != gotState {
		t.Errorf("state cookie = %q, want %q", c.Value, gotState)
	}
	if len(c.Value) != 32 {
		t.Errorf("state length = %d, want 32 hex chars", len(c.Value))
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected state cookie attributes: %+v", c)
	}
	if c.MaxAge != 600 {
		t.Errorf("state cookie MaxAge = %d, want 600", c.MaxAge)
	}
}

func TestAuthHandler_Login_StateIsRandom(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockCookieCodec{}, testHandlerConfig())

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
		c := findCookie(w.Result(), oauthStateCookie)
		if c == nil {
			t.Fatal("expected oauth_state cookie")
		}
		if seen[c.Value] {
			t.Fatalf("state %q generated twice", c.Value)
		}
		seen[c.Value] = true
	}
}

// --- Callback ---

func TestAuthHandler_Callback_Success_SetsCookieAndRedirects(t *testing.T) {
	var gotReq auth.CallbackRequest
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
			gotReq = req
			return &model.Session{
				ID:        "session-abc",
				UserID:    "user-123",
				ExpiresAt: time.Now().Add(24 * time.Hour),
			}, nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=test-code&state=test-state", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "test-state"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "https://app.example.com/home" {
		t.Errorf("Location = %q, want success URL", loc)
	}

	if gotReq.Code != "test-code" || gotReq.State != "test-state" || gotReq.ExpectedState != "test-state" {
		t.Errorf("callback request = %+v", gotReq)
	}

	c := findCookie(resp, config.SessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie")
	}
	if c.Value != "signed.session-abc" {
		t.Errorf("session cookie = %q, want signed value", c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteNoneMode {
		t.Errorf("unexpected session cookie attributes: %+v", c)
	}

	state := findCookie(resp, oauthStateCookie)
	if state == nil || state.MaxAge >= 0 {
		t.Errorf("state cookie should be cleared, got %+v", state)
	}
}

func TestAuthHandler_Callback_Failures_RedirectToFailureURL(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"provider denied", auth.ErrProviderDenied},
		{"provider exchange", auth.ErrProviderExchange},
		{"resolution failed", auth.ErrResolutionFailed},
		{"session failed", auth.ErrSessionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

			req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
			req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
			w := httptest.NewRecorder()

			h.Callback(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
			}
			if loc := resp.Header.Get("Location"); loc != "https://app.example.com/login?error=auth" {
				t.Errorf("Location = %q, want failure URL", loc)
			}
			if c := findCookie(resp, config.SessionCookieName); c != nil {
				t.Errorf("session cookie should not be set on failure, got %+v", c)
			}
		})
	}
}

func TestAuthHandler_Callback_PassesProviderErrorAndMissingState(t *testing.T) {
	var gotReq auth.CallbackRequest
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
			gotReq = req
			return nil, auth.ErrProviderDenied
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&state=s", nil)
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if gotReq.ProviderError != "access_denied" {
		t.Errorf("ProviderError = %q, want access_denied", gotReq.ProviderError)
	}
	if gotReq.ExpectedState != "" {
		t.Errorf("ExpectedState = %q, want empty without cookie", gotReq.ExpectedState)
	}
	if loc := w.Result().Header.Get("Location"); loc != "https://app.example.com/login?error=auth" {
		t.Errorf("Location = %q, want failure URL", loc)
	}
}

func TestAuthHandler_Callback_SignFailure_DiscardsSession(t *testing.T) {
	var discarded string
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
			return &model.Session{ID: "orphan", UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		logoutFn: func(ctx context.Context, token string) error {
			discarded = token
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{signErr: errors.New("boom")}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if loc := w.Result().Header.Get("Location"); loc != "https://app.example.com/login?error=auth" {
		t.Errorf("Location = %q, want failure URL", loc)
	}
	if discarded != "orphan" {
		t.Errorf("discarded = %q, want orphan", discarded)
	}
	if c := findCookie(w.Result(), config.SessionCookieName); c != nil {
		t.Errorf("session cookie should not be set, got %+v", c)
	}
}

func TestAuthHandler_Callback_DiscardsPreviousSession(t *testing.T) {
	var discarded []string
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, req auth.CallbackRequest) (*model.Session, error) {
			return &model.Session{ID: "new-session", UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		logoutFn: func(ctx context.Context, token string) error {
			discarded = append(discarded, token)
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
	req.AddCookie(&http.Cookie{Name: config.SessionCookieName, Value: "signed.old-session"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if len(discarded) != 1 || discarded[0] != "old-session" {
		t.Errorf("discarded = %v, want [old-session]", discarded)
	}
	if c := findCookie(w.Result(), config.SessionCookieName); c == nil || c.Value != "signed.new-session" {
		t.Errorf("session cookie = %+v, want new session", c)
	}
}

// --- Profile ---

func TestAuthHandler_Profile_ReturnsExactFields(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockCookieCodec{}, testHandlerConfig())

	user := &model.User{
		ID:          "user-123",
		ProviderID:  "google-sub-1",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		AvatarURL:   "https://lh3.googleusercontent.com/a/alice",
		CreatedAt:   time.Now(),
	}
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), user))
	w := httptest.NewRecorder()

	h.Profile(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	want := map[string]string{
		"id":          "user-123",
		"providerId":  "google-sub-1",
		"displayName": "Alice",
		"email":       "alice@example.com",
		"avatarUrl":   "https://lh3.googleusercontent.com/a/alice",
	}
	if len(body) != len(want) {
		t.Errorf("body has %d fields, want %d: %v", len(body), len(want), body)
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %q", k, body[k], v)
		}
	}
}

func TestAuthHandler_Profile_NoUser_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, &mockCookieCodec{}, testHandlerConfig())

	w := httptest.NewRecorder()
	h.Profile(w, httptest.NewRequest(http.MethodGet, "/profile", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- Logout ---

func TestAuthHandler_Logout_DestroysSessionAndRedirects(t *testing.T) {
	var destroyed string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			destroyed = token
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: config.SessionCookieName, Value: "signed.session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "https://app.example.com/login" {
		t.Errorf("Location = %q, want logout URL", loc)
	}
	if destroyed != "session-abc" {
		t.Errorf("destroyed = %q, want session-abc", destroyed)
	}
	c := findCookie(resp, config.SessionCookieName)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("session cookie should be expired, got %+v", c)
	}
}

func TestAuthHandler_Logout_NoCookie_StillRedirects(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			t.Fatal("store should not be called without a session")
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "https://app.example.com/login" {
		t.Errorf("Location = %q, want logout URL", loc)
	}
}

func TestAuthHandler_Logout_InvalidCookie_SkipsStore(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			t.Fatal("store should not be called for a tampered cookie")
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: config.SessionCookieName, Value: "forged"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusFound)
	}
}

func TestAuthHandler_Logout_StoreFailure_Returns500WithoutRedirect(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			return auth.ErrSessionFailed
		},
	}
	h := NewAuthHandler(svc, &mockCookieCodec{}, testHandlerConfig())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: config.SessionCookieName, Value: "signed.session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		t.Errorf("Location = %q, want no redirect", loc)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeLogoutFailed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeLogoutFailed)
	}
	if c := findCookie(resp, config.SessionCookieName); c != nil {
		t.Errorf("session cookie should be kept for retry, got %+v", c)
	}
}
