package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// --- モック定義 ---

type mockProvider struct {
	authCodeURLFn func(state string) string
	exchangeFn    func(ctx context.Context, code string) (*ProviderProfile, error)

	mu            sync.Mutex
	exchangeCalls int
}

func (m *mockProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (*ProviderProfile, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &ProviderProfile{ProviderID: "google-123", DisplayName: "Test User", Email: "user@example.com"}, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

type mockUserRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.User, error)
	findByProviderIDFn func(ctx context.Context, providerID string) (*model.User, error)
	createFn           func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByProviderID(ctx context.Context, providerID string) (*model.User, error) {
	if m.findByProviderIDFn != nil {
		return m.findByProviderIDFn(ctx, providerID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, session *model.Session) error
	findByIDFn      func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn    func(ctx context.Context, id string) error
	deleteExpiredFn func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, now)
	}
	return 0, nil
}

// recordingMetrics は記録された値を保持するMetricsCollector。
type recordingMetrics struct {
	mu           sync.Mutex
	attempts     map[string]int
	transitions  []string
	usersCreated int
	logouts      map[string]int
	unauthorized int
	exchanges    int
	swept        int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{attempts: map[string]int{}, logouts: map[string]int{}}
}

func (r *recordingMetrics) RecordLoginAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[result]++
}

func (r *recordingMetrics) RecordLoginTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recordingMetrics) RecordUserCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usersCreated++
}

func (r *recordingMetrics) RecordLogout(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts[result]++
}

func (r *recordingMetrics) RecordUnauthorized() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unauthorized++
}

func (r *recordingMetrics) RecordProviderExchange(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges++
}

func (r *recordingMetrics) RecordSessionsSwept(count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept += count
}

func (r *recordingMetrics) created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersCreated
}
