package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"oven_controller/internal/models"
	"oven_controller/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockOven struct {
	mu        sync.Mutex
	state     models.OvenState
	statusErr error
	setErr    error

	statusCalls int
	setCalls    int
	lastDev     string
	lastValue   string
}

func (m *mockOven) Status(ctx context.Context) (models.OvenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	return m.state, m.statusErr
}

func (m *mockOven) statusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

func (m *mockOven) Set(ctx context.Context, dev, value string) (models.OvenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.lastDev = dev
	m.lastValue = value
	if m.setErr != nil {
		return models.OvenState{}, m.setErr
	}
	return m.state, nil
}

// mockFeed hands out one subscription whose channel the test drives.
type mockFeed struct {
	mu           sync.Mutex
	last         models.OvenState
	hasLast      bool
	ch           chan models.OvenState
	subscribed   chan struct{}
	unsubscribed chan struct{}
}

func newMockFeed() *mockFeed {
	return &mockFeed{
		ch:           make(chan models.OvenState, 1),
		subscribed:   make(chan struct{}, 1),
		unsubscribed: make(chan struct{}, 1),
	}
}

func (m *mockFeed) Last() (models.OvenState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

func (m *mockFeed) Subscribe() (<-chan models.OvenState, func()) {
	m.subscribed <- struct{}{}
	return m.ch, func() { m.unsubscribed <- struct{}{} }
}

type mockTrend struct {
	samples []models.TrendSample
}

func (m *mockTrend) Samples() []models.TrendSample { return m.samples }

type mockEventLog struct {
	resp     []models.OvenEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.OvenEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	return newTestRouterWith(s, Options{})
}

func newTestRouterWith(s *service.Service, opts Options) *gin.Engine {
	h := NewHandler(s, nil, opts)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
