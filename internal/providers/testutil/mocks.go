package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

// MockCostService is a mock implementation of common.CostCalculator
type MockCostService struct {
	CalculateCostFunc func(platform, model string, inputTokens, outputTokens int) float64
}

func (m *MockCostService) CalculateCost(platform, model string, inputTokens, outputTokens int) float64 {
	if m.CalculateCostFunc != nil {
		return m.CalculateCostFunc(platform, model, inputTokens, outputTokens)
	}
	return 0.0015
}

func NewMockCostService() *MockCostService {
	return &MockCostService{}
}

// MockPlatformServer is a fake upstream that answers every request with a canned body.
// Status codes can be queued to simulate transient failures before success.
type MockPlatformServer struct {
	Server *httptest.Server

	mu        sync.Mutex
	body      any
	statuses  []int
	requests  int32
	lastPath  string
	lastBody  map[string]any
	lastAuth  string
	lastQuery string
}

func NewMockPlatformServer(body any) *MockPlatformServer {
	m := &MockPlatformServer{body: body}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockPlatformServer) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requests, 1)

	var in map[string]any
	_ = json.NewDecoder(r.Body).Decode(&in)

	m.mu.Lock()
	m.lastPath = r.URL.Path
	m.lastBody = in
	m.lastAuth = r.Header.Get("Authorization")
	if m.lastAuth == "" {
		m.lastAuth = r.Header.Get("X-Api-Key")
	}
	m.lastQuery = r.URL.RawQuery
	status := http.StatusOK
	if len(m.statuses) > 0 {
		status = m.statuses[0]
		m.statuses = m.statuses[1:]
	}
	body := m.body
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": http.StatusText(status), "type": "test"}})
		return
	}
	json.NewEncoder(w).Encode(body)
}

// QueueStatuses makes the next len(codes) requests fail with those status codes
func (m *MockPlatformServer) QueueStatuses(codes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, codes...)
}

func (m *MockPlatformServer) Requests() int {
	return int(atomic.LoadInt32(&m.requests))
}

func (m *MockPlatformServer) LastPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPath
}

func (m *MockPlatformServer) LastBody() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

func (m *MockPlatformServer) LastAuth() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *MockPlatformServer) URL() string {
	return m.Server.URL
}

func (m *MockPlatformServer) Close() {
	m.Server.Close()
}

// MockPlatformClient answers Query from a function; used with providers.WithConstructor
type MockPlatformClient struct {
	PlatformValue models.Platform
	ModelValue    string
	QueryFunc     func(ctx context.Context, prompt string) (*common.QueryResponse, error)

	calls   int32
	mu      sync.Mutex
	prompts []string
}

func (m *MockPlatformClient) Query(ctx context.Context, prompt string) (*common.QueryResponse, error) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, prompt)
	}
	return &common.QueryResponse{Text: SampleRecommendationText(), Model: m.ModelValue}, nil
}

func (m *MockPlatformClient) Platform() models.Platform {
	return m.PlatformValue
}

func (m *MockPlatformClient) Model() string {
	return m.ModelValue
}

func (m *MockPlatformClient) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

// Prompts returns every prompt received, in call order
func (m *MockPlatformClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
