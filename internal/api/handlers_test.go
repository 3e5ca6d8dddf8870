package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tmasaiti/zimproperty/internal/app"
	"github.com/tmasaiti/zimproperty/internal/auth"
	"github.com/tmasaiti/zimproperty/internal/domain"
	"github.com/tmasaiti/zimproperty/internal/store"
	"github.com/tmasaiti/zimproperty/pkg/stripeclient"
)

type apiRepoStub struct {
	store.Repository

	users    map[int64]*domain.User
	sessions map[uuid.UUID]domain.Session

	purchaseErr error
	browsed     *domain.PropertyFilter
}

func (s *apiRepoStub) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *apiRepoStub) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *apiRepoStub) CreateSession(ctx context.Context, session domain.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *apiRepoStub) FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return &session, nil
}

func (s *apiRepoStub) DeleteSession(ctx context.Context, id uuid.UUID) error {
	delete(s.sessions, id)
	return nil
}

func (s *apiRepoStub) ListProperties(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, error) {
	s.browsed = &filter
	return nil, nil
}

func (s *apiRepoStub) PurchaseLead(ctx context.Context, params store.PurchaseLeadParams) (*domain.LeadPurchase, error) {
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	return &domain.LeadPurchase{ID: 1, AgentID: params.AgentID, PropertyID: params.PropertyID, Price: params.Price, Status: domain.LeadPending}, nil
}

type testServer struct {
	*httptest.Server
	repo    *apiRepoStub
	service *app.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hashed, err := auth.HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &apiRepoStub{
		users: map[int64]*domain.User{
			1: {ID: 1, Username: "admin", Password: hashed, Role: domain.RoleAdmin},
			2: {ID: 2, Username: "tendai", Password: hashed, Role: domain.RoleSeller},
			3: {ID: 3, Username: "faith", Password: hashed, Role: domain.RoleAgent},
		},
		sessions: map[uuid.UUID]domain.Session{},
	}
	service := app.NewService(repo, auth.NewSessionSigner("test-secret"), "")
	service.SetPaymentGateway(nil, "whsec_test")

	server := httptest.NewServer(NewRouter(NewHandler(service, false), nil, false))
	t.Cleanup(server.Close)
	return &testServer{Server: server, repo: repo, service: service}
}

func (s *testServer) tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := s.service.StartSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return token.Token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, errorResponse) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestRoleFilter(t *testing.T) {
	server := newTestServer(t)
	sellerToken := server.tokenFor(t, 2)
	agentToken := server.tokenFor(t, 3)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
		wantMsg    string
	}{
		{name: "anonymous user", method: http.MethodGet, path: "/api/user", wantStatus: http.StatusUnauthorized, wantMsg: "Not authenticated"},
		{name: "garbage token", method: http.MethodGet, path: "/api/user", token: "garbage", wantStatus: http.StatusUnauthorized, wantMsg: "Not authenticated"},
		{name: "seller browsing", method: http.MethodGet, path: "/api/properties", token: sellerToken, wantStatus: http.StatusForbidden, wantMsg: "Unauthorized"},
		{name: "agent on admin route", method: http.MethodGet, path: "/api/admin/stats", token: agentToken, wantStatus: http.StatusForbidden, wantMsg: "Unauthorized"},
		{name: "agent creating listing", method: http.MethodPost, path: "/api/properties", token: agentToken, wantStatus: http.StatusForbidden, wantMsg: "Unauthorized"},
		{name: "anonymous purchase", method: http.MethodPost, path: "/api/leads/purchase", wantStatus: http.StatusUnauthorized, wantMsg: "Not authenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := server.do(t, tt.method, tt.path, tt.token, "{}")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body.Message != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, body.Message)
			}
		})
	}
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/login", "application/json", strings.NewReader(`{"username":"tendai","password":"secret1"}`))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var session *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == auth.SessionCookieName {
			session = cookie
		}
	}
	if session == nil || !session.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie, got %+v", resp.Cookies())
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/user", nil)
	req.AddCookie(session)
	userResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("user request: %v", err)
	}
	defer userResp.Body.Close()
	var user domain.User
	if err := json.NewDecoder(userResp.Body).Decode(&user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if userResp.StatusCode != http.StatusOK || user.Username != "tendai" {
		t.Fatalf("expected tendai, got status=%d user=%+v", userResp.StatusCode, user)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server := newTestServer(t)
	resp, body := server.do(t, http.MethodPost, "/api/login", "", `{"username":"tendai","password":"nope"}`)
	if resp.StatusCode != http.StatusUnauthorized || body.Message != "Invalid username or password" {
		t.Fatalf("expected 401 invalid credentials, got %d %q", resp.StatusCode, body.Message)
	}
}

type countingLimiter struct {
	counts map[string]int
}

func (l *countingLimiter) ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	l.counts[scope+"|"+subject]++
	return l.counts[scope+"|"+subject], 60, nil
}

func TestLogin_ForwardedForDoesNotResetThrottle(t *testing.T) {
	server := newTestServer(t)
	server.service.SetLoginRateLimiter(&countingLimiter{counts: map[string]int{}}, 2)

	var last *http.Response
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/login", strings.NewReader(`{"username":"tendai","password":"nope"}`))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		last, err = http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		last.Body.Close()
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be throttled despite a new X-Forwarded-For, got %d", last.StatusCode)
	}
	if last.Header.Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", last.Header.Get("Retry-After"))
	}
}

func TestPurchaseLead_DomainErrors(t *testing.T) {
	tests := []struct {
		storeErr   error
		wantStatus int
		wantMsg    string
	}{
		{store.ErrInsufficientBalance, http.StatusBadRequest, "Insufficient balance"},
		{store.ErrLeadAlreadyPurchased, http.StatusBadRequest, "You have already purchased this lead"},
		{store.ErrPropertyNotFound, http.StatusNotFound, "Property not found"},
		{store.ErrAgentNotVerified, http.StatusForbidden, "Agent account is not verified"},
		{store.ErrPropertyUnavailable, http.StatusBadRequest, "Property is not available"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			server := newTestServer(t)
			server.repo.purchaseErr = tt.storeErr

			resp, body := server.do(t, http.MethodPost, "/api/leads/purchase", server.tokenFor(t, 3), `{"propertyId":10,"price":"30"}`)
			if resp.StatusCode != tt.wantStatus || body.Message != tt.wantMsg {
				t.Fatalf("expected %d %q, got %d %q", tt.wantStatus, tt.wantMsg, resp.StatusCode, body.Message)
			}
		})
	}
}

func TestPurchaseLead_Created(t *testing.T) {
	server := newTestServer(t)
	resp, _ := server.do(t, http.MethodPost, "/api/leads/purchase", server.tokenFor(t, 3), `{"propertyId":10,"price":30}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, body := server.do(t, http.MethodPost, "/api/leads/purchase", server.tokenFor(t, 3), `{"price":30}`)
	if resp.StatusCode != http.StatusBadRequest || body.Message != "Property ID and price are required" {
		t.Fatalf("expected 400 required fields, got %d %q", resp.StatusCode, body.Message)
	}
}

func TestBrowseProperties_Filters(t *testing.T) {
	server := newTestServer(t)
	token := server.tokenFor(t, 3)

	resp, _ := server.do(t, http.MethodGet, "/api/properties?type=all&location=all&minPrice=100&maxPrice=500", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	filter := server.repo.browsed
	if filter.Type != nil || filter.Location != nil {
		t.Fatalf("expected 'all' to be ignored, got %+v", filter)
	}
	if filter.MinPrice == nil || !filter.MinPrice.Equal(decimal.NewFromInt(100)) || filter.MaxPrice == nil || !filter.MaxPrice.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected price bounds %+v", filter)
	}

	resp, body := server.do(t, http.MethodGet, "/api/properties?minPrice=cheap", token, "")
	if resp.StatusCode != http.StatusBadRequest || body.Message != "Invalid minPrice" {
		t.Fatalf("expected 400 invalid minPrice, got %d %q", resp.StatusCode, body.Message)
	}
}

func TestWebhook(t *testing.T) {
	server := newTestServer(t)
	payload := `{"id":"evt_1","type":"charge.refunded","data":{"object":{}}}`

	resp, body := server.do(t, http.MethodPost, "/api/webhook", "", payload)
	if resp.StatusCode != http.StatusBadRequest || !strings.HasPrefix(body.Message, "Webhook Error: ") {
		t.Fatalf("expected 400 webhook error, got %d %q", resp.StatusCode, body.Message)
	}

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/webhook", strings.NewReader(payload))
	req.Header.Set(stripeclient.SignatureHeader, stripeclient.SignatureHeaderValue([]byte(payload), "whsec_test", time.Now()))
	signed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	defer signed.Body.Close()
	var ack map[string]bool
	if err := json.NewDecoder(signed.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if signed.StatusCode != http.StatusOK || !ack["received"] {
		t.Fatalf("expected 200 received, got %d %v", signed.StatusCode, ack)
	}
}

func TestPathIDValidation(t *testing.T) {
	server := newTestServer(t)
	resp, body := server.do(t, http.MethodGet, "/api/properties/abc", server.tokenFor(t, 1), "")
	if resp.StatusCode != http.StatusBadRequest || body.Message != "Invalid ID" {
		t.Fatalf("expected 400 invalid id, got %d %q", resp.StatusCode, body.Message)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantHeader string
	}{
		{name: "validation", err: &app.ValidationError{Message: "Validation error", Fields: []app.FieldError{{Field: "email", Message: "Invalid email address"}}}, wantStatus: http.StatusBadRequest, wantMsg: "Validation error"},
		{name: "rate limit", err: &app.RateLimitError{RetryAfterSeconds: 30}, wantStatus: http.StatusTooManyRequests, wantMsg: "Too many attempts. Please try again later.", wantHeader: "30"},
		{name: "wrapped store error", err: fmt.Errorf("load: %w", store.ErrLeadNotFound), wantStatus: http.StatusNotFound, wantMsg: "Lead not found"},
		{name: "not owner", err: app.ErrNotLeadOwner, wantStatus: http.StatusForbidden, wantMsg: "You can only update your own leads"},
		{name: "no subscription", err: store.ErrSubscriptionNotFound, wantStatus: http.StatusNotFound, wantMsg: "No active subscription found"},
		{name: "provider", err: &app.PaymentProviderError{Err: errors.New("Your card was declined.")}, wantStatus: http.StatusInternalServerError, wantMsg: "Your card was declined."},
		{name: "unknown", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantMsg: "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Message != tt.wantMsg {
				t.Fatalf("expected %q, got %q", tt.wantMsg, body.Message)
			}
			if tt.wantHeader != "" && rec.Header().Get("Retry-After") != tt.wantHeader {
				t.Fatalf("expected Retry-After %s, got %q", tt.wantHeader, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestParsePropertyFilter_RejectsUnknownEnums(t *testing.T) {
	for _, query := range []string{"type=castle", "status=sold"} {
		values, _ := url.ParseQuery(query)
		if _, problem := parsePropertyFilter(values); problem == "" {
			t.Fatalf("expected %q to be rejected", query)
		}
	}
}
