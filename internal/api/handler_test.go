package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hollowmere/loreforge/internal/orchestrator"
	"github.com/hollowmere/loreforge/internal/provider"
	"go.uber.org/zap"
)

// stubResponder answers with a canned response or error and records the
// last request it saw.
type stubResponder struct {
	resp      *provider.Response
	err       error
	lastReq   *provider.Request
	preferred string
}

func (s *stubResponder) GenerateCharacterResponse(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubResponder) SetPreferredService(id string) bool {
	if id != provider.ServiceOllama && id != provider.ServiceFeatherless {
		return false
	}
	s.preferred = id
	return true
}

func (s *stubResponder) PreferredService() string { return s.preferred }

type stubCompleter struct {
	lastSystem string
	lastUser   string
	err        error
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string, opts provider.GenerationOptions) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return "proxied reply", nil
}

// proxy is the interface type so a nil argument stays a nil interface
// instead of a typed-nil pointer.
func newTestHandler(orch *stubResponder, proxy Completer) http.Handler {
	h := NewHandler(orch, proxy, nil, nil, zap.NewNop())
	return h.Router()
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	router := newTestHandler(&stubResponder{}, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["service"] != "loreforge" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestCharacterChat(t *testing.T) {
	orch := &stubResponder{resp: &provider.Response{Response: "Hmph.", Source: provider.ServiceOllama}}
	router := newTestHandler(orch, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/chat", `{
		"character": {"id": "c1", "name": "Elwin"},
		"messages": [
			{"sender": "user", "text": "Hello"},
			{"sender": "character", "speaker": "Elwin", "text": "What?"},
			{"sender": "user", "text": "Any work for me?"}
		]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["response"] != "Hmph." || body["source"] != provider.ServiceOllama {
		t.Errorf("unexpected body: %v", body)
	}

	if orch.lastReq.UserMessage != "Any work for me?" {
		t.Errorf("current turn = %q", orch.lastReq.UserMessage)
	}
	if len(orch.lastReq.History) != 2 {
		t.Errorf("history length = %d, want 2", len(orch.lastReq.History))
	}
}

func TestCharacterChatValidation(t *testing.T) {
	router := newTestHandler(&stubResponder{}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing character", `{"messages": [{"sender": "user", "text": "hi"}]}`},
		{"no messages", `{"character": {"id": "c1"}, "messages": []}`},
		{"last message not from user", `{"character": {"id": "c1"}, "messages": [{"sender": "character", "text": "hi"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/chat", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCharacterChatTruncatesLongMessage(t *testing.T) {
	orch := &stubResponder{resp: &provider.Response{Response: "ok"}}
	router := newTestHandler(orch, nil)

	long := strings.Repeat("a", maxUserMessageChars+100)
	rec := doJSON(t, router, http.MethodPost, "/api/chat",
		`{"character": {"id": "c1"}, "messages": [{"sender": "user", "text": "`+long+`"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(orch.lastReq.UserMessage) != maxUserMessageChars {
		t.Errorf("message length = %d, want %d", len(orch.lastReq.UserMessage), maxUserMessageChars)
	}
}

func TestAIFailureMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limited", orchestrator.ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", &provider.TimeoutError{Provider: "ollama"}, http.StatusGatewayTimeout},
		{"oversized upstream", &provider.UpstreamError{Provider: "featherless", Status: 431, Body: "too large"}, http.StatusRequestHeaderFieldsTooLarge},
		{"missing credential", &provider.ConfigError{Provider: "featherless", Reason: "missing API key"}, http.StatusInternalServerError},
		{"generic upstream", &provider.UpstreamError{Provider: "ollama", Status: 500, Body: "panic: nil deref"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestHandler(&stubResponder{err: tc.err}, nil)
			rec := doJSON(t, router, http.MethodPost, "/api/chat",
				`{"character": {"id": "c1"}, "messages": [{"sender": "user", "text": "hi"}]}`)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decodeBody(t, rec)
			if strings.Contains(body["error"], "panic") || strings.Contains(body["error"], "nil deref") {
				t.Errorf("raw provider output leaked to the client: %q", body["error"])
			}
		})
	}
}

func TestProxyChat(t *testing.T) {
	proxy := &stubCompleter{}
	router := newTestHandler(&stubResponder{}, proxy)

	longSystem := strings.Repeat("s", maxSystemPromptChars+500)
	rec := doJSON(t, router, http.MethodPost, "/chat",
		`{"systemPrompt": "`+longSystem+`", "userMessage": "hi there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["response"] != "proxied reply" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if len(proxy.lastSystem) != maxSystemPromptChars {
		t.Errorf("system prompt length = %d, want %d", len(proxy.lastSystem), maxSystemPromptChars)
	}
	if proxy.lastUser != "hi there" {
		t.Errorf("user message = %q", proxy.lastUser)
	}
}

func TestProxyChatValidation(t *testing.T) {
	router := newTestHandler(&stubResponder{}, &stubCompleter{})
	rec := doJSON(t, router, http.MethodPost, "/chat", `{"systemPrompt": "only half"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProxyChatUnconfigured(t *testing.T) {
	router := newTestHandler(&stubResponder{}, nil)
	rec := doJSON(t, router, http.MethodPost, "/chat", `{"systemPrompt": "s", "userMessage": "u"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "Chat is not configured." {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// 200 three-byte runes; the 500-byte cap lands mid-rune.
	long := strings.Repeat("世", 200)
	out := truncate(long, maxUserMessageChars)
	if len(out) > maxUserMessageChars {
		t.Errorf("length = %d, want at most %d", len(out), maxUserMessageChars)
	}
	if !utf8.ValidString(out) {
		t.Error("truncation produced invalid UTF-8")
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestServiceEndpoints(t *testing.T) {
	orch := &stubResponder{preferred: provider.ServiceOllama}
	router := newTestHandler(orch, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/service", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["preferred"] != provider.ServiceOllama {
		t.Errorf("get service: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/service", `{"service": "featherless"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("set service: status %d", rec.Code)
	}
	if orch.preferred != provider.ServiceFeatherless {
		t.Errorf("preference not applied: %q", orch.preferred)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/service", `{"service": "gpt-9000"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown service: status %d, want 400", rec.Code)
	}
}

func TestDocumentsUnconfigured(t *testing.T) {
	router := newTestHandler(&stubResponder{}, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/characters", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGenerateMapUnconfigured(t *testing.T) {
	router := newTestHandler(&stubResponder{}, nil)
	rec := doJSON(t, router, http.MethodPost, "/generate-map", `{"environments": [{"name": "Keep"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
