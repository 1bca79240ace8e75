package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"taskhive/server/internal/assistant"
	"taskhive/server/internal/auth"
	"taskhive/server/internal/category"
	"taskhive/server/internal/db"
	"taskhive/server/internal/mailer"
	"taskhive/server/internal/provider"
	"taskhive/server/internal/task"
)

// scriptedClient pops one scripted response (or error) per Chat call.
type scriptedClient struct {
	responses []provider.ChatResponse
	errs      []error
	calls     int
}

func (f *scriptedClient) Chat(_ context.Context, _ provider.ChatRequest, onTextChunk func(string)) (provider.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return provider.ChatResponse{}, f.errs[i]
	}
	var resp provider.ChatResponse
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if onTextChunk != nil && resp.Content != "" {
		onTextChunk(resp.Content)
	}
	return resp, nil
}

type testEnv struct {
	server *httptest.Server
	gdb    *gorm.DB
	llm    *scriptedClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:httpapi_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenIssuer("test-secret", 15*time.Minute)
	authService := auth.NewService(gdb, tokens, mailer.Nop{}, 24*time.Hour)
	tasks := task.NewService(gdb)
	llm := &scriptedClient{}
	srv := NewServer(Deps{
		Auth:       authService,
		Tokens:     tokens,
		Tasks:      tasks,
		Categories: category.NewService(gdb),
		Assistant:  assistant.NewOrchestrator(gdb, tasks, llm, log, ""),
		Log:        log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, gdb: gdb, llm: llm}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name":     "Test User",
		"email":    email,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in %v", body)
	}
	return token
}

func (e *testEnv) registerAdmin(t *testing.T, email string) string {
	t.Helper()
	e.register(t, email)
	if err := e.gdb.Model(&db.User{}).Where("email = ?", email).
		Update("role", auth.RoleAdmin).Error; err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	// Re-login so nothing stale is cached anywhere.
	resp := e.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email": email, "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin login status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return body["access_token"].(string)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "x", "email": "not-an-email", "password": "short",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	fields := errObj["fields"].(map[string]any)
	if fields["email"] == nil || fields["password"] == nil {
		t.Fatalf("fields = %v", fields)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dup@example.com")
	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "Other", "email": "dup@example.com", "password": "password123",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequiredUniform401(t *testing.T) {
	env := newTestEnv(t)
	wrongSecret, err := auth.NewTokenIssuer("other-secret", time.Minute).Issue("u1", auth.RoleUser)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	unknownSubject, err := auth.NewTokenIssuer("test-secret", time.Minute).Issue("ghost", auth.RoleUser)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	for name, token := range map[string]string{
		"no token":        "",
		"garbage token":   "not-a-jwt",
		"wrongly signed":  wrongSecret,
		"unknown subject": unknownSubject,
	} {
		resp := env.do(t, http.MethodGet, "/tasks", token, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, resp.StatusCode)
		}
		body := decodeBody(t, resp)
		errObj := body["error"].(map[string]any)
		if errObj["message"] != "authentication required" {
			t.Fatalf("%s: 401 body must not leak detail: %v", name, body)
		}
	}
}

func TestBannedUserGets403(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "banned@example.com")
	if err := env.gdb.Model(&db.User{}).Where("email = ?", "banned@example.com").
		Update("banned", true).Error; err != nil {
		t.Fatalf("ban user: %v", err)
	}
	resp := env.do(t, http.MethodGet, "/tasks", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTaskCRUDFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "crud@example.com")

	resp := env.do(t, http.MethodPost, "/tasks", token, map[string]any{
		"title": "Buy milk", "priority": "high", "due_date": "2026-09-01",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	id := created["id"].(string)
	if created["priority"] != "high" || created["status"] != "todo" {
		t.Fatalf("created = %v", created)
	}

	resp = env.do(t, http.MethodGet, "/tasks/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPut, "/tasks/"+id, token, map[string]any{
		"status": "in_progress",
	})
	updated := decodeBody(t, resp)
	if updated["status"] != "in_progress" || updated["previous_status"] != "todo" {
		t.Fatalf("updated = %v", updated)
	}

	resp = env.do(t, http.MethodPost, "/tasks/"+id+"/archive", token, nil)
	archived := decodeBody(t, resp)
	if archived["status"] != "archived" {
		t.Fatalf("archived = %v", archived)
	}

	// Archived tasks leave the default listing and join /tasks/archived.
	resp = env.do(t, http.MethodGet, "/tasks", token, nil)
	var listing []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	resp.Body.Close()
	if len(listing) != 0 {
		t.Fatalf("default listing contains archived task: %v", listing)
	}
	resp = env.do(t, http.MethodGet, "/tasks/archived", token, nil)
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode archived listing: %v", err)
	}
	resp.Body.Close()
	if len(listing) != 1 {
		t.Fatalf("archived listing = %v", listing)
	}

	resp = env.do(t, http.MethodPost, "/tasks/"+id+"/unarchive", token, nil)
	restored := decodeBody(t, resp)
	if restored["status"] != "in_progress" {
		t.Fatalf("unarchive restored %v", restored["status"])
	}

	resp = env.do(t, http.MethodDelete, "/tasks/"+id, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/tasks/"+id, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTaskOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner@example.com")
	other := env.register(t, "other@example.com")

	resp := env.do(t, http.MethodPost, "/tasks", owner, map[string]any{"title": "secret"})
	created := decodeBody(t, resp)
	id := created["id"].(string)

	resp = env.do(t, http.MethodGet, "/tasks/"+id, other, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user get status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.do(t, http.MethodDelete, "/tasks/"+id, other, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user delete status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "valid@example.com")

	resp := env.do(t, http.MethodPost, "/tasks", token, map[string]any{
		"priority": "urgent", "due_date": "tomorrow",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	fields := body["error"].(map[string]any)["fields"].(map[string]any)
	for _, f := range []string{"title", "priority", "due_date"} {
		if fields[f] == nil {
			t.Fatalf("missing field error %q in %v", f, fields)
		}
	}

	// Unknown category answers 404, not 422.
	resp = env.do(t, http.MethodPost, "/tasks", token, map[string]any{
		"title": "x", "category_id": "missing",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListTasksQueryValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "query@example.com")
	resp := env.do(t, http.MethodGet, "/tasks?status=done&priority=urgent", token, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	fields := body["error"].(map[string]any)["fields"].(map[string]any)
	if fields["status"] == nil || fields["priority"] == nil {
		t.Fatalf("fields = %v", fields)
	}
}

func TestCategoryAdminOnlyWrites(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "user@example.com")
	admin := env.registerAdmin(t, "admin@example.com")

	resp := env.do(t, http.MethodPost, "/categories", user, map[string]any{"name": "Work"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin create status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/categories", admin, map[string]any{"name": "Work", "color": "#ff0000"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin create status = %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	id := created["id"].(string)

	// Reads stay open to every authed user.
	resp = env.do(t, http.MethodGet, "/categories", user, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/categories/"+id, admin, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminBanUnban(t *testing.T) {
	env := newTestEnv(t)
	victim := env.register(t, "victim@example.com")
	admin := env.registerAdmin(t, "admin@example.com")

	resp := env.do(t, http.MethodGet, "/admin/users", victim, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin listing status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	var victimID string
	{
		resp := env.do(t, http.MethodGet, "/auth/me", victim, nil)
		me := decodeBody(t, resp)
		victimID = me["id"].(string)
	}

	resp = env.do(t, http.MethodPost, "/admin/users/"+victimID+"/ban", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ban status = %d", resp.StatusCode)
	}
	banned := decodeBody(t, resp)
	if banned["banned"] != true {
		t.Fatalf("ban result = %v", banned)
	}

	resp = env.do(t, http.MethodGet, "/tasks", victim, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("banned user status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/admin/users/"+victimID+"/unban", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unban status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = env.do(t, http.MethodGet, "/tasks", victim, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unbanned user status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatMessageLengthBoundary(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "chat@example.com")
	env.llm.responses = []provider.ChatResponse{{Content: "ok"}}

	resp := env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{
		"message": strings.Repeat("a", 1000),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("1000-char message status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{
		"message": strings.Repeat("a", 1001),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("1001-char message status = %d, want 422", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatStreamCreatesTask(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "stream@example.com")
	env.llm.responses = []provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{
			ID:   "call_0",
			Type: "function",
			Function: provider.ToolCallFunction{
				Name:      "create_task",
				Arguments: `{"title":"Buy milk","priority":"high"}`,
			},
		}}},
		{Content: "Added Buy milk to your list."},
	}

	resp := env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{
		"message": "add a task to buy milk",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, "Added Buy milk") {
		t.Fatalf("stream missing confirmation text:\n%s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Fatalf("stream not terminated with [DONE]:\n%s", body)
	}

	resp = env.do(t, http.MethodGet, "/tasks", token, nil)
	var listing []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	resp.Body.Close()
	if len(listing) != 1 || listing[0]["title"] != "Buy milk" {
		t.Fatalf("task not created through chat: %v", listing)
	}
}

func TestChatPreStreamProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "fail@example.com")
	env.llm.errs = []error{fmt.Errorf("%w: connection refused", provider.ErrUpstream)}

	resp := env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "PROVIDER_UNAVAILABLE" {
		t.Fatalf("error = %v", errObj)
	}
	if strings.Contains(errObj["message"].(string), "connection refused") {
		t.Fatalf("internal detail leaked: %v", errObj)
	}
}

func TestChatMidStreamFailureInBand(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "midfail@example.com")
	// First call streams a tool call, the follow-up fails after chunks may
	// already have been written.
	env.llm.responses = []provider.ChatResponse{
		{Content: "Working on it. ", ToolCalls: []provider.ToolCall{{
			ID:   "call_0",
			Type: "function",
			Function: provider.ToolCallFunction{
				Name:      "create_task",
				Arguments: `{"title":"x"}`,
			},
		}}},
	}
	env.llm.errs = []error{nil, fmt.Errorf("%w: stream cut", provider.ErrUpstream)}

	resp := env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{"message": "add x"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mid-stream failure must keep the 200 stream, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(raw)
	if !strings.Contains(body, `"error"`) {
		t.Fatalf("stream missing in-band error frame:\n%s", body)
	}
	if strings.Contains(body, "stream cut") {
		t.Fatalf("internal detail leaked into stream:\n%s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Fatalf("stream not terminated with [DONE]:\n%s", body)
	}
}

func TestConversationResetEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "reset@example.com")
	env.llm.responses = []provider.ChatResponse{{Content: "hello"}}

	resp := env.do(t, http.MethodPost, "/ai/chat", token, map[string]any{"message": "hi"})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/ai/messages", token, nil)
	var msgs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	resp.Body.Close()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages before reset", len(msgs))
	}

	resp = env.do(t, http.MethodDelete, "/ai/conversations", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	reset := decodeBody(t, resp)
	if reset["conversation_id"] == "" {
		t.Fatalf("reset body = %v", reset)
	}

	resp = env.do(t, http.MethodGet, "/ai/messages", token, nil)
	msgs = nil
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	resp.Body.Close()
	if len(msgs) != 0 {
		t.Fatalf("reset left %d messages", len(msgs))
	}
}

func TestRefreshTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"name": "R", "email": "refresh@example.com", "password": "password123",
	})
	pair := decodeBody(t, resp)
	refresh := pair["refresh_token"].(string)

	resp = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	next := decodeBody(t, resp)
	if next["refresh_token"] == refresh {
		t.Fatal("refresh token not rotated")
	}

	// The replayed old token answers 401.
	resp = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{"refresh_token": refresh})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
