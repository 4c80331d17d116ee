package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/delivery"
	"github.com/yndnr/chatmesh-go/internal/eventbus"
	"github.com/yndnr/chatmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/chatmesh-go/internal/sharedstore/memory"
	"github.com/yndnr/chatmesh-go/internal/storage"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

type envOptions struct {
	messageMax int
	httpMax    int
	// adminToken defaults to testAdminToken unless noAdminToken is set.
	adminToken   string
	noAdminToken bool
	allowList    []string
}

const testAdminToken = "test-admin"

type testEnv struct {
	server     *httptest.Server
	adminToken string
	hub        *delivery.Hub
	metrics    *metric.Registry
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logger.Discard()
	metrics := metric.NewRegistry()

	store := memory.New(time.Minute, memory.WithLogger(log))
	t.Cleanup(func() { _ = store.Close() })

	db, err := storage.Open(storage.Config{InMemory: true}, log)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if opts.messageMax == 0 {
		opts.messageMax = 100
	}
	if opts.adminToken == "" && !opts.noAdminToken {
		opts.adminToken = testAdminToken
	}

	pub := eventbus.NewPublisher(store, metrics, log)
	limiter := service.NewRateLimiter(store, "test-host", service.WithRateLimiterMetrics(metrics))
	sessions := service.NewSessionCoordinator(store, service.DefaultSessionConfig(),
		service.WithSessionPublisher(pub),
		service.WithSessionMetrics(metrics),
		service.WithSessionLogger(log),
	)
	messages := service.NewMessageService(storage.NewMessageStore(db), limiter, pub,
		service.MessageLimits{MaxRequests: opts.messageMax, Window: time.Minute}, log)

	hub := delivery.NewHub(delivery.WithMetrics(metrics), delivery.WithLogger(log))
	listener := eventbus.NewListener(store, hub, metrics, log)
	if err := listener.Start(ctx); err != nil {
		t.Fatalf("listener.Start() error = %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	router := NewRouter(&RouterConfig{
		Sessions:       sessions,
		Messages:       messages,
		Limiter:        limiter,
		Hub:            hub,
		Store:          store,
		Metrics:        metrics,
		Logger:         log,
		HTTPRateMax:    opts.httpMax,
		HTTPRateWindow: time.Minute,
		AdminToken:     opts.adminToken,
		AdminAllowList: opts.allowList,
		Heartbeat:      50 * time.Millisecond,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, adminToken: opts.adminToken, hub: hub, metrics: metrics}
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp, env
}

// admin returns the headers the application backend sends on session and
// room event calls.
func (e *testEnv) admin() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.adminToken}
}

func (e *testEnv) login(t *testing.T, userID string) map[string]string {
	t.Helper()
	resp, env := e.do(t, http.MethodPost, "/sessions", handler.CreateSessionRequest{UserID: userID, DeviceID: "dev-1"}, e.admin())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("login status = %d (%s)", resp.StatusCode, env.Code)
	}
	var created handler.CreateSessionResponse
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.SessionID, domain.SessionIDPrefix) || created.ExpiresIn <= 0 {
		t.Fatalf("created = %+v", created)
	}
	return map[string]string{HeaderUserID: userID, HeaderSessionID: created.SessionID}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	resp, env := e.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusOK || env.Code != "OK" {
		t.Fatalf("health = %d %s", resp.StatusCode, env.Code)
	}
	if resp.Header.Get("X-Request-ID") == "" || env.RequestID != resp.Header.Get("X-Request-ID") {
		t.Errorf("request id header %q, body %q", resp.Header.Get("X-Request-ID"), env.RequestID)
	}

	resp, _ = e.do(t, http.MethodGet, "/ready", nil, map[string]string{"X-Request-ID": "req-1"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-1" {
		t.Errorf("X-Request-ID = %q, want the caller's", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	first := e.login(t, "u1")

	validate := func(creds map[string]string) handler.ValidateSessionResponse {
		t.Helper()
		resp, env := e.do(t, http.MethodPost, "/sessions/validate", handler.ValidateSessionRequest{
			UserID: creds[HeaderUserID], SessionID: creds[HeaderSessionID], Touch: true,
		}, e.admin())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("validate status = %d", resp.StatusCode)
		}
		var v handler.ValidateSessionResponse
		if err := json.Unmarshal(env.Data, &v); err != nil {
			t.Fatal(err)
		}
		return v
	}

	if v := validate(first); !v.Valid || v.ExpiresAt == 0 {
		t.Fatalf("first session = %+v, want valid", v)
	}

	second := e.login(t, "u1")
	if v := validate(first); v.Valid || !v.RequiresLogin {
		t.Errorf("replaced session = %+v, want invalid and requires_login", v)
	}
	if v := validate(second); !v.Valid {
		t.Errorf("second session = %+v, want valid", v)
	}

	resp, _ := e.do(t, http.MethodPost, "/sessions/touch", handler.UserRequest{UserID: "u1"}, e.admin())
	if resp.StatusCode != http.StatusOK {
		t.Errorf("touch = %d", resp.StatusCode)
	}
	resp, env := e.do(t, http.MethodPost, "/sessions/touch", handler.UserRequest{}, e.admin())
	if resp.StatusCode != http.StatusBadRequest || env.Code != domain.ErrMissingArgument.Code {
		t.Errorf("touch without user = %d %s", resp.StatusCode, env.Code)
	}

	resp, _ = e.do(t, http.MethodPost, "/sessions/remove", handler.RemoveSessionRequest{
		UserID: "u1", SessionID: second[HeaderSessionID],
	}, e.admin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove = %d", resp.StatusCode)
	}
	if v := validate(second); v.Valid {
		t.Errorf("removed session still valid")
	}
}

func TestSessionRoutesRequireAdminToken(t *testing.T) {
	routes := []struct {
		path string
		body any
	}{
		{"/sessions", handler.CreateSessionRequest{UserID: "u1"}},
		{"/sessions/validate", handler.ValidateSessionRequest{UserID: "u1", SessionID: "cmss_x"}},
		{"/sessions/touch", handler.UserRequest{UserID: "u1"}},
		{"/sessions/remove", handler.RemoveSessionRequest{UserID: "u1"}},
	}
	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	disabled := newTestEnv(t, envOptions{noAdminToken: true})
	guarded := newTestEnv(t, envOptions{adminToken: "s3cret"})
	fenced := newTestEnv(t, envOptions{adminToken: "s3cret", allowList: []string{"10.0.0.0/8"}})

	for _, rt := range routes {
		t.Run(rt.path, func(t *testing.T) {
			if resp, env := disabled.do(t, http.MethodPost, rt.path, rt.body, bearer("anything")); resp.StatusCode != http.StatusForbidden || env.Code != domain.ErrForbidden.Code {
				t.Errorf("no token configured = %d %s", resp.StatusCode, env.Code)
			}
			if resp, env := guarded.do(t, http.MethodPost, rt.path, rt.body, nil); resp.StatusCode != http.StatusUnauthorized || env.Code != domain.ErrUnauthorized.Code {
				t.Errorf("no token = %d %s", resp.StatusCode, env.Code)
			}
			if resp, _ := guarded.do(t, http.MethodPost, rt.path, rt.body, bearer("wrong")); resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("wrong token = %d", resp.StatusCode)
			}
			if resp, _ := guarded.do(t, http.MethodPost, rt.path, rt.body, bearer("s3cret")); resp.StatusCode >= 400 {
				t.Errorf("right token = %d", resp.StatusCode)
			}
			if resp, _ := fenced.do(t, http.MethodPost, rt.path, rt.body, bearer("s3cret")); resp.StatusCode != http.StatusForbidden {
				t.Errorf("outside allowlist = %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateSessionRejectsMissingUser(t *testing.T) {
	e := newTestEnv(t, envOptions{})

	resp, env := e.do(t, http.MethodPost, "/sessions", handler.CreateSessionRequest{}, e.admin())
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d (%s)", resp.StatusCode, env.Code)
	}

	req, _ := http.NewRequest(http.MethodPost, e.server.URL+"/sessions", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	raw, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest || raw.Header.Get("X-Error-Code") != domain.ErrBadRequest.Code {
		t.Errorf("malformed body = %d %s", raw.StatusCode, raw.Header.Get("X-Error-Code"))
	}
}

func TestMessagingRequiresSession(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	creds := e.login(t, "u1")

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong session", map[string]string{HeaderUserID: "u1", HeaderSessionID: "cmss_nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{HeaderUserID: "ghost", HeaderSessionID: creds[HeaderSessionID]}, http.StatusUnauthorized},
		{"valid", creds, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "hi"}, tt.headers)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d (%s), want %d", resp.StatusCode, env.Code, tt.want)
			}
		})
	}
}

func TestSendReactRead(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	creds := e.login(t, "u1")

	resp, env := e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "hello"}, creds)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d (%s %s)", resp.StatusCode, env.Code, env.Message)
	}
	if resp.Header.Get("X-RateLimit-Limit") != "100" || resp.Header.Get("X-RateLimit-Remaining") != "99" {
		t.Errorf("rate headers = %q/%q", resp.Header.Get("X-RateLimit-Limit"), resp.Header.Get("X-RateLimit-Remaining"))
	}
	var msg domain.MessagePayload
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.RoomID != "r1" || msg.SenderID != "u1" || msg.Type != domain.MessageTypeText {
		t.Fatalf("message = %+v", msg)
	}

	resp, env = e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "  "}, creds)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank content = %d (%s)", resp.StatusCode, env.Code)
	}

	resp, env = e.do(t, http.MethodPost, "/messages/"+msg.ID+"/reactions", handler.ReactRequest{Reaction: "👍", Type: "add"}, creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("react = %d (%s)", resp.StatusCode, env.Code)
	}
	var update domain.ReactionUpdatePayload
	if err := json.Unmarshal(env.Data, &update); err != nil {
		t.Fatal(err)
	}
	if got := update.Reactions["👍"]; len(got) != 1 || got[0] != "u1" {
		t.Errorf("reactions = %v", update.Reactions)
	}

	resp, env = e.do(t, http.MethodPost, "/messages/missing/reactions", handler.ReactRequest{Reaction: "👍"}, creds)
	if resp.StatusCode != http.StatusNotFound || env.Code != domain.ErrMessageNotFound.Code {
		t.Errorf("react missing = %d %s", resp.StatusCode, env.Code)
	}
	resp, env = e.do(t, http.MethodPost, "/messages/"+msg.ID+"/reactions", handler.ReactRequest{Reaction: "👍", Type: "wave"}, creds)
	if resp.StatusCode != http.StatusBadRequest || env.Code != domain.ErrInvalidReaction.Code {
		t.Errorf("bad reaction type = %d %s", resp.StatusCode, env.Code)
	}

	resp, env = e.do(t, http.MethodPost, "/rooms/r1/read", handler.MarkReadRequest{MessageIDs: []string{msg.ID}}, creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read = %d (%s)", resp.StatusCode, env.Code)
	}
	var read domain.MessagesReadPayload
	if err := json.Unmarshal(env.Data, &read); err != nil {
		t.Fatal(err)
	}
	if read.UserID != "u1" || len(read.MessageIDs) != 1 || read.ReadAt == 0 {
		t.Errorf("read = %+v", read)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	e := newTestEnv(t, envOptions{messageMax: 1})
	creds := e.login(t, "u1")

	resp, _ := e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "one"}, creds)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first send = %d", resp.StatusCode)
	}
	resp, env := e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "two"}, creds)
	if resp.StatusCode != http.StatusTooManyRequests || env.Code != domain.ErrRateLimited.Code {
		t.Fatalf("second send = %d %s", resp.StatusCode, env.Code)
	}
	if resp.Header.Get("Retry-After") == "" || resp.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", resp.Header)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	e := newTestEnv(t, envOptions{httpMax: 2})

	for i := 0; i < 2; i++ {
		if resp, _ := e.do(t, http.MethodGet, "/health", nil, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d = %d", i, resp.StatusCode)
		}
	}
	resp, env := e.do(t, http.MethodGet, "/health", nil, nil)
	if resp.StatusCode != http.StatusTooManyRequests || env.Code != domain.ErrRateLimited.Code {
		t.Errorf("third request = %d %s", resp.StatusCode, env.Code)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRoomEventsAdminGuard(t *testing.T) {
	body := handler.RoomEventRequest{Type: domain.EventUserLeft, UserID: "u2", UserName: "Bob"}
	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	t.Run("disabled without token", func(t *testing.T) {
		e := newTestEnv(t, envOptions{noAdminToken: true})
		resp, env := e.do(t, http.MethodPost, "/rooms/r1/events", body, bearer("anything"))
		if resp.StatusCode != http.StatusForbidden || env.Code != domain.ErrForbidden.Code {
			t.Errorf("status = %d %s", resp.StatusCode, env.Code)
		}
	})

	t.Run("token checks", func(t *testing.T) {
		e := newTestEnv(t, envOptions{adminToken: "s3cret"})
		if resp, _ := e.do(t, http.MethodPost, "/rooms/r1/events", body, bearer("wrong")); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("wrong token = %d", resp.StatusCode)
		}
		if resp, _ := e.do(t, http.MethodPost, "/rooms/r1/events", body, nil); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("no token = %d", resp.StatusCode)
		}
		if resp, _ := e.do(t, http.MethodPost, "/rooms/r1/events", body, bearer("s3cret")); resp.StatusCode != http.StatusAccepted {
			t.Errorf("right token = %d", resp.StatusCode)
		}
		bad := handler.RoomEventRequest{Type: domain.EventRoomUpdate}
		if resp, env := e.do(t, http.MethodPost, "/rooms/r1/events", bad, bearer("s3cret")); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("missing room = %d %s", resp.StatusCode, env.Code)
		}
	})

	t.Run("network acl", func(t *testing.T) {
		e := newTestEnv(t, envOptions{adminToken: "s3cret", allowList: []string{"10.0.0.0/8"}})
		resp, env := e.do(t, http.MethodPost, "/rooms/r1/events", body, bearer("s3cret"))
		if resp.StatusCode != http.StatusForbidden || env.Code != domain.ErrForbidden.Code {
			t.Errorf("outside allowlist = %d %s", resp.StatusCode, env.Code)
		}
		headers := bearer("s3cret")
		headers["X-Forwarded-For"] = "10.1.2.3"
		if resp, _ := e.do(t, http.MethodPost, "/rooms/r1/events", body, headers); resp.StatusCode != http.StatusAccepted {
			t.Errorf("inside allowlist = %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	e.do(t, http.MethodGet, "/health", nil, nil)

	resp, err := e.server.Client().Get(e.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`chatmesh_http_requests_total{method="GET",route="GET /health",status="200"} 1`,
		"chatmesh_delivery_subscribers",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	req, _ := http.NewRequest(http.MethodOptions, e.server.URL+"/sessions", nil)
	req.Header.Set("Origin", "https://chat.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://chat.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses the stream into ch and closes ch at EOF. Comment lines
// (heartbeats) are skipped.
func readEvents(body io.Reader, ch chan<- sseEvent) {
	defer close(ch)
	sc := bufio.NewScanner(body)
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.name != "" {
				ch <- ev
			}
			ev = sseEvent{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func nextEvent(t *testing.T, ch <-chan sseEvent) (sseEvent, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(3 * time.Second):
		t.Fatal("no event before deadline")
		return sseEvent{}, false
	}
}

func TestStreamDeliversRoomEventsAndEndsReplacedSession(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	listenerCreds := e.login(t, "u1")
	senderCreds := e.login(t, "u2")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := e.server.URL + "/rooms/r1/stream?user_id=u1&session_id=" + listenerCreds[HeaderSessionID]
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("stream = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	events := make(chan sseEvent, 8)
	go readEvents(resp.Body, events)
	waitFor(t, func() bool { return e.hub.Count() == 1 })

	if r, _ := e.do(t, http.MethodPost, "/rooms/r1/messages", handler.SendMessageRequest{Content: "hey"}, senderCreds); r.StatusCode != http.StatusCreated {
		t.Fatalf("send = %d", r.StatusCode)
	}
	ev, ok := nextEvent(t, events)
	if !ok || ev.name != string(domain.EventMessage) || !strings.Contains(ev.data, `"content":"hey"`) {
		t.Fatalf("first event = %+v", ev)
	}

	// A message in another room is not delivered here.
	e.do(t, http.MethodPost, "/rooms/r2/messages", handler.SendMessageRequest{Content: "elsewhere"}, senderCreds)

	// Logging in again ends the stream of the replaced session.
	e.login(t, "u1")
	ev, ok = nextEvent(t, events)
	if !ok || ev.name != string(domain.EventSessionEnded) {
		t.Fatalf("second event = %+v", ev)
	}
	var ended domain.SessionEndedPayload
	if err := json.Unmarshal([]byte(ev.data), &ended); err != nil {
		t.Fatal(err)
	}
	if ended.SessionID != listenerCreds[HeaderSessionID] {
		t.Errorf("ended session = %q", ended.SessionID)
	}
	if _, ok := nextEvent(t, events); ok {
		t.Error("stream stayed open after session_ended")
	}
	waitFor(t, func() bool { return e.hub.Count() == 0 })
}

func TestStreamEndsOnLogout(t *testing.T) {
	e := newTestEnv(t, envOptions{})
	creds := e.login(t, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := e.server.URL + "/rooms/r1/stream?user_id=u1&session_id=" + creds[HeaderSessionID]
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream = %d", resp.StatusCode)
	}

	events := make(chan sseEvent, 8)
	go readEvents(resp.Body, events)
	waitFor(t, func() bool { return e.hub.Count() == 1 })

	r, _ := e.do(t, http.MethodPost, "/sessions/remove", handler.RemoveSessionRequest{
		UserID: "u1", SessionID: creds[HeaderSessionID],
	}, e.admin())
	if r.StatusCode != http.StatusOK {
		t.Fatalf("remove = %d", r.StatusCode)
	}

	ev, ok := nextEvent(t, events)
	if !ok || ev.name != string(domain.EventSessionEnded) {
		t.Fatalf("event = %+v", ev)
	}
	var ended domain.SessionEndedPayload
	if err := json.Unmarshal([]byte(ev.data), &ended); err != nil {
		t.Fatal(err)
	}
	if ended.Reason != domain.SessionEndLogout || ended.SessionID != creds[HeaderSessionID] {
		t.Errorf("ended = %+v", ended)
	}
	if _, ok := nextEvent(t, events); ok {
		t.Error("stream stayed open after logout")
	}
	waitFor(t, func() bool { return e.hub.Count() == 0 })
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.ErrSessionCreationBusy.Code, http.StatusConflict},
		{domain.ErrSessionNotFound.Code, http.StatusUnauthorized},
		{domain.ErrSessionExpired.Code, http.StatusUnauthorized},
		{domain.ErrMessageNotFound.Code, http.StatusNotFound},
		{domain.ErrFileNotFound.Code, http.StatusNotFound},
		{domain.ErrInvalidReaction.Code, http.StatusBadRequest},
		{domain.ErrRateLimited.Code, http.StatusTooManyRequests},
		{domain.ErrMissingArgument.Code, http.StatusBadRequest},
		{domain.ErrForbidden.Code, http.StatusForbidden},
		{domain.ErrSharedStore.Code, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := handler.ErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
