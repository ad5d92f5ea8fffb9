package adk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeAgent is a minimal stand-in for the agent service. Handlers can be
// swapped per test; every request is counted by path.
type fakeAgent struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]http.HandlerFunc
	lastRun  RunRequest
	lastKey  string
}

func newFakeAgent(t *testing.T) (*fakeAgent, *httptest.Server) {
	t.Helper()
	fa := &fakeAgent{
		calls:    make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}
	fa.handle("POST /apps/weather_agent/users/user/sessions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"s1","appName":"weather_agent","userId":"user","events":[]}`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		fa.mu.Lock()
		fa.calls[key]++
		h := fa.handlers[key]
		if r.URL.Path == "/run" {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &fa.lastRun)
			fa.lastKey = r.Header.Get(DefaultCredentialHeader)
		}
		fa.mu.Unlock()
		if h == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return fa, srv
}

func (fa *fakeAgent) handle(key string, h http.HandlerFunc) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.handlers[key] = h
}

func (fa *fakeAgent) count(key string) int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.calls[key]
}

func (fa *fakeAgent) total() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	n := 0
	for _, c := range fa.calls {
		n += c
	}
	return n
}

func TestStartSession(t *testing.T) {
	_, srv := newFakeAgent(t)
	c := New(srv.URL)

	if c.HasSession() {
		t.Fatal("new client should have no session")
	}
	if !c.StartSession(context.Background()) {
		t.Fatal("StartSession returned false")
	}
	if got := c.SessionID(); got != "s1" {
		t.Errorf("SessionID() = %q, want %q", got, "s1")
	}
}

func TestStartSession_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"missing id", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"appName":"weather_agent"}`)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `not json`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, srv := newFakeAgent(t)
			fa.handle("POST /apps/weather_agent/users/user/sessions", tt.handler)
			c := New(srv.URL)
			if c.StartSession(context.Background()) {
				t.Fatal("StartSession should fail")
			}
			if c.HasSession() {
				t.Error("session id should stay unset")
			}
		})
	}
}

func TestStartSession_Unreachable(t *testing.T) {
	_, srv := newFakeAgent(t)
	url := srv.URL
	srv.Close()

	c := New(url)
	if c.StartSession(context.Background()) {
		t.Fatal("StartSession should fail when the service is down")
	}
}

func TestSendMessage(t *testing.T) {
	fa, srv := newFakeAgent(t)
	const reply = `[{"content":{"parts":[{"text":"hi"}]}}]`
	fa.handle("POST /run", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, reply)
	})

	c := New(srv.URL)
	c.StartSession(context.Background())

	events, err := c.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	got, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(got) != reply {
		t.Errorf("SendMessage returned %s, want %s", got, reply)
	}
	if p := events[0].FirstPart(); p == nil || p.Text != "hi" {
		t.Errorf("first part = %+v, want text hi", p)
	}

	fa.mu.Lock()
	run := fa.lastRun
	fa.mu.Unlock()
	if run.AppName != "weather_agent" || run.UserID != "user" || run.SessionID != "s1" {
		t.Errorf("unexpected run request ids: %+v", run)
	}
	if run.Streaming {
		t.Error("run request should not be streaming")
	}
	if run.NewMessage.Role != "user" || len(run.NewMessage.Parts) != 1 || run.NewMessage.Parts[0].Text != "hello" {
		t.Errorf("unexpected new_message: %+v", run.NewMessage)
	}
}

func TestSendMessage_NoSession(t *testing.T) {
	fa, srv := newFakeAgent(t)
	c := New(srv.URL)

	_, err := c.SendMessage(context.Background(), "hello")
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("SendMessage error = %v, want ErrNoActiveSession", err)
	}
	if n := fa.total(); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestSendMessage_RemoteError(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("POST /run", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	c := New(srv.URL)
	c.StartSession(context.Background())

	_, err := c.SendMessage(context.Background(), "hello")
	re, ok := AsRemoteError(err)
	if !ok {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", re.StatusCode, http.StatusTooManyRequests)
	}
	if !strings.Contains(re.Body, "quota exceeded") {
		t.Errorf("Body = %q, want it to contain the response text", re.Body)
	}
}

func TestSendMessage_CredentialHeader(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("POST /run", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})

	lastKey := func() string {
		fa.mu.Lock()
		defer fa.mu.Unlock()
		return fa.lastKey
	}

	withDefault := New(srv.URL, WithDefaultCredential("deploy-key"))
	withDefault.StartSession(context.Background())
	if _, err := withDefault.SendMessage(context.Background(), "a"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got := lastKey(); got != "deploy-key" {
		t.Errorf("credential = %q, want default %q", got, "deploy-key")
	}

	withDefault.SetCredentialOverride("user-key")
	withDefault.SendMessage(context.Background(), "b")
	if got := lastKey(); got != "user-key" {
		t.Errorf("credential = %q, want override %q", got, "user-key")
	}

	other := New(srv.URL)
	other.StartSession(context.Background())
	other.SendMessage(context.Background(), "c")
	if got := lastKey(); got != "" {
		t.Errorf("a client without credentials leaked %q", got)
	}

	withDefault.SetCredentialOverride("")
	withDefault.SendMessage(context.Background(), "d")
	if got := lastKey(); got != "deploy-key" {
		t.Errorf("credential after clearing override = %q, want %q", got, "deploy-key")
	}
}

func TestSendMessage_ConcurrentOverridesDoNotLeak(t *testing.T) {
	var mismatches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			var req RunRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.NewMessage.Parts[0].Text != r.Header.Get(DefaultCredentialHeader) {
				mismatches.Add(1)
			}
			io.WriteString(w, `[]`)
			return
		}
		io.WriteString(w, `{"id":"sid"}`)
	}))
	defer srv.Close()

	var wg sync.WaitGroup
	for _, key := range []string{"key-a", "key-b", "key-c", "key-d"} {
		c := New(srv.URL)
		c.StartSession(context.Background())
		c.SetCredentialOverride(key)
		wg.Add(1)
		go func(c *Client, key string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				c.SendMessage(context.Background(), key)
			}
		}(c, key)
	}
	wg.Wait()

	if n := mismatches.Load(); n != 0 {
		t.Errorf("%d requests carried another session's credential", n)
	}
}

func TestGetEvents(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /apps/weather_agent/users/user/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "s1" {
			http.Error(w, "missing session_id", http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"id":"s1","events":[{"id":"e1","author":"user"},{"id":"e2","author":"weather_agent"}]}`)
	})
	c := New(srv.URL)

	if _, err := c.GetEvents(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("GetEvents without session = %v, want ErrNoActiveSession", err)
	}

	c.StartSession(context.Background())
	sess, err := c.GetEvents(context.Background())
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(sess.Events) != 2 || sess.Events[1].ID != "e2" || sess.Events[1].Author != "weather_agent" {
		t.Errorf("unexpected events: %+v", sess.Events)
	}
}

func TestGetEvents_RemoteError(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /apps/weather_agent/users/user/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Session not found", http.StatusNotFound)
	})
	c := New(srv.URL)
	c.StartSession(context.Background())

	_, err := c.GetEvents(context.Background())
	if re, ok := AsRemoteError(err); !ok || re.StatusCode != http.StatusNotFound {
		t.Fatalf("GetEvents error = %v, want 404 RemoteError", err)
	}
}

func TestGetTrace_CachesSuccess(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /debug/trace/e1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"x":1}`)
	})
	c := New(srv.URL)
	c.StartSession(context.Background())

	first, err := c.GetTrace(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetTrace failed: %v", err)
	}

	fa.handle("GET /debug/trace/e1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})

	second, err := c.GetTrace(context.Background(), "e1")
	if err != nil {
		t.Fatalf("cached GetTrace failed: %v", err)
	}
	if second["x"] != first["x"] || second["x"] != float64(1) {
		t.Errorf("second GetTrace = %v, want %v", second, first)
	}
	if n := fa.count("GET /debug/trace/e1"); n != 1 {
		t.Errorf("trace endpoint called %d times, want 1", n)
	}
}

func TestGetTrace_CachesFailureSentinel(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /debug/trace/e1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Trace not found", http.StatusNotFound)
	})
	c := New(srv.URL)
	c.StartSession(context.Background())

	if _, err := c.GetTrace(context.Background(), "e1"); err == nil {
		t.Fatal("first GetTrace should fail")
	}
	trace, err := c.GetTrace(context.Background(), "e1")
	if err != nil || trace != nil {
		t.Errorf("second GetTrace = (%v, %v), want cached (nil, nil)", trace, err)
	}
	if n := fa.count("GET /debug/trace/e1"); n != 1 {
		t.Errorf("trace endpoint called %d times, want 1", n)
	}
}

func TestGetTrace_CacheHitWithoutSession(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /debug/trace/e1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"x":1}`)
	})
	fa.handle("DELETE /apps/weather_agent/users/user/sessions/s1", func(w http.ResponseWriter, r *http.Request) {})
	c := New(srv.URL)
	c.StartSession(context.Background())
	c.GetTrace(context.Background(), "e1")
	c.EndSession(context.Background())

	if _, err := c.GetTrace(context.Background(), "e1"); err != nil {
		t.Errorf("cached trace should be served without a session, got %v", err)
	}
	if _, err := c.GetTrace(context.Background(), "e2"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("uncached trace without session = %v, want ErrNoActiveSession", err)
	}
}

func TestGetTrace_TransportFailureNotCached(t *testing.T) {
	_, srv := newFakeAgent(t)
	c := New(srv.URL)
	c.StartSession(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetTrace(ctx, "e1"); !IsTransport(err) {
		t.Fatalf("GetTrace with cancelled context = %v, want transport error", err)
	}
	if stats := c.CacheStats(); stats.Traces != 0 {
		t.Errorf("transport failure was cached: %+v", stats)
	}
}

func TestGetGraph_FailureUsesGraphCache(t *testing.T) {
	fa, srv := newFakeAgent(t)
	graphPath := "GET /apps/weather_agent/users/user/sessions/s1/events/e1/graph"
	fa.handle(graphPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no graph", http.StatusInternalServerError)
	})
	fa.handle("GET /debug/trace/e1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"x":1}`)
	})
	c := New(srv.URL)
	c.StartSession(context.Background())

	if _, err := c.GetGraph(context.Background(), "e1"); err == nil {
		t.Fatal("GetGraph should fail")
	}
	graph, err := c.GetGraph(context.Background(), "e1")
	if err != nil || graph != nil {
		t.Errorf("second GetGraph = (%v, %v), want cached (nil, nil)", graph, err)
	}
	if n := fa.count(graphPath); n != 1 {
		t.Errorf("graph endpoint called %d times, want 1", n)
	}

	// A failed graph fetch must not shadow the trace of the same event.
	trace, err := c.GetTrace(context.Background(), "e1")
	if err != nil || trace["x"] != float64(1) {
		t.Errorf("GetTrace after graph failure = (%v, %v), want fetched trace", trace, err)
	}
	if stats := c.CacheStats(); stats.Traces != 1 || stats.Graphs != 1 {
		t.Errorf("CacheStats = %+v, want 1 trace and 1 graph", stats)
	}
}

func TestGetGraph(t *testing.T) {
	fa, srv := newFakeAgent(t)
	graphPath := "GET /apps/weather_agent/users/user/sessions/s1/events/e1/graph"
	fa.handle(graphPath, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"dotSrc":"digraph {}"}`)
	})
	c := New(srv.URL)

	if _, err := c.GetGraph(context.Background(), "e1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("GetGraph without session = %v, want ErrNoActiveSession", err)
	}

	c.StartSession(context.Background())
	for i := 0; i < 3; i++ {
		graph, err := c.GetGraph(context.Background(), "e1")
		if err != nil {
			t.Fatalf("GetGraph failed: %v", err)
		}
		if graph["dotSrc"] != "digraph {}" {
			t.Errorf("unexpected graph: %v", graph)
		}
	}
	if n := fa.count(graphPath); n != 1 {
		t.Errorf("graph endpoint called %d times, want 1", n)
	}
}

func TestEndSession(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("DELETE /apps/weather_agent/users/user/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already gone", http.StatusInternalServerError)
	})
	c := New(srv.URL)

	// No session: no request.
	c.EndSession(context.Background())
	if n := fa.total(); n != 0 {
		t.Fatalf("EndSession without session made %d calls", n)
	}

	c.StartSession(context.Background())
	c.EndSession(context.Background())
	if c.HasSession() {
		t.Error("session id should be cleared even when the delete fails")
	}
	if n := fa.count("DELETE /apps/weather_agent/users/user/sessions/s1"); n != 1 {
		t.Errorf("delete called %d times, want 1", n)
	}

	before := fa.total()
	if _, err := c.SendMessage(context.Background(), "hello"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("SendMessage after EndSession = %v, want ErrNoActiveSession", err)
	}
	if _, err := c.GetEvents(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("GetEvents after EndSession = %v, want ErrNoActiveSession", err)
	}
	if fa.total() != before {
		t.Error("operations after EndSession should not reach the network")
	}
}

func TestAttach(t *testing.T) {
	fa, srv := newFakeAgent(t)
	fa.handle("GET /apps/app/users/bob/sessions/existing", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"existing","events":[]}`)
	})
	c := New(srv.URL+"/", WithApp("app", "bob"))
	c.Attach("existing")

	sess, err := c.GetEvents(context.Background())
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if sess.ID != "existing" {
		t.Errorf("session id = %q, want %q", sess.ID, "existing")
	}
	if fa.count("POST /apps/app/users/bob/sessions") != 0 {
		t.Error("Attach should not create a session")
	}
}
