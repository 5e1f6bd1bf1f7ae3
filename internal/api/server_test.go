package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/essembi/essembi-chat/internal/logbuf"
)

func newTestServer(key string, opts ...Option) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Key: key}, nil, opts...)
}

func serve(s *Server, method, target, auth string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer("", WithStatus([]string{"teams", "slack"}, "sqlite"))
	w := serve(srv, "GET", "/api/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var body Status
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ok" || len(body.Connectors) != 2 || body.Sessions != "sqlite" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer("secret-key")
	w := serve(srv, "GET", "/api/health", "", nil)

	// Health should NOT require auth
	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth, status = %d", w.Code)
	}
}

func TestMessages_Mounted(t *testing.T) {
	var got string
	teams := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	// Bot Framework authenticates on its own; the API key must not apply.
	srv := newTestServer("secret-key", WithMessages(teams))
	w := serve(srv, "POST", "/api/messages", "", strings.NewReader(`{"type":"invoke"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got != `{"type":"invoke"}` {
		t.Errorf("forwarded body = %q", got)
	}
}

func TestMessages_NotConfigured(t *testing.T) {
	srv := newTestServer("")
	w := serve(srv, "POST", "/api/messages", "", strings.NewReader(`{}`))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMessages_MethodNotAllowed(t *testing.T) {
	srv := newTestServer("", WithMessages(http.NotFoundHandler()))
	w := serve(srv, "GET", "/api/messages", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestGetLogs(t *testing.T) {
	buf := logbuf.New(10)
	now := time.Now()
	buf.Write(logbuf.Entry{Time: now.Add(-time.Minute), Level: "INFO", Message: "turn handled", TurnID: "t-1"})
	buf.Write(logbuf.Entry{Time: now, Level: "WARN", Message: "dialog error", TurnID: "t-2"})
	buf.Write(logbuf.Entry{Time: now, Level: "ERROR", Message: "turn failed", TurnID: "t-2"})

	srv := newTestServer("", WithLogs(buf))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"turn handled", "dialog error", "turn failed"}},
		{"level", "?level=warn", []string{"dialog error", "turn failed"}},
		{"turn", "?turn_id=t-1", []string{"turn handled"}},
		{"limit", "?limit=1", []string{"turn failed"}},
		{"since", "?since=" + strconv.FormatInt(now.Add(-time.Second).UnixMilli(), 10), []string{"dialog error", "turn failed"}},
		{"bad limit ignored", "?limit=zero", []string{"turn handled", "dialog error", "turn failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, "GET", "/api/logs"+tt.query, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var entries []logbuf.Entry
			if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("got %d entries, want %d: %+v", len(entries), len(tt.want), entries)
			}
			for i, e := range entries {
				if e.Message != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, e.Message, tt.want[i])
				}
			}
		})
	}
}

func TestGetLogs_NoBuffer(t *testing.T) {
	srv := newTestServer("")
	w := serve(srv, "GET", "/api/logs", "", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestAuth_Required(t *testing.T) {
	srv := newTestServer("secret-key", WithLogs(logbuf.New(1)))

	if w := serve(srv, "GET", "/api/logs", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", w.Code)
	}
	if w := serve(srv, "GET", "/api/logs", "Bearer wrong-key", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}
	if w := serve(srv, "GET", "/api/logs", "Bearer secret-key", nil); w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", w.Code)
	}
}

func TestRecover(t *testing.T) {
	srv := newTestServer("", WithMessages(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	w := serve(srv, "POST", "/api/messages", "", strings.NewReader(`{}`))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNewServer_WarnsOpenLogs(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	NewServer(Config{Host: "127.0.0.1"}, logger, WithLogs(logbuf.New(1)))
	if !strings.Contains(out.String(), "without authentication") {
		t.Errorf("missing warning, log = %q", out.String())
	}

	out.Reset()
	NewServer(Config{Host: "127.0.0.1", Key: "k"}, logger, WithLogs(logbuf.New(1)))
	if strings.Contains(out.String(), "without authentication") {
		t.Errorf("unexpected warning with key set, log = %q", out.String())
	}
}

func TestStart_ReturnsAfterShutdown(t *testing.T) {
	srv := newTestServer("")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start = %v, want nil", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
