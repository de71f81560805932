package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhyniox/voicerelay/internal/admission"
	"github.com/rhyniox/voicerelay/internal/config"
	"github.com/rhyniox/voicerelay/internal/history"
	"github.com/rhyniox/voicerelay/internal/sanitize"
)

// stubCompleter satisfies Completer without any network traffic.
type stubCompleter struct {
	reply string
	err   error

	calls      int
	lastSystem string
	lastUser   string
}

func (s *stubCompleter) Ask(ctx context.Context, system, user string) (string, error) {
	s.calls++
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// newTestServer wires a Server with generous throttles and no reply
// smoothing so tests run back-to-back requests deterministically.
func newTestServer(t *testing.T, comp Completer) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Limits.ReplyDelayMinMS = 0
	cfg.Limits.ReplyDelayMaxMS = 0

	gates := admission.NewController(
		admission.NewRateGate(time.Minute, 1000),
		admission.NewCooldownGate(time.Nanosecond),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewServer(cfg, gates, sanitize.NewValidator(nil), comp, history.NewLog(), logger)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:54321"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode reply body %q: %v", rec.Body.String(), err)
	}
	return body.Reply
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})
	rec := doRequest(t, s.Handler(), http.MethodGet, "/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "up and running") {
		t.Errorf("unexpected root body: %s", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})
	rec := doRequest(t, s.Handler(), http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "OK" {
		t.Errorf("status field = %q, want OK", body["status"])
	}
}

func TestHandleVersion(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})
	rec := doRequest(t, s.Handler(), http.MethodGet, "/version", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["version"]; !ok {
		t.Error("version body missing the version field")
	}
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})

	rec := doRequest(t, s.Handler(), http.MethodOptions, "/ask", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q, want POST included", got)
	}
}

func TestHandleAsk_Success(t *testing.T) {
	comp := &stubCompleter{reply: "**Paris** is the capital! Great question."}
	s := newTestServer(t, comp)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/ask",
		`{"text":"What is the capital of France","userName":"Sam","mode":"live"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := decodeReply(t, rec); got != "Paris is the capital! Great question." {
		t.Errorf("reply = %q, want the markdown stripped", got)
	}

	if comp.calls != 1 {
		t.Fatalf("completer called %d times, want 1", comp.calls)
	}
	if comp.lastUser != "what is the capital of france" {
		t.Errorf("completer received %q, want the cleaned text", comp.lastUser)
	}
	if !strings.Contains(comp.lastSystem, "You are talking to Sam.") {
		t.Error("system prompt should address the caller by name")
	}

	if s.log.Len() != 1 {
		t.Fatalf("history has %d entries, want 1", s.log.Len())
	}
	entry := s.log.Recent(1)[0]
	if entry.User != "what is the capital of france" {
		t.Errorf("logged user text = %q", entry.User)
	}
	if entry.AI != "Paris is the capital! Great question." {
		t.Errorf("logged reply = %q", entry.AI)
	}
}

func TestHandleAsk_BadBody(t *testing.T) {
	comp := &stubCompleter{}
	s := newTestServer(t, comp)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", "not json at all")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeReply(t, rec); got != replyNoText {
		t.Errorf("reply = %q, want %q", got, replyNoText)
	}
	if comp.calls != 0 {
		t.Error("completer should not be called for a bad body")
	}
}

func TestHandleAsk_EmptyText(t *testing.T) {
	comp := &stubCompleter{}
	s := newTestServer(t, comp)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeReply(t, rec); got != replyNoText {
		t.Errorf("reply = %q, want %q", got, replyNoText)
	}
	if comp.calls != 0 {
		t.Error("completer should not be called for empty text")
	}
}

func TestHandleAsk_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantReply string
	}{
		{"too short", "hi", sanitize.ReasonUnclear},
		{"gibberish", "hahahaha", sanitize.ReasonGibberish},
		{"no substance", "is it a dog", sanitize.ReasonUnclear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := &stubCompleter{}
			s := newTestServer(t, comp)

			body, _ := json.Marshal(map[string]string{"text": tt.text})
			rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", string(body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeReply(t, rec); got != tt.wantReply {
				t.Errorf("reply = %q, want %q", got, tt.wantReply)
			}
			if comp.calls != 0 {
				t.Error("rejected input must not reach the completer")
			}
		})
	}
}

func TestHandleAsk_LiveWordCap(t *testing.T) {
	words := make([]string, 30)
	for i := range words {
		words[i] = "word" + string(rune('a'+i%26))
	}
	long := strings.Join(words, " ")

	t.Run("live mode rejects", func(t *testing.T) {
		comp := &stubCompleter{reply: "ok then"}
		s := newTestServer(t, comp)

		body, _ := json.Marshal(map[string]string{"text": long, "mode": "live"})
		rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", string(body))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if got := decodeReply(t, rec); got != replyTooLong {
			t.Errorf("reply = %q, want %q", got, replyTooLong)
		}
		if comp.calls != 0 {
			t.Error("over-cap live input must not reach the completer")
		}
	})

	t.Run("record mode accepts", func(t *testing.T) {
		comp := &stubCompleter{reply: "Long answer accepted."}
		s := newTestServer(t, comp)

		body, _ := json.Marshal(map[string]string{"text": long, "mode": "record"})
		rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", string(body))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
		}
		if comp.calls != 1 {
			t.Errorf("completer called %d times, want 1", comp.calls)
		}
	})
}

func TestHandleAsk_Cooldown(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.ReplyDelayMinMS = 0
	cfg.Limits.ReplyDelayMaxMS = 0

	gates := admission.NewController(
		admission.NewRateGate(time.Minute, 1000),
		admission.NewCooldownGate(3*time.Second),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(cfg, gates, sanitize.NewValidator(nil), &stubCompleter{reply: "sure thing"}, history.NewLog(), logger)

	body := `{"text":"tell me something interesting"}`
	if rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", body); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := decodeReply(t, rec); got != replyCooldown {
		t.Errorf("reply = %q, want %q", got, replyCooldown)
	}
}

func TestHandleAsk_RateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.ReplyDelayMinMS = 0
	cfg.Limits.ReplyDelayMaxMS = 0

	gates := admission.NewController(
		admission.NewRateGate(time.Minute, 1),
		admission.NewCooldownGate(time.Nanosecond),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(cfg, gates, sanitize.NewValidator(nil), &stubCompleter{reply: "sure thing"}, history.NewLog(), logger)

	body := `{"text":"tell me something interesting"}`
	if rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", body); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec := doRequest(t, s.Handler(), http.MethodPost, "/ask", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := decodeReply(t, rec); got != replyRateLimited {
		t.Errorf("reply = %q, want %q", got, replyRateLimited)
	}
}
