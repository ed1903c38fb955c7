package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	"github.com/zhouzirui/chobits/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
)

type llmFunc func(ctx context.Context, req ai.CallRequest) (string, error)

func (f llmFunc) Call(ctx context.Context, req ai.CallRequest) (string, error) { return f(ctx, req) }

func setup(t *testing.T, llm llmFunc) (*chi.Mux, string) {
	t.Helper()
	chatSvc := chatservice.NewService()
	store := persona.NewMemoryStore(persona.Seed())
	turns := companion.NewService(chatSvc, store, llm, nil, companion.WithPlayback(0, ""))

	session, err := chatSvc.CreateSession(context.Background(), "chii")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	New(turns, zerolog.Nop()).RegisterRoutes(r)
	return r, session.ID
}

func events(body string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestStreamPlaysReply(t *testing.T) {
	r, sessionID := setup(t, func(context.Context, ai.CallRequest) (string, error) {
		return "{{happy}}好", nil
	})

	req := httptest.NewRequest(http.MethodGet, "/stream/"+sessionID+"?message="+url.QueryEscape("你好"), nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	got := strings.Join(events(rr.Body.String()), ",")
	want := "start,emotion,emotion,reveal,emotion,message,end"
	if got != want {
		t.Fatalf("unexpected event order\n got: %s\nwant: %s", got, want)
	}
	if !strings.Contains(rr.Body.String(), `"persistent":true`) {
		t.Fatal("missing persistent emotion event")
	}
}

func TestStreamReportsModelError(t *testing.T) {
	r, sessionID := setup(t, func(context.Context, ai.CallRequest) (string, error) {
		return "", errors.New("boom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream/"+sessionID+"?message=hi", nil))

	got := strings.Join(events(rr.Body.String()), ",")
	if got != "start,emotion,emotion,error,end" {
		t.Fatalf("unexpected events %s", got)
	}
	if !strings.Contains(rr.Body.String(), `"error":"boom"`) {
		t.Fatalf("missing error payload: %s", rr.Body.String())
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	r, sessionID := setup(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream/"+sessionID, nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	r, _ := setup(t, nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream/missing?message=hi", nil))

	if !strings.Contains(rr.Body.String(), "session not found") {
		t.Fatalf("expected session error, got %s", rr.Body.String())
	}
}
