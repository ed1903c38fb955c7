package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
	"github.com/zhouzirui/chobits/backend/internal/service/notify"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	chats := chatservice.NewService(chatservice.WithPersister(db))
	store := persona.NewMemoryStore(persona.Seed())
	return NewRouter(Deps{
		Personas: store,
		Chats:    chats,
		Turns:    companion.NewService(chats, store, nil, nil),
		Backup:   db,
		Logger:   zerolog.Nop(),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/api/personas", http.StatusOK},
		{http.MethodGet, "/api/backup", http.StatusOK},
		{http.MethodGet, "/api/session/missing/messages", http.StatusNotFound},
		{http.MethodGet, "/api/stream/missing", http.StatusBadRequest},
		{http.MethodGet, "/api/ws/missing", http.StatusNotFound},
		{http.MethodPost, "/api/speech/synthesize", http.StatusNotFound},
		{http.MethodOptions, "/api/personas", http.StatusNoContent},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s %s: missing CORS header", tc.method, tc.path)
		}
	}
}

func TestRelayRouter(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r := NewRelayRouter(notify.NewService(db), zerolog.Nop())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tokens", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "{\"tokens\":[]}\n" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
