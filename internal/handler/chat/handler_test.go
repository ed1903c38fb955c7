package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chobits/backend/internal/analysis/emotion"
	"github.com/zhouzirui/chobits/backend/internal/model/chat"
	"github.com/zhouzirui/chobits/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/chobits/backend/internal/service/chat"
	"github.com/zhouzirui/chobits/backend/internal/service/companion"
)

func setupRouter() (*chi.Mux, *chatservice.Service, persona.Store) {
	chatSvc := chatservice.NewService()
	store := persona.NewMemoryStore(persona.Seed())
	turns := companion.NewService(chatSvc, store, nil, nil)
	handler := New(chatSvc, store, turns)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, store
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionValidPersona(t *testing.T) {
	r, chatSvc, store := setupRouter()
	personas := store.List()

	resp := do(r, http.MethodPost, "/session", map[string]string{"personaId": personas[0].ID})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	messages, err := chatSvc.LoadTranscript(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected opening line message, got %d messages", len(messages))
	}
	if messages[0].Content != "ちぃ！主人，早上好！" {
		t.Fatalf("unexpected opening content %q", messages[0].Content)
	}
	if messages[0].Role != chat.RoleAssistant {
		t.Fatalf("unexpected opening role %q", messages[0].Role)
	}
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _, _ := setupRouter()

	resp := do(r, http.MethodPost, "/session", map[string]string{"personaId": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionMissingPersonaID(t *testing.T) {
	r, _, _ := setupRouter()

	resp := do(r, http.MethodPost, "/session", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSaveAndListMessages(t *testing.T) {
	r, chatSvc, _ := setupRouter()
	session, err := chatSvc.CreateSession(context.Background(), "chii")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	resp := do(r, http.MethodPost, "/messages", map[string]string{
		"sessionId": session.ID,
		"role":      "user",
		"content":   "你好",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(r, http.MethodGet, "/session/"+session.ID+"/messages", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Messages) != 1 || body.Messages[0].Content != "你好" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestSaveMessageErrors(t *testing.T) {
	r, chatSvc, _ := setupRouter()
	session, _ := chatSvc.CreateSession(context.Background(), "chii")

	resp := do(r, http.MethodPost, "/messages", map[string]string{"sessionId": session.ID, "role": "robot"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad role, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, "/messages", map[string]string{"sessionId": "missing", "role": "user"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing session, got %d", resp.Code)
	}
}

func TestEmotionEndpoints(t *testing.T) {
	r, chatSvc, _ := setupRouter()
	session, _ := chatSvc.CreateSession(context.Background(), "chii")
	path := "/session/" + session.ID + "/emotion"

	resp := do(r, http.MethodGet, path, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got emotionPayload
	_ = json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Emotion != emotion.Default {
		t.Fatalf("expected default emotion, got %q", got.Emotion)
	}

	resp = do(r, http.MethodPut, path, map[string]string{"emotion": "{{shy}}"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Emotion != emotion.Shy || got.Asset != emotion.AssetPath(emotion.Shy) {
		t.Fatalf("unexpected emotion payload %+v", got)
	}

	resp = do(r, http.MethodPut, path, map[string]string{"emotion": "dancing"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown emotion, got %d", resp.Code)
	}

	resp = do(r, http.MethodGet, "/session/missing/emotion", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
