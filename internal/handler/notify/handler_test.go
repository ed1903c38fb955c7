package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifysvc "github.com/zhouzirui/chobits/backend/internal/service/notify"
	"github.com/zhouzirui/chobits/backend/internal/storage"
)

type okSender struct{ calls int }

func (s *okSender) Send(_ context.Context, tokens []string, _ notifysvc.Push) (notifysvc.Report, error) {
	s.calls++
	return notifysvc.Report{SuccessCount: len(tokens), Responses: []notifysvc.Delivery{}}, nil
}

func setup(t *testing.T, opts ...notifysvc.Option) *chi.Mux {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := chi.NewRouter()
	New(notifysvc.NewService(db, opts...), zerolog.Nop()).RegisterRoutes(r)
	return r
}

func call(t *testing.T, r http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return rr.Code, out
}

func TestTokenLifecycle(t *testing.T) {
	r := setup(t)

	code, body := call(t, r, http.MethodPost, "/register-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing token", body["error"])

	_, body = call(t, r, http.MethodPost, "/register-token", `{"token":"a"}`)
	assert.Equal(t, float64(1), body["tokens"])
	_, body = call(t, r, http.MethodPost, "/register-token", `{"token":"a"}`)
	assert.Equal(t, float64(1), body["tokens"])

	_, body = call(t, r, http.MethodGet, "/tokens", "")
	assert.Equal(t, []any{"a"}, body["tokens"])

	code, _ = call(t, r, http.MethodPost, "/unregister-token", `{"token":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = call(t, r, http.MethodPost, "/unregister-token", `{"token":"a"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestNotifyWithoutSender(t *testing.T) {
	r := setup(t)
	code, body := call(t, r, http.MethodPost, "/notify", `{"title":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, body["error"])
}

func TestNotifyDelivery(t *testing.T) {
	sender := &okSender{}
	r := setup(t, notifysvc.WithSender(sender))

	_, body := call(t, r, http.MethodPost, "/notify", `{}`)
	assert.Equal(t, float64(0), body["delivered"])

	call(t, r, http.MethodPost, "/register-token", `{"token":"a"}`)
	_, body = call(t, r, http.MethodPost, "/notify", `{}`)
	assert.Equal(t, float64(1), body["successCount"])
	assert.Equal(t, 1, sender.calls)
}

func TestGenerateAndMarkRead(t *testing.T) {
	r := setup(t)

	code, body := call(t, r, http.MethodPost, "/generate-notification", `{"messageType":"meal","coreMemory":"喜欢草莓"}`)
	require.Equal(t, http.StatusOK, code)
	n := body["notification"].(map[string]any)
	assert.Equal(t, "meal", n["type"])
	assert.Equal(t, "Chobits", n["title"])
	assert.Equal(t, "(来自: 喜欢草莓...)", n["memory"])
	assert.Equal(t, false, n["read"])

	_, body = call(t, r, http.MethodPost, "/mark-notification-read", `{"notificationId":"`+n["id"].(string)+`"}`)
	assert.Equal(t, true, body["ok"])
	_, body = call(t, r, http.MethodPost, "/mark-notification-read", `{"notificationId":"missing"}`)
	assert.Equal(t, true, body["ok"])

	_, body = call(t, r, http.MethodGet, "/pending-notifications", "")
	all := body["notifications"].([]any)
	require.Len(t, all, 1)
	assert.Equal(t, true, all[0].(map[string]any)["read"])

	_, body = call(t, r, http.MethodGet, "/pending-notifications?unread=1", "")
	assert.Empty(t, body["notifications"])
}
