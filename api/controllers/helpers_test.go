package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/api/middleware"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// serve routes one request through a chi router so URL params resolve.
func serve(t *testing.T, method, pattern, target string, body io.Reader, h http.HandlerFunc, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, target, body)
	if userID != uuid.Nil {
		ctx := middleware.WithUserID(req.Context(), userID.String())
		ctx = middleware.WithRole(ctx, string(enums.RoleCustomer))
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
