package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query, k2:ops:admin")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "analyst" {
		t.Fatalf("Principal = %q", identity.Principal)
	}
	if !identity.HasRole(RoleQuery) || identity.HasRole(RoleAdmin) {
		t.Fatalf("roles = %v", identity.Roles)
	}

	admin, ok := validator.Validate(context.Background(), "k2")
	if !ok || !admin.HasRole(RoleQuery) {
		t.Fatalf("admin identity = %+v, ok=%v", admin, ok)
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, keyList := range []string{
		"invalid",
		"k1:analyst:",
		"k1:analyst:superuser",
		"k1:a:query,k1:b:admin",
	} {
		if _, err := NewStaticAPIKeyValidator(keyList); err == nil {
			t.Fatalf("expected parse error for %q", keyList)
		}
	}
}

func TestAuthorize(t *testing.T) {
	if err := Authorize(context.Background(), RoleAdmin); err != nil {
		t.Fatalf("Authorize() without identity error = %v", err)
	}
	ctx := WithIdentity(context.Background(), Identity{Principal: "analyst", Roles: []string{RoleQuery}})
	if err := Authorize(ctx, RoleQuery); err != nil {
		t.Fatalf("Authorize(query) error = %v", err)
	}
	if err := Authorize(ctx, RoleAdmin); err == nil {
		t.Fatal("expected admin to be refused")
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, key := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("key %q: status = %d, want %d", key, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Principal != "analyst" {
			t.Fatalf("Principal = %q", identity.Principal)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []struct{ name, value string }{
		{"X-API-Key", "k1"},
		{"Authorization", "Bearer k1"},
		{"Authorization", "bearer k1"},
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		req.Header.Set(header.name, header.value)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d", header.name, rr.Code)
		}
	}
}
