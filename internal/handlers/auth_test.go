package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/libs/auth"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:      "user-1",
		TenantID: tenantID,
		Role:     "staff",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWithAuthPassesClaims(t *testing.T) {
	var gotTenant string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		gotTenant = claims.TenantID
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "tenant-1"))
	rec := httptest.NewRecorder()
	WithAuth(testSecret)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotTenant != "tenant-1" {
		t.Fatalf("tenant = %q, want tenant-1", gotTenant)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	WithAuth(testSecret)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWithAuthRejectsBadSignature(t *testing.T) {
	token, err := auth.SignHS256(auth.Claims{TenantID: "tenant-1"}, "wrong-secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	WithAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWithAuthRejectsTenantlessToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, ""))
	rec := httptest.NewRecorder()
	WithAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestWriteDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"slot conflict", model.ErrSlotConflict, http.StatusConflict},
		{"not found", model.ErrNotFound, http.StatusNotFound},
		{"invalid transition", model.ErrInvalidTransition, http.StatusConflict},
		{"validation", model.Invalid("start_time", "required"), http.StatusBadRequest},
		{"calendar not configured", calendar.ErrNotConfigured, http.StatusPreconditionFailed},
		{"calendar auth required", calendar.ErrAuthRequired, http.StatusUnauthorized},
		{"provider unavailable", calendar.ErrProviderUnavailable, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not json: %v", err)
			}
			if body.Error == "" {
				t.Fatal("error message is empty")
			}
		})
	}
}
