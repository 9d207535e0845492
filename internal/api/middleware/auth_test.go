package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

const (
	testKeyID  = "test-key-fd"
	testIssuer = "https://idp.test/realms/frontdesk"
)

// mockResolver — пользователи по имени.
type mockResolver struct {
	actors map[string]rbac.Actor
	err    error
}

func (m *mockResolver) Resolve(_ context.Context, username string) (rbac.Actor, error) {
	if m.err != nil {
		return rbac.Actor{}, m.err
	}
	a, ok := m.actors[username]
	if !ok {
		return rbac.Actor{}, fmt.Errorf("%w: %s", service.ErrUnknownUser, username)
	}
	return a, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, resolver ActorResolver) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, testIssuer, resolver, testLogger())
}

func generateToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func userClaims(username string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "idp-" + username,
		"preferred_username": username,
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	resolver := &mockResolver{actors: map[string]rbac.Actor{
		"director": {UserID: 2, Username: "director", Role: rbac.RoleDirector},
	}}
	auth := newTestJWTAuth(t, key, resolver)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatal("actor не найден в контексте")
		}
		if actor.UserID != 2 || actor.Role != rbac.RoleDirector {
			t.Errorf("actor = %+v", actor)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, userClaims("director", time.Now().Add(time.Hour))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	resolver := &mockResolver{actors: map[string]rbac.Actor{
		"director": {UserID: 2, Username: "director", Role: rbac.RoleDirector},
	}}

	wrongIssuer := userClaims("director", time.Now().Add(time.Hour))
	wrongIssuer["iss"] = "https://evil.test"
	noUsername := userClaims("director", time.Now().Add(time.Hour))
	delete(noUsername, "preferred_username")
	noExp := userClaims("director", time.Now().Add(time.Hour))
	delete(noExp, "exp")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"нет заголовка", "", http.StatusUnauthorized},
		{"не Bearer", "Basic abc", http.StatusUnauthorized},
		{"пустой токен", "Bearer ", http.StatusUnauthorized},
		{"мусор", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"просрочен", "Bearer " + generateToken(t, key, userClaims("director", time.Now().Add(-time.Hour))), http.StatusUnauthorized},
		{"чужой ключ", "Bearer " + generateToken(t, otherKey, userClaims("director", time.Now().Add(time.Hour))), http.StatusUnauthorized},
		{"чужой issuer", "Bearer " + generateToken(t, key, wrongIssuer), http.StatusUnauthorized},
		{"без exp", "Bearer " + generateToken(t, key, noExp), http.StatusUnauthorized},
		{"без username", "Bearer " + generateToken(t, key, noUsername), http.StatusUnauthorized},
		{"не заведён в БД", "Bearer " + generateToken(t, key, userClaims("stranger", time.Now().Add(time.Hour))), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newTestJWTAuth(t, key, resolver)
			handler := auth.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("handler не должен вызываться")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d, тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestJWTAuth_ResolverFailure(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, &mockResolver{err: errors.New("connection refused")})

	handler := auth.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler не должен вызываться")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, userClaims("director", time.Now().Add(time.Hour))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("статус = %d, ожидался 500", rec.Code)
	}
}

func TestRequireActor(t *testing.T) {
	handler := RequireActor(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("без actor: статус = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), rbac.Actor{UserID: 1, Role: rbac.RoleAdministrator}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("с actor: статус = %d", rec.Code)
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
	}{
		{"ключи есть", http.StatusOK, string(buildJWKSetJSON(&key.PublicKey, testKeyID)), "ok"},
		{"пустой набор", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"не JSON", http.StatusOK, `<html>`, "degraded"},
		{"500", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			status, _ := NewJWKSReadinessChecker(srv.URL, time.Second).CheckReady(context.Background())
			if status != tt.wantStatus {
				t.Errorf("статус = %s, ожидался %s", status, tt.wantStatus)
			}
		})
	}
}
