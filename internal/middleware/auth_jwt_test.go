package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthJWT(t *testing.T) {
	const secret = "test-secret"
	valid, err := SignJWT(secret, "user-1", "id", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	expired, _ := SignJWT(secret, "user-1", "", -time.Minute)
	foreign, _ := SignJWT("other-secret", "user-1", "", time.Hour)
	noSubject, _ := SignClaims(secret, TokenClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})

	var gotUser, gotLocale string
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotLocale = LocaleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "valid header", header: "Bearer " + valid, want: http.StatusNoContent},
		{name: "valid query", query: "?token=" + valid, want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + foreign, want: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + noSubject, want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotUser, gotLocale = "", ""
			req := httptest.NewRequest(http.MethodGet, "/v1/ws"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusNoContent && (gotUser != "user-1" || gotLocale != "id") {
				t.Fatalf("context user=%q locale=%q", gotUser, gotLocale)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	const secret = "s"
	operator, _ := SignClaims(secret, TokenClaims{Role: RoleOperator, RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}})
	member, _ := SignJWT(secret, "u", "", time.Hour)

	handler := AuthJWT(secret)(RequireRole(RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	for token, want := range map[string]int{operator: http.StatusAccepted, member: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("status = %d, want %d", rec.Code, want)
		}
	}
}
