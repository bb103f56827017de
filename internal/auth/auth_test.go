package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthDisabledWithoutSecret(t *testing.T) {
	a := New("")
	rec := httptest.NewRecorder()
	a.RequireAuth(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	a := New("top-secret")
	valid, err := a.GenerateJWT("popup", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	expired, err := a.GenerateJWT("popup", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	foreign, err := New("other-secret").GenerateJWT("popup", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + valid, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"no bearer prefix", valid, http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}

	handler := a.RequireAuth(okHandler())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/records", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestValidateJWTRejectsOtherAlgorithms(t *testing.T) {
	a := New("top-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "popup"})
	signed, err := token.SignedString([]byte("top-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := a.ValidateJWT(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ValidateJWT error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateJWTReturnsSubject(t *testing.T) {
	a := New("top-secret")
	signed, err := a.GenerateJWT("ctl", 0)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	claims, err := a.ValidateJWT(signed)
	if err != nil {
		t.Fatalf("ValidateJWT returned error: %v", err)
	}
	if claims.Subject != "ctl" {
		t.Fatalf("subject = %q, want ctl", claims.Subject)
	}
}

func TestGenerateJWTWithoutSecret(t *testing.T) {
	if _, err := New("").GenerateJWT("x", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestGenerateJWTNegativeTTLIsExpired(t *testing.T) {
	a := New("top-secret")
	signed, err := a.GenerateJWT("ctl", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	if _, err := a.ValidateJWT(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ValidateJWT error = %v, want ErrInvalidToken", err)
	}
}
