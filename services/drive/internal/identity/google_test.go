package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"sub":"g-1","email":"Ada@Example.com","email_verified":true,"name":"Ada","picture":"https://img/a.png"}`))
		case "Bearer string-verified":
			_, _ = w.Write([]byte(`{"sub":"g-2","email":"b@example.com","email_verified":"true"}`))
		case "Bearer unverified":
			_, _ = w.Write([]byte(`{"sub":"g-3","email":"c@example.com","email_verified":false}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewGoogleVerifier(srv.URL)
	ctx := context.Background()

	p, err := v.Verify(ctx, "good")
	if err != nil {
		t.Fatalf("verify good token: %v", err)
	}
	if p.Subject != "g-1" || p.Email != "ada@example.com" || p.Name != "Ada" || p.Picture != "https://img/a.png" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if _, err := v.Verify(ctx, "string-verified"); err != nil {
		t.Fatalf("string email_verified should be accepted: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "rejected token", token: "bad", want: ErrInvalidToken},
		{name: "empty token", token: " ", want: ErrInvalidToken},
		{name: "unverified email", token: "unverified", want: ErrEmailNotVerified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(ctx, tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := v.Verify(ctx, "broken"); err == nil || errors.Is(err, ErrInvalidToken) {
		t.Fatalf("upstream failure should be a dependency error, got %v", err)
	}
}
