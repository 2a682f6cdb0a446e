package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fakto/crmbot/internal/crmerr"
)

func testAuth(t *testing.T, handler http.HandlerFunc) *AuthClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{URL: srv.URL, ServiceKey: "service-key", AnonKey: "anon-key"}
	return NewAuthWithHTTPClient(cfg, srv.Client())
}

func TestAdminCreateUserUsesServiceKey(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/admin/users" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "service-key" {
			t.Errorf("apikey = %s", got)
		}
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		if body["email_confirm"] != true {
			t.Errorf("email_confirm missing: %v", body)
		}
		_, _ = io.WriteString(w, `{"id":"auth-1","email":"maria@example.com"}`)
	})

	user, err := auth.AdminCreateUser(context.Background(), "maria@example.com", "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID != "auth-1" {
		t.Fatalf("user = %+v", user)
	}
}

func TestAdminCreateUserDuplicateEmail(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"msg":"A user with this email address has already been registered"}`)
	})

	_, err := auth.AdminCreateUser(context.Background(), "maria@example.com", "secret")
	if err == nil {
		t.Fatal("expected error")
	}
	if !crmerr.IsDuplicateEmail(err) {
		t.Fatalf("expected duplicate email classification, got %v", err)
	}
}

func TestSignInSuccessUsesAnonKey(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected endpoint: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey = %s", got)
		}
		_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","user":{"id":"auth-1","email":"maria@example.com"}}`)
	})

	sess, err := auth.SignIn(context.Background(), "maria@example.com", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if sess.AccessToken != "at" || sess.User.ID != "auth-1" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error_description":"Invalid login credentials"}`)
	})

	_, err := auth.SignIn(context.Background(), "maria@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if !crmerr.IsAuthKind(err, crmerr.AuthBadCredentials) {
		t.Fatalf("expected bad credentials classification, got %v", err)
	}
}

func TestVerifyTokenSendsBearer(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer recovery-token" {
			t.Errorf("authorization = %s", got)
		}
		_, _ = io.WriteString(w, `{"id":"auth-1","email":"maria@example.com"}`)
	})

	user, err := auth.VerifyToken(context.Background(), "recovery-token")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != "auth-1" {
		t.Fatalf("user = %+v", user)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	auth := testAuth(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"msg":"JWT expired"}`)
	})

	_, err := auth.VerifyToken(context.Background(), "stale")
	if err == nil {
		t.Fatal("expected error")
	}
	if !crmerr.IsAuthKind(err, crmerr.AuthInvalidToken) {
		t.Fatalf("expected invalid token classification, got %v", err)
	}
}

func TestParseRecoveryURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		access  string
		refresh string
		wantErr bool
	}{
		{
			name:    "full link",
			raw:     "https://proj.supabase.co/#access_token=abc&refresh_token=def&type=recovery",
			access:  "abc",
			refresh: "def",
		},
		{
			name:   "no refresh token",
			raw:    "https://proj.supabase.co/#access_token=abc&type=recovery",
			access: "abc",
		},
		{
			name:    "no fragment",
			raw:     "https://proj.supabase.co/recover",
			wantErr: true,
		},
		{
			name:    "fragment without access token",
			raw:     "https://proj.supabase.co/#type=recovery",
			wantErr: true,
		},
		{
			name:    "empty input",
			raw:     "   ",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := ParseRecoveryURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tokens.AccessToken != tt.access || tokens.RefreshToken != tt.refresh {
				t.Fatalf("tokens = %+v", tokens)
			}
		})
	}
}
