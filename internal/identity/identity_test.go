package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func graphServer(t *testing.T, users map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/users/")
		body, ok := users[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newGraph(t *testing.T, srv *httptest.Server) *Graph {
	t.Helper()
	g, err := NewGraph(GraphOpts{
		TokenURL:     srv.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
		UserURL:      srv.URL + "/users/{id}",
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func TestNewGraph_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts GraphOpts
		want string
	}{
		{"no token url", GraphOpts{ClientID: "a", ClientSecret: "b", UserURL: "u/{id}"}, "token URL is required"},
		{"no credentials", GraphOpts{TokenURL: "t", UserURL: "u/{id}"}, "client credentials are required"},
		{"no placeholder", GraphOpts{TokenURL: "t", ClientID: "a", ClientSecret: "b", UserURL: "u"}, "must contain {id}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestGraph_ResolveEmail(t *testing.T) {
	srv, tokens := graphServer(t, map[string]string{
		"u1": `{"mail":"ana@example.com","userPrincipalName":"ana@corp.onmicrosoft.com"}`,
		"u2": `{"mail":null,"userPrincipalName":"bob@corp.onmicrosoft.com"}`,
		"u3": `{"mail":"","userPrincipalName":"no-at-sign"}`,
	})
	g := newGraph(t, srv)
	ctx := context.Background()

	if got, err := g.ResolveEmail(ctx, "u1"); err != nil || got != "ana@example.com" {
		t.Errorf("u1 = %q, %v", got, err)
	}
	if got, err := g.ResolveEmail(ctx, "u2"); err != nil || got != "bob@corp.onmicrosoft.com" {
		t.Errorf("u2 = %q, %v; want UPN fallback", got, err)
	}
	if _, err := g.ResolveEmail(ctx, "u3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("u3 err = %v, want ErrNotFound", err)
	}
	if _, err := g.ResolveEmail(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := g.ResolveEmail(ctx, "  "); !errors.Is(err, ErrNotFound) {
		t.Errorf("blank err = %v, want ErrNotFound", err)
	}
	if n := atomic.LoadInt32(tokens); n != 1 {
		t.Errorf("token requests = %d, want 1 (cached)", n)
	}
}

func TestGraph_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newGraph(t, srv)
	_, err := g.ResolveEmail(context.Background(), "u1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want non-NotFound error", err)
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %q", err)
	}
}

func TestStatic(t *testing.T) {
	s := Static{"U1": "a@b.com"}
	if got, err := s.ResolveEmail(context.Background(), "u1"); err != nil || got != "a@b.com" {
		t.Errorf("ResolveEmail(u1) = %q, %v", got, err)
	}
	if _, err := s.ResolveEmail(context.Background(), "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

type resolverFunc func(ctx context.Context, identity string) (string, error)

func (f resolverFunc) ResolveEmail(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	failing := resolverFunc(func(context.Context, string) (string, error) { return "", boom })
	ctx := context.Background()

	c := Chain{nil, Static{}, failing, Static{"u1": "x@y.com"}}
	if got, err := c.ResolveEmail(ctx, "u1"); err != nil || got != "x@y.com" {
		t.Errorf("Chain = %q, %v", got, err)
	}
	if _, err := c.ResolveEmail(ctx, "u2"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want last non-NotFound error", err)
	}
	if _, err := (Chain{Static{}}).ResolveEmail(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
