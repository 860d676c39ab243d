// Package identity resolves directory identities to email addresses.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when the directory has no email for an identity.
var ErrNotFound = errors.New("identity: not found")

// Resolver looks up the email address of a directory identity.
type Resolver interface {
	ResolveEmail(ctx context.Context, identity string) (string, error)
}

// Static resolves from a fixed map, typically the directory.static config
// entries. Keys are matched case-insensitively.
type Static map[string]string

// ResolveEmail implements Resolver.
func (s Static) ResolveEmail(_ context.Context, identity string) (string, error) {
	for k, v := range s {
		if strings.EqualFold(k, identity) && v != "" {
			return v, nil
		}
	}
	return "", ErrNotFound
}

// Chain tries each resolver in order and returns the first email found.
// ErrNotFound from one resolver moves on to the next; other errors are
// remembered and returned if nothing resolves.
type Chain []Resolver

// ResolveEmail implements Resolver.
func (c Chain) ResolveEmail(ctx context.Context, identity string) (string, error) {
	var lastErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		email, err := r.ResolveEmail(ctx, identity)
		if err == nil && email != "" {
			return email, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNotFound
}

// GraphOpts configures a Graph resolver.
type GraphOpts struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	UserURL      string        // must contain "{id}"
	Timeout      time.Duration // per lookup; defaults to 10s
	HTTPClient   *http.Client  // base client for token and user requests
}

// Graph resolves identities against a JSON user endpoint protected by
// OAuth2 client credentials, such as Microsoft Graph's /users/{id}.
type Graph struct {
	client  *http.Client
	userURL string
	timeout time.Duration
}

// NewGraph creates a Graph resolver.
func NewGraph(opts GraphOpts) (*Graph, error) {
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("identity: graph: token URL is required")
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("identity: graph: client credentials are required")
	}
	if !strings.Contains(opts.UserURL, "{id}") {
		return nil, fmt.Errorf("identity: graph: user URL must contain {id}")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}
	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	return &Graph{
		client:  cc.Client(ctx),
		userURL: opts.UserURL,
		timeout: timeout,
	}, nil
}

type graphUser struct {
	Mail              string `json:"mail"`
	Email             string `json:"email"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// ResolveEmail implements Resolver.
func (g *Graph) ResolveEmail(ctx context.Context, identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	u := strings.ReplaceAll(g.userURL, "{id}", url.PathEscape(identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("identity: graph: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity: graph: lookup %s: %w", identity, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("identity: graph: lookup %s: status %d: %s", identity, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user graphUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("identity: graph: decode %s: %w", identity, err)
	}
	for _, candidate := range []string{user.Mail, user.Email, user.UserPrincipalName} {
		if strings.Contains(candidate, "@") {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}
