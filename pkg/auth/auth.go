// Package auth obtains bearer tokens for dataspace services and attaches
// them to outgoing requests.
//
// Two authorizers are provided: Manager performs the OAuth2 client
// credentials grant against a Keycloak-style identity provider, APIKey adds a
// static header as required by connector management APIs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrNotConnected is returned when a token is requested before Connect succeeded.
	ErrNotConnected = errors.New("authentication service is not connected")

	// ErrNoToken is returned when the identity provider answers without an access token.
	ErrNoToken = errors.New("failed to retrieve token")
)

// Authorizer adds authorization headers to an outgoing request.
type Authorizer interface {
	AddAuthHeader(ctx context.Context, header http.Header) error
}

// Config holds the identity provider settings.
type Config struct {
	// AuthURL is the Keycloak base URL, e.g. "https://idp.example.com/auth/".
	AuthURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Timeout bounds discovery and token requests.
	Timeout time.Duration
}

// DefaultScopes mirror what Keycloak returns for service accounts.
var DefaultScopes = []string{"openid", "profile", "email"}

// Manager performs the client credentials grant and caches the token until
// it expires.
type Manager struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.RWMutex
	connected bool
	source    oauth2.TokenSource
}

// NewManager validates cfg and returns an unconnected manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("auth url is required")
	}
	if cfg.Realm == "" {
		return nil, fmt.Errorf("realm is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client id and client secret are required")
	}
	if cfg.Scopes == nil {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Manager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewLogger(logging.ComponentAuth),
	}, nil
}

// TokenURL is the realm's OpenID Connect token endpoint.
func (m *Manager) TokenURL() string {
	return m.realmURL() + "/protocol/openid-connect/token"
}

// WellKnownURL is the realm's OpenID Connect discovery document.
func (m *Manager) WellKnownURL() string {
	return m.realmURL() + "/.well-known/openid-configuration"
}

func (m *Manager) realmURL() string {
	return strings.TrimRight(m.cfg.AuthURL, "/") + "/realms/" + m.cfg.Realm
}

// Connect verifies the identity provider is reachable and prepares the
// token source. Tokens are fetched lazily.
func (m *Manager) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.WellKnownURL(), nil)
	if err != nil {
		return fmt.Errorf("create well-known request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to access the identity provider: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unable to access the identity provider: well-known returned %d", resp.StatusCode)
	}

	cc := clientcredentials.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		TokenURL:     m.TokenURL(),
		Scopes:       m.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, m.httpClient)

	m.mu.Lock()
	m.source = cc.TokenSource(tokenCtx)
	m.connected = true
	m.mu.Unlock()

	m.logger.Info().Str("realm", m.cfg.Realm).Msg("Connected to identity provider")
	return nil
}

// Connected reports whether Connect succeeded.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Token returns a valid access token, refreshing it when expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	source, connected := m.source, m.connected
	m.mu.RUnlock()

	if !connected {
		return "", ErrNotConnected
	}

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}
	return tok.AccessToken, nil
}

// AddAuthHeader sets "Authorization: Bearer <token>".
func (m *Manager) AddAuthHeader(ctx context.Context, header http.Header) error {
	token, err := m.Token(ctx)
	if err != nil {
		return err
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}

// APIKey is a static header authorizer.
type APIKey struct {
	Header string
	Value  string
}

// AddAuthHeader sets the configured header; Header defaults to X-Api-Key.
func (k APIKey) AddAuthHeader(_ context.Context, header http.Header) error {
	name := k.Header
	if name == "" {
		name = "X-Api-Key"
	}
	header.Set(name, k.Value)
	return nil
}
