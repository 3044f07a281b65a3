package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
)

// DefaultBPNDiscoveryBasePath is appended to the endpoint address the finder
// returns for the BPN discovery service.
const DefaultBPNDiscoveryBasePath = "/api/v1.0/administration/connectors/bpnDiscovery"

// BPNDiscoveryConfig configures BPNDiscoveryService.
type BPNDiscoveryConfig struct {
	// DiscoveryKey is the finder type of the BPN discovery service.
	DiscoveryKey string
	BasePath     string
}

// DefaultBPNDiscoveryConfig returns the Tractus-X defaults.
func DefaultBPNDiscoveryConfig() BPNDiscoveryConfig {
	return BPNDiscoveryConfig{
		DiscoveryKey: "manufacturerPartId",
		BasePath:     DefaultBPNDiscoveryBasePath,
	}
}

// Identifier links an asset identifier of some type to the caller's BPN.
type Identifier struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// BPNEntry is one identifier registration returned by BPN discovery.
type BPNEntry struct {
	Type       string `json:"type"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	ResourceID string `json:"resourceId"`
}

type searchFilter struct {
	Type string   `json:"type"`
	Keys []string `json:"keys"`
}

type searchRequest struct {
	SearchFilter []searchFilter `json:"searchFilter"`
}

type searchResponse struct {
	BPNs []BPNEntry `json:"bpns"`
}

// BPNDiscoveryService resolves which business partners registered a given
// asset identifier and manages the caller's own registrations.
type BPNDiscoveryService struct {
	finder *FinderService
	cache  *URLCache
	cfg    BPNDiscoveryConfig
}

// NewBPNDiscoveryService creates the service. cache may be shared with other
// discovery services.
func NewBPNDiscoveryService(finder *FinderService, cache *URLCache, cfg BPNDiscoveryConfig) *BPNDiscoveryService {
	defaults := DefaultBPNDiscoveryConfig()
	if cfg.DiscoveryKey == "" {
		cfg.DiscoveryKey = defaults.DiscoveryKey
	}
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cache == nil {
		cache = NewURLCache(DefaultCacheTimeout, false)
	}
	return &BPNDiscoveryService{finder: finder, cache: cache, cfg: cfg}
}

// ServiceURL returns the BPN discovery API root.
func (s *BPNDiscoveryService) ServiceURL(ctx context.Context) (string, error) {
	endpoint, err := s.cache.Resolve(ctx, s.cfg.DiscoveryKey, s.finder.Fetch(s.cfg.DiscoveryKey))
	if err != nil {
		return "", err
	}
	return client.JoinURL(endpoint, s.cfg.BasePath), nil
}

// SearchBPNs returns every registration matching keys of identifierType.
func (s *BPNDiscoveryService) SearchBPNs(ctx context.Context, identifierType string, keys []string) ([]BPNEntry, error) {
	base, err := s.ServiceURL(ctx)
	if err != nil {
		return nil, err
	}

	req := searchRequest{SearchFilter: []searchFilter{{Type: identifierType, Keys: keys}}}
	var resp searchResponse
	if err := s.finder.client.JSON(ctx, http.MethodPost, client.JoinURL(base, "search"), nil, req, &resp); err != nil {
		return nil, fmt.Errorf("bpn discovery search: %w", err)
	}
	return resp.BPNs, nil
}

// FindBPNs returns the distinct BPNs registered for keys of identifierType.
func (s *BPNDiscoveryService) FindBPNs(ctx context.Context, identifierType string, keys []string) ([]string, error) {
	entries, err := s.SearchBPNs(ctx, identifierType, keys)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	bpns := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Value]; dup || e.Value == "" {
			continue
		}
		seen[e.Value] = struct{}{}
		bpns = append(bpns, e.Value)
	}
	return bpns, nil
}

// SetIdentifier registers the caller's BPN for one identifier.
func (s *BPNDiscoveryService) SetIdentifier(ctx context.Context, identifierType, key string) (BPNEntry, error) {
	base, err := s.ServiceURL(ctx)
	if err != nil {
		return BPNEntry{}, err
	}

	var entry BPNEntry
	if err := s.finder.client.JSON(ctx, http.MethodPost, base, nil, Identifier{Type: identifierType, Key: key}, &entry); err != nil {
		return BPNEntry{}, fmt.Errorf("bpn discovery set identifier: %w", err)
	}
	return entry, nil
}

// SetIdentifiers registers several identifiers in one batch call.
func (s *BPNDiscoveryService) SetIdentifiers(ctx context.Context, identifiers []Identifier) ([]BPNEntry, error) {
	base, err := s.ServiceURL(ctx)
	if err != nil {
		return nil, err
	}

	var entries []BPNEntry
	if err := s.finder.client.JSON(ctx, http.MethodPost, client.JoinURL(base, "batch"), nil, identifiers, &entries); err != nil {
		return nil, fmt.Errorf("bpn discovery batch set: %w", err)
	}
	return entries, nil
}

// DeleteIdentifier removes a registration by its resource id.
func (s *BPNDiscoveryService) DeleteIdentifier(ctx context.Context, resourceID string) error {
	base, err := s.ServiceURL(ctx)
	if err != nil {
		return err
	}

	if err := s.finder.client.JSON(ctx, http.MethodDelete, client.JoinURL(base, url.PathEscape(resourceID)), nil, nil, nil); err != nil {
		return fmt.Errorf("bpn discovery delete identifier: %w", err)
	}
	return nil
}
