package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrBPNNotFound is returned when connector discovery does not list a BPN.
var ErrBPNNotFound = errors.New("bpn not found in connector discovery")

// ConnectorDiscoveryConfig configures ConnectorDiscoveryService.
type ConnectorDiscoveryConfig struct {
	// DiscoveryKey is the finder type of the connector discovery service.
	DiscoveryKey string

	// BPNKey and ConnectorEndpointKey name the response fields.
	BPNKey               string
	ConnectorEndpointKey string
}

// DefaultConnectorDiscoveryConfig returns the Tractus-X defaults.
func DefaultConnectorDiscoveryConfig() ConnectorDiscoveryConfig {
	return ConnectorDiscoveryConfig{
		DiscoveryKey:         "bpn",
		BPNKey:               "bpn",
		ConnectorEndpointKey: "connectorEndpoint",
	}
}

// ConnectorDiscoveryService finds the connector endpoints a business partner
// publishes.
type ConnectorDiscoveryService struct {
	finder *FinderService
	cache  *URLCache
	cfg    ConnectorDiscoveryConfig
}

// NewConnectorDiscoveryService creates the service. The cache may be shared
// with other discovery services; nil creates a private cache with
// DefaultCacheTimeout.
func NewConnectorDiscoveryService(finder *FinderService, cache *URLCache, cfg ConnectorDiscoveryConfig) *ConnectorDiscoveryService {
	defaults := DefaultConnectorDiscoveryConfig()
	if cfg.DiscoveryKey == "" {
		cfg.DiscoveryKey = defaults.DiscoveryKey
	}
	if cfg.BPNKey == "" {
		cfg.BPNKey = defaults.BPNKey
	}
	if cfg.ConnectorEndpointKey == "" {
		cfg.ConnectorEndpointKey = defaults.ConnectorEndpointKey
	}
	if cache == nil {
		cache = NewURLCache(DefaultCacheTimeout, false)
	}
	return &ConnectorDiscoveryService{finder: finder, cache: cache, cfg: cfg}
}

// DiscoveryURL returns the connector discovery URL, refreshing it through
// the finder when the cached value expired.
func (s *ConnectorDiscoveryService) DiscoveryURL(ctx context.Context) (string, error) {
	return s.cache.Resolve(ctx, s.cfg.DiscoveryKey, s.finder.Fetch(s.cfg.DiscoveryKey))
}

// FindConnectorsByBPN returns the connector endpoints registered for bpn.
func (s *ConnectorDiscoveryService) FindConnectorsByBPN(ctx context.Context, bpn string) ([]string, error) {
	discoveryURL, err := s.DiscoveryURL(ctx)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := s.finder.client.JSON(ctx, http.MethodPost, discoveryURL, nil, []string{bpn}, &items); err != nil {
		return nil, fmt.Errorf("connector discovery: %w", err)
	}

	for _, item := range items {
		if value, _ := item[s.cfg.BPNKey].(string); value != bpn {
			continue
		}
		raw, _ := item[s.cfg.ConnectorEndpointKey].([]any)
		endpoints := make([]string, 0, len(raw))
		for _, e := range raw {
			if endpoint, ok := e.(string); ok && endpoint != "" {
				endpoints = append(endpoints, endpoint)
			}
		}
		return endpoints, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrBPNNotFound, bpn)
}
