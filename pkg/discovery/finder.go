// Package discovery resolves dataspace service endpoints through the central
// discovery finder and the services it points to: connector discovery (BPN →
// connector endpoints) and BPN discovery (asset identifier → BPN).
//
// Resolved service URLs are memoized in a URLCache that prefers a stale URL
// over a failed refresh.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
)

var (
	// ErrNoEndpoints is returned when the finder answers without endpoints.
	ErrNoEndpoints = errors.New("no endpoints found in discovery finder response")

	// ErrEndpointNotFound is returned when the finder does not know a key.
	ErrEndpointNotFound = errors.New("discovery endpoint not found")
)

// FinderKeys names the JSON fields of the discovery finder API.
type FinderKeys struct {
	Types           string
	Endpoints       string
	EndpointAddress string
	ReturnType      string
}

// DefaultFinderKeys match the Tractus-X discovery finder.
func DefaultFinderKeys() FinderKeys {
	return FinderKeys{
		Types:           "types",
		Endpoints:       "endpoints",
		EndpointAddress: "endpointAddress",
		ReturnType:      "type",
	}
}

// FinderService queries the discovery finder. The client's BaseURL is the
// finder search URL and its authorizer supplies the bearer token.
type FinderService struct {
	client *client.Client
	keys   FinderKeys
}

// NewFinderService creates a finder bound to c. Empty key names fall back to
// DefaultFinderKeys.
func NewFinderService(c *client.Client, keys FinderKeys) *FinderService {
	defaults := DefaultFinderKeys()
	if keys.Types == "" {
		keys.Types = defaults.Types
	}
	if keys.Endpoints == "" {
		keys.Endpoints = defaults.Endpoints
	}
	if keys.EndpointAddress == "" {
		keys.EndpointAddress = defaults.EndpointAddress
	}
	if keys.ReturnType == "" {
		keys.ReturnType = defaults.ReturnType
	}
	return &FinderService{client: c, keys: keys}
}

// FindDiscoveryURLs maps every requested discovery type to its endpoint
// address.
func (f *FinderService) FindDiscoveryURLs(ctx context.Context, types []string) (map[string]string, error) {
	var body map[string]json.RawMessage
	if err := f.client.JSON(ctx, http.MethodPost, "", nil, map[string][]string{f.keys.Types: types}, &body); err != nil {
		return nil, fmt.Errorf("discovery finder search: %w", err)
	}

	var endpoints []map[string]any
	if raw, ok := body[f.keys.Endpoints]; ok {
		if err := json.Unmarshal(raw, &endpoints); err != nil {
			return nil, fmt.Errorf("decode discovery finder endpoints: %w", err)
		}
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	urls := make(map[string]string, len(endpoints))
	for _, endpoint := range endpoints {
		returnType, _ := endpoint[f.keys.ReturnType].(string)
		address, _ := endpoint[f.keys.EndpointAddress].(string)
		if returnType == "" || address == "" {
			continue
		}
		urls[returnType] = address
	}
	return urls, nil
}

// DiscoveryURL returns the endpoint address for a single discovery type.
func (f *FinderService) DiscoveryURL(ctx context.Context, discoveryType string) (string, error) {
	urls, err := f.FindDiscoveryURLs(ctx, []string{discoveryType})
	if err != nil {
		return "", err
	}
	url, ok := urls[discoveryType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrEndpointNotFound, discoveryType)
	}
	return url, nil
}

// Fetch adapts DiscoveryURL to a FetchFunc for URLCache.Resolve.
func (f *FinderService) Fetch(discoveryType string) FetchFunc {
	return func(ctx context.Context) (string, error) {
		return f.DiscoveryURL(ctx, discoveryType)
	}
}
