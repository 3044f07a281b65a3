package connector

import (
	"context"
	"fmt"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
)

// Management API resource paths.
const (
	PathAssets              = "/v3/assets"
	PathPolicyDefinitions   = "/v3/policydefinitions"
	PathContractDefinitions = "/v3/contractdefinitions"
	PathCatalog             = "/v3/catalog/request"
	PathEDRs                = "/v3/edrs"
	PathContractNegotiation = "/v3/contractnegotiations"
	PathTransferProcesses   = "/v3/transferprocesses"
	PathConnectorDiscovery  = "/v4alpha/connectordiscovery/dspversionparams"
)

// ProviderService publishes data: assets, the policies that govern them and
// the contract definitions that offer them.
type ProviderService struct {
	Assets              *Controller
	Policies            *Controller
	ContractDefinitions *Controller
}

// NewProviderService binds the provider controllers to c, whose BaseURL is
// the connector management API root.
func NewProviderService(c *client.Client) *ProviderService {
	return &ProviderService{
		Assets:              NewController(c, PathAssets),
		Policies:            NewController(c, PathPolicyDefinitions),
		ContractDefinitions: NewController(c, PathContractDefinitions),
	}
}

// HTTPAsset describes an asset served by an HTTP backend.
type HTTPAsset struct {
	ID      string
	BaseURL string
	DCTType string

	// Version defaults to "3.0"; SemanticID is optional.
	Version    string
	SemanticID string

	// ProxyParams default to proxying path and method only.
	ProxyParams map[string]string

	// Headers are forwarded to the backend as "header:<name>" properties.
	Headers           map[string]string
	PrivateProperties map[string]any
}

// DefaultProxyParams forward the request path and method to the backend.
func DefaultProxyParams() map[string]string {
	return map[string]string{
		"proxyQueryParams": "false",
		"proxyPath":        "true",
		"proxyMethod":      "true",
		"proxyBody":        "false",
	}
}

// NewHTTPAsset builds the asset definition for spec.
func NewHTTPAsset(spec HTTPAsset) Asset {
	context := map[string]any{
		"edc":       NamespaceEDC,
		"cx-common": "https://w3id.org/catenax/ontology/common#",
		"cx-taxo":   "https://w3id.org/catenax/taxonomy#",
		"dct":       "http://purl.org/dc/terms/",
	}

	dataAddress := map[string]any{
		"@type":   "DataAddress",
		"type":    "HttpData",
		"baseUrl": spec.BaseURL,
	}
	proxy := spec.ProxyParams
	if proxy == nil {
		proxy = DefaultProxyParams()
	}
	for k, v := range proxy {
		dataAddress[k] = v
	}
	for k, v := range spec.Headers {
		dataAddress["header:"+k] = v
	}

	properties := map[string]any{
		"dct:type": map[string]any{"@id": spec.DCTType},
	}
	version := spec.Version
	if version == "" {
		version = "3.0"
	}
	properties["cx-common:version"] = version

	if spec.SemanticID != "" {
		context["aas-semantics"] = "https://admin-shell.io/aas/3/0/HasSemantics/"
		properties["aas-semantics:semanticId"] = map[string]any{"@id": spec.SemanticID}
	}

	return Asset{
		Context:           context,
		ID:                spec.ID,
		Properties:        properties,
		PrivateProperties: spec.PrivateProperties,
		DataAddress:       dataAddress,
	}
}

// CreateHTTPAsset registers an HTTP-backed asset.
func (p *ProviderService) CreateHTTPAsset(ctx context.Context, spec HTTPAsset) (Object, error) {
	if spec.ID == "" || spec.BaseURL == "" {
		return nil, fmt.Errorf("asset id and base url are required")
	}
	return p.Assets.Create(ctx, NewHTTPAsset(spec))
}

// CreatePolicy registers an odrl:Set policy definition.
func (p *ProviderService) CreatePolicy(ctx context.Context, id string, permissions, prohibitions, obligations any) (Object, error) {
	return p.Policies.Create(ctx, NewPolicyDefinition(id, nil, permissions, prohibitions, obligations))
}

// CreateContract offers assetID under the given access and usage policies.
func (p *ProviderService) CreateContract(ctx context.Context, contractID, usagePolicyID, accessPolicyID, assetID string) (Object, error) {
	return p.ContractDefinitions.Create(ctx, ContractDefinition{
		Context:          vocabContext(),
		Type:             "ContractDefinition",
		ID:               contractID,
		AccessPolicyID:   accessPolicyID,
		ContractPolicyID: usagePolicyID,
		AssetsSelector:   []Criterion{AssetIDFilter(assetID)},
	})
}
