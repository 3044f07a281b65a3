package connector

// JSON-LD namespaces used by the EDC management API.
const (
	NamespaceEDC  = "https://w3id.org/edc/v0.0.1/ns/"
	NamespaceODRL = "http://www.w3.org/ns/odrl/2/"
	NamespaceDCT  = "https://purl.org/dc/terms/"

	// DefaultProtocol is the dataspace protocol binding used for catalog and
	// negotiation requests.
	DefaultProtocol = "dataspace-protocol-http"

	odrlContext = "http://www.w3.org/ns/odrl.jsonld"
)

// DefaultContext returns the @context sent with consumer requests.
func DefaultContext() map[string]any {
	return map[string]any{
		"edc":  NamespaceEDC,
		"odrl": NamespaceODRL,
		"dct":  NamespaceDCT,
	}
}

func vocabContext() map[string]any {
	return map[string]any{"@vocab": NamespaceEDC}
}

// Criterion is one filter expression or asset selector entry.
type Criterion struct {
	OperandLeft  string `json:"operandLeft"`
	Operator     string `json:"operator"`
	OperandRight any    `json:"operandRight"`
}

// DCTTypeFilter selects assets whose dct:type equals dctType, e.g.
// "https://w3id.org/catenax/taxonomy#DigitalTwinRegistry".
func DCTTypeFilter(dctType string) Criterion {
	return Criterion{
		OperandLeft:  "'http://purl.org/dc/terms/type'.'@id'",
		Operator:     "=",
		OperandRight: dctType,
	}
}

// AssetIDFilter selects a single asset by id.
func AssetIDFilter(assetID string) Criterion {
	return Criterion{
		OperandLeft:  NamespaceEDC + "id",
		Operator:     "=",
		OperandRight: assetID,
	}
}

// QuerySpec pages and filters management API queries.
type QuerySpec struct {
	Context          any         `json:"@context,omitempty"`
	Type             string      `json:"@type"`
	Offset           int         `json:"offset"`
	Limit            int         `json:"limit"`
	SortOrder        string      `json:"sortOrder,omitempty"`
	SortField        string      `json:"sortField,omitempty"`
	FilterExpression []Criterion `json:"filterExpression"`
}

// NewQuerySpec returns a QuerySpec with the given filters and limit.
func NewQuerySpec(limit int, filters ...Criterion) QuerySpec {
	if filters == nil {
		filters = []Criterion{}
	}
	return QuerySpec{
		Context:          vocabContext(),
		Type:             "QuerySpec",
		Limit:            limit,
		FilterExpression: filters,
	}
}

// Asset is a provider asset definition.
type Asset struct {
	Context           any            `json:"@context,omitempty"`
	Type              string         `json:"@type,omitempty"`
	ID                string         `json:"@id"`
	Properties        map[string]any `json:"properties"`
	PrivateProperties map[string]any `json:"privateProperties,omitempty"`
	DataAddress       map[string]any `json:"dataAddress"`
}

// PolicyDefinition wraps an ODRL policy for the policy definitions API.
type PolicyDefinition struct {
	Context any            `json:"@context,omitempty"`
	Type    string         `json:"@type"`
	ID      string         `json:"@id"`
	Policy  map[string]any `json:"policy"`
}

// NewPolicyDefinition builds an odrl:Set policy definition. nil rule lists
// are sent as empty lists.
func NewPolicyDefinition(id string, context any, permissions, prohibitions, obligations any) PolicyDefinition {
	if context == nil {
		context = vocabContext()
	}
	return PolicyDefinition{
		Context: context,
		Type:    "PolicyDefinition",
		ID:      id,
		Policy: map[string]any{
			"@context":    odrlContext,
			"@type":       "odrl:Set",
			"permission":  orEmpty(permissions),
			"prohibition": orEmpty(prohibitions),
			"obligation":  orEmpty(obligations),
		},
	}
}

func orEmpty(rules any) any {
	if rules == nil {
		return []any{}
	}
	return rules
}

// ContractDefinition offers assets under an access and a contract policy.
type ContractDefinition struct {
	Context          any         `json:"@context,omitempty"`
	Type             string      `json:"@type"`
	ID               string      `json:"@id"`
	AccessPolicyID   string      `json:"accessPolicyId"`
	ContractPolicyID string      `json:"contractPolicyId"`
	AssetsSelector   []Criterion `json:"assetsSelector"`
}

// CatalogRequest asks a provider connector for its catalog.
type CatalogRequest struct {
	Context             any        `json:"@context,omitempty"`
	Type                string     `json:"@type"`
	CounterPartyAddress string     `json:"counterPartyAddress"`
	CounterPartyID      string     `json:"counterPartyId"`
	Protocol            string     `json:"protocol"`
	QuerySpec           *QuerySpec `json:"querySpec,omitempty"`
}

// NewCatalogRequest builds a catalog request filtered by filters.
func NewCatalogRequest(counterPartyID, counterPartyAddress, protocol string, filters ...Criterion) CatalogRequest {
	if protocol == "" {
		protocol = DefaultProtocol
	}
	req := CatalogRequest{
		Context:             DefaultContext(),
		Type:                "CatalogRequest",
		CounterPartyAddress: counterPartyAddress,
		CounterPartyID:      counterPartyID,
		Protocol:            protocol,
	}
	if len(filters) > 0 {
		spec := NewQuerySpec(1000, filters...)
		spec.Context = nil
		req.QuerySpec = &spec
	}
	return req
}

// ContractRequest starts a contract negotiation for one offer.
type ContractRequest struct {
	Context             any            `json:"@context,omitempty"`
	Type                string         `json:"@type"`
	CounterPartyAddress string         `json:"counterPartyAddress"`
	Protocol            string         `json:"protocol"`
	Policy              map[string]any `json:"policy"`
}

// TransferRequest starts a transfer process for an agreed contract.
type TransferRequest struct {
	Context             any            `json:"@context,omitempty"`
	Type                string         `json:"@type"`
	AssetID             string         `json:"assetId"`
	ContractID          string         `json:"contractId"`
	CounterPartyAddress string         `json:"counterPartyAddress"`
	Protocol            string         `json:"protocol"`
	TransferType        string         `json:"transferType"`
	DataDestination     map[string]any `json:"dataDestination,omitempty"`
}

// ConnectorDiscoveryRequest asks the consumer connector which protocol
// version and address a partner's connector speaks.
type ConnectorDiscoveryRequest struct {
	Context             any    `json:"@context,omitempty"`
	Type                string `json:"@type"`
	BPNL                string `json:"bpnl"`
	CounterPartyAddress string `json:"counterPartyAddress,omitempty"`
}

// EDR is an endpoint data reference: the data-plane endpoint and the token
// that authorizes requests against it.
type EDR struct {
	Type          string `json:"@type,omitempty"`
	Endpoint      string `json:"endpoint"`
	EndpointType  string `json:"endpointType,omitempty"`
	Authorization string `json:"authorization"`
}
