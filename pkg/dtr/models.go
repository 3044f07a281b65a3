package dtr

// AssetKind classifies the asset a shell describes.
type AssetKind string

const (
	AssetKindInstance      AssetKind = "Instance"
	AssetKindType          AssetKind = "Type"
	AssetKindNotApplicable AssetKind = "NotApplicable"
)

// LangString is a localized text.
type LangString struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

// Key is one element of a Reference.
type Key struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Reference points to a model element or an external concept, e.g. the
// semantic id of a submodel.
type Reference struct {
	Type string `json:"type"`
	Keys []Key  `json:"keys"`
}

// GlobalReference returns an ExternalReference with a single GlobalReference
// key, the form used for semantic ids and BPN subjects.
func GlobalReference(value string) *Reference {
	return &Reference{
		Type: "ExternalReference",
		Keys: []Key{{Type: "GlobalReference", Value: value}},
	}
}

// SpecificAssetID is a name/value identifier of the asset, e.g.
// manufacturerPartId. ExternalSubjectID restricts visibility to a BPN.
type SpecificAssetID struct {
	Name              string     `json:"name"`
	Value             string     `json:"value"`
	SemanticID        *Reference `json:"semanticId,omitempty"`
	ExternalSubjectID *Reference `json:"externalSubjectId,omitempty"`
}

// SecurityAttribute describes how an endpoint is protected.
type SecurityAttribute struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProtocolInformation locates a submodel behind a connector data plane.
type ProtocolInformation struct {
	Href                    string              `json:"href"`
	EndpointProtocol        string              `json:"endpointProtocol,omitempty"`
	EndpointProtocolVersion []string            `json:"endpointProtocolVersion,omitempty"`
	Subprotocol             string              `json:"subprotocol,omitempty"`
	SubprotocolBody         string              `json:"subprotocolBody,omitempty"`
	SubprotocolBodyEncoding string              `json:"subprotocolBodyEncoding,omitempty"`
	SecurityAttributes      []SecurityAttribute `json:"securityAttributes,omitempty"`
}

// Endpoint is one interface under which a submodel is served.
type Endpoint struct {
	Interface           string              `json:"interface"`
	ProtocolInformation ProtocolInformation `json:"protocolInformation"`
}

// SubmodelDescriptor describes a submodel of a shell and where to get it.
type SubmodelDescriptor struct {
	ID          string       `json:"id"`
	IDShort     string       `json:"idShort,omitempty"`
	SemanticID  *Reference   `json:"semanticId,omitempty"`
	Description []LangString `json:"description,omitempty"`
	Endpoints   []Endpoint   `json:"endpoints"`
}

// ShellDescriptor describes an asset administration shell: the digital twin.
type ShellDescriptor struct {
	ID                  string               `json:"id"`
	IDShort             string               `json:"idShort,omitempty"`
	GlobalAssetID       string               `json:"globalAssetId,omitempty"`
	AssetKind           AssetKind            `json:"assetKind,omitempty"`
	AssetType           string               `json:"assetType,omitempty"`
	Description         []LangString         `json:"description,omitempty"`
	DisplayName         []LangString         `json:"displayName,omitempty"`
	SpecificAssetIDs    []SpecificAssetID    `json:"specificAssetIds,omitempty"`
	SubmodelDescriptors []SubmodelDescriptor `json:"submodelDescriptors,omitempty"`
}

// SubmodelBySemanticID returns the first submodel descriptor whose semantic
// id has a key equal to semanticID.
func (s ShellDescriptor) SubmodelBySemanticID(semanticID string) (SubmodelDescriptor, bool) {
	for _, sm := range s.SubmodelDescriptors {
		if sm.SemanticID == nil {
			continue
		}
		for _, k := range sm.SemanticID.Keys {
			if k.Value == semanticID {
				return sm, true
			}
		}
	}
	return SubmodelDescriptor{}, false
}

// PagingMetadata carries the cursor of the next page; empty on the last.
type PagingMetadata struct {
	Cursor string `json:"cursor,omitempty"`
}

// ShellDescriptorPage is one page of shell descriptors.
type ShellDescriptorPage struct {
	PagingMetadata PagingMetadata    `json:"paging_metadata"`
	Result         []ShellDescriptor `json:"result"`
}

// SubmodelDescriptorPage is one page of submodel descriptors.
type SubmodelDescriptorPage struct {
	PagingMetadata PagingMetadata       `json:"paging_metadata"`
	Result         []SubmodelDescriptor `json:"result"`
}

// ShellIDPage is one page of shell ids returned by a lookup.
type ShellIDPage struct {
	PagingMetadata PagingMetadata `json:"paging_metadata"`
	Result         []string       `json:"result"`
}
