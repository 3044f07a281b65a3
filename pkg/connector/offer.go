package connector

import (
	"encoding/json"
	"strings"
)

// Offer is one policy offered for a catalog dataset.
type Offer struct {
	AssetID string
	Policy  Object
}

// CatalogOffers lists every dataset policy in catalog. Datasets and policies
// may be a single object or a list; compacted ("dcat:dataset") and
// vocabulary ("dataset") keys are both accepted.
func CatalogOffers(catalog Object) []Offer {
	var offers []Offer
	for _, ds := range asList(firstField(catalog, "dcat:dataset", "dataset")) {
		dataset, ok := ds.(map[string]any)
		if !ok {
			continue
		}
		assetID, _ := firstField(dataset, "@id", "id").(string)
		for _, p := range asList(firstField(dataset, "odrl:hasPolicy", "hasPolicy")) {
			if policy, ok := p.(map[string]any); ok {
				offers = append(offers, Offer{AssetID: assetID, Policy: policy})
			}
		}
	}
	return offers
}

// SelectOffer returns the first offer whose policy equals one of allowed
// after normalization. With no allowed policies the first offer is taken.
func SelectOffer(offers []Offer, allowed []Object) (Offer, bool) {
	if len(offers) == 0 {
		return Offer{}, false
	}
	if len(allowed) == 0 {
		return offers[0], true
	}

	wanted := make(map[string]struct{}, len(allowed))
	for _, policy := range allowed {
		wanted[canonicalPolicy(policy)] = struct{}{}
	}
	for _, o := range offers {
		if _, ok := wanted[canonicalPolicy(o.Policy)]; ok {
			return o, true
		}
	}
	return Offer{}, false
}

// canonicalPolicy encodes the rule content of a policy so offers from a
// catalog compare equal to the policies a consumer accepts. Identity fields
// are dropped and "odrl:" prefixes removed.
func canonicalPolicy(policy Object) string {
	top := make(map[string]any, len(policy))
	for k, v := range policy {
		switch strings.TrimPrefix(k, "odrl:") {
		case "@id", "@type", "@context", "target", "assigner", "assignee":
			continue
		}
		top[k] = v
	}
	data, _ := json.Marshal(normalize(top))
	return string(data)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			n := normalize(child)
			if isEmpty(n) {
				continue
			}
			out[strings.TrimPrefix(k, "odrl:")] = n
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if n := normalize(child); !isEmpty(n) {
				out = append(out, n)
			}
		}
		if len(out) == 1 {
			return out[0]
		}
		return out
	case []map[string]any:
		list := make([]any, len(t))
		for i := range t {
			list[i] = t[i]
		}
		return normalize(list)
	case string:
		return strings.TrimPrefix(t, "odrl:")
	default:
		return t
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func firstField(obj map[string]any, names ...string) any {
	for _, name := range names {
		if v, ok := obj[name]; ok {
			return v
		}
	}
	return nil
}
