package connection

import (
	"net/url"
	"strings"
)

// Key identifies one negotiated connection: the counterparty, the connector
// address it was negotiated with, and fingerprints of the asset query and
// the accepted policies.
type Key struct {
	CounterPartyID      string
	CounterPartyAddress string

	// QueryChecksum and PolicyChecksum are computed by the caller, usually
	// with Checksum.
	QueryChecksum  string
	PolicyChecksum string
}

// String generates a deterministic key string. Each part is query-escaped so
// the ":" separator cannot occur inside a part.
//
// Example:
//
//	BPNL000000000001:https%3A%2F%2Fedc.example.com%2Fapi%2Fv1%2Fdsp:9f86d0...:3c9909...
func (k Key) String() string {
	return strings.Join([]string{
		url.QueryEscape(k.CounterPartyID),
		url.QueryEscape(k.CounterPartyAddress),
		url.QueryEscape(k.QueryChecksum),
		url.QueryEscape(k.PolicyChecksum),
	}, ":")
}
