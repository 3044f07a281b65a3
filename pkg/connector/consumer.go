package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/connection"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrNoMatchingOffer is returned when no catalog offer matches the
	// accepted policies.
	ErrNoMatchingOffer = errors.New("no catalog offer matches the accepted policies")

	// ErrNegotiationTimeout is returned when no EDR appears for a negotiation
	// before the configured timeout.
	ErrNegotiationTimeout = errors.New("timed out waiting for the edr")

	// ErrInvalidResponse is returned when the connector answers with an
	// unexpected document.
	ErrInvalidResponse = errors.New("invalid connector response")
)

// edrTransferIDField is the EDR entry field the connector reports the
// transfer process id in.
const edrTransferIDField = "transferProcessId"

// ConsumerConfig configures ConsumerService.
type ConsumerConfig struct {
	// Protocol is the dataspace protocol binding; DefaultProtocol when empty.
	Protocol string

	// DefaultPolicies are accepted when a Target carries none.
	DefaultPolicies []Object

	// PollInterval and NegotiationTimeout bound the wait for an EDR.
	PollInterval       time.Duration
	NegotiationTimeout time.Duration

	// DiscoveryNamespace prefixes the fields of connector discovery responses.
	DiscoveryNamespace string
}

// DefaultConsumerConfig returns production defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Protocol:           DefaultProtocol,
		PollInterval:       time.Second,
		NegotiationTimeout: 60 * time.Second,
		DiscoveryNamespace: NamespaceEDC,
	}
}

// Target identifies data at a provider: who, where, which assets and under
// which usage policies.
type Target struct {
	CounterPartyID      string
	CounterPartyAddress string
	Filter              []Criterion

	// Policies accepted for the transfer; nil selects the defaults.
	Policies []Object
}

// ConsumerService negotiates access to provider data and caches the
// resulting transfers in a connection.Manager.
type ConsumerService struct {
	EDRs                 *Controller
	ContractNegotiations *Controller
	TransferProcesses    *Controller

	management  *client.Client
	dataPlane   *client.Client
	connections connection.Manager
	cfg         ConsumerConfig
	logger      zerolog.Logger
}

// NewConsumerService creates a consumer bound to the management API client.
// connections defaults to a MemoryManager.
func NewConsumerService(management *client.Client, connections connection.Manager, cfg ConsumerConfig) (*ConsumerService, error) {
	defaults := DefaultConsumerConfig()
	if cfg.Protocol == "" {
		cfg.Protocol = defaults.Protocol
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = defaults.NegotiationTimeout
	}
	if cfg.DiscoveryNamespace == "" {
		cfg.DiscoveryNamespace = defaults.DiscoveryNamespace
	}
	if connections == nil {
		connections = connection.NewMemoryManager(connection.DefaultOptions())
	}

	// Data-plane requests carry the EDR token only, never management headers.
	dataPlane, err := client.New(client.DefaultConfig("edc-dataplane", ""))
	if err != nil {
		return nil, fmt.Errorf("create data plane client: %w", err)
	}

	return &ConsumerService{
		EDRs:                 NewController(management, PathEDRs),
		ContractNegotiations: NewController(management, PathContractNegotiation),
		TransferProcesses:    NewController(management, PathTransferProcesses),
		management:           management,
		dataPlane:            dataPlane,
		connections:          connections,
		cfg:                  cfg,
		logger:               logging.NewLogger(logging.ComponentConnector),
	}, nil
}

// Connections returns the connection cache.
func (s *ConsumerService) Connections() connection.Manager {
	return s.connections
}

// GetCatalog requests a provider's catalog through the consumer connector.
func (s *ConsumerService) GetCatalog(ctx context.Context, req CatalogRequest) (Object, error) {
	var catalog Object
	if err := s.management.JSON(ctx, http.MethodPost, PathCatalog, nil, req, &catalog); err != nil {
		return nil, fmt.Errorf("get catalog from %s: %w", req.CounterPartyAddress, err)
	}
	return catalog, nil
}

// DiscoverConnectorProtocol asks the consumer connector for the protocol
// parameters of bpnl's connector. counterPartyAddress is optional.
func (s *ConsumerService) DiscoverConnectorProtocol(ctx context.Context, bpnl, counterPartyAddress string) (Object, error) {
	req := ConnectorDiscoveryRequest{
		Context:             vocabContext(),
		Type:                "ConnectorDiscoveryRequest",
		BPNL:                bpnl,
		CounterPartyAddress: counterPartyAddress,
	}
	var params Object
	if err := s.management.JSON(ctx, http.MethodPost, PathConnectorDiscovery, nil, req, &params); err != nil {
		return nil, fmt.Errorf("discover connector protocol for %s: %w", bpnl, err)
	}
	return params, nil
}

// GetCatalogByBPNL discovers bpnl's connector parameters and requests its
// catalog with them.
func (s *ConsumerService) GetCatalogByBPNL(ctx context.Context, bpnl, counterPartyAddress string, filters ...Criterion) (Object, error) {
	params, err := s.DiscoverConnectorProtocol(ctx, bpnl, counterPartyAddress)
	if err != nil {
		return nil, err
	}

	address, _ := s.discoveryField(params, "counterPartyAddress").(string)
	protocol, _ := s.discoveryField(params, "protocol").(string)
	counterPartyID, _ := s.discoveryField(params, "counterPartyId").(string)
	if address == "" || counterPartyID == "" {
		return nil, fmt.Errorf("%w: connector discovery for %s lacks address or counterparty id", ErrInvalidResponse, bpnl)
	}

	s.logger.Debug().
		Str("counter_party_id", counterPartyID).
		Str("counter_party_address", address).
		Str("protocol", protocol).
		Msg("Requesting catalog with discovered protocol")

	return s.GetCatalog(ctx, NewCatalogRequest(counterPartyID, address, protocol, filters...))
}

func (s *ConsumerService) discoveryField(params Object, name string) any {
	return firstField(params, s.cfg.DiscoveryNamespace+name, "edc:"+name, name)
}

// NegotiateAndTransfer selects a matching catalog offer, starts the EDR
// negotiation and waits until the connector lists the resulting EDR entry.
func (s *ConsumerService) NegotiateAndTransfer(ctx context.Context, target Target) (connection.Entry, error) {
	catalog, err := s.GetCatalog(ctx, NewCatalogRequest(target.CounterPartyID, target.CounterPartyAddress, s.cfg.Protocol, target.Filter...))
	if err != nil {
		return nil, err
	}

	offer, ok := SelectOffer(CatalogOffers(catalog), s.policies(target))
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoMatchingOffer, target.CounterPartyID, target.CounterPartyAddress)
	}

	policy := make(Object, len(offer.Policy)+3)
	for k, v := range offer.Policy {
		policy[k] = v
	}
	policy["@type"] = "odrl:Offer"
	policy["odrl:assigner"] = Object{"@id": target.CounterPartyID}
	policy["odrl:target"] = Object{"@id": offer.AssetID}

	negotiation, err := s.EDRs.Create(ctx, ContractRequest{
		Context:             DefaultContext(),
		Type:                "ContractRequest",
		CounterPartyAddress: target.CounterPartyAddress,
		Protocol:            s.cfg.Protocol,
		Policy:              policy,
	})
	if err != nil {
		return nil, err
	}

	negotiationID, _ := negotiation["@id"].(string)
	if negotiationID == "" {
		return nil, fmt.Errorf("%w: edr negotiation response has no @id", ErrInvalidResponse)
	}

	s.logger.Info().
		Str("counter_party_id", target.CounterPartyID).
		Str("asset_id", offer.AssetID).
		Str("negotiation_id", negotiationID).
		Msg("Started contract negotiation")

	return s.waitForEDR(ctx, negotiationID)
}

func (s *ConsumerService) waitForEDR(ctx context.Context, negotiationID string) (connection.Entry, error) {
	deadline := time.Now().Add(s.cfg.NegotiationTimeout)
	spec := NewQuerySpec(10, Criterion{OperandLeft: "contractNegotiationId", Operator: "=", OperandRight: negotiationID})

	for {
		entries, err := s.EDRs.Query(ctx, spec)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if id, _ := entry[edrTransferIDField].(string); id != "" {
				return connection.Entry(entry), nil
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: negotiation %s", ErrNegotiationTimeout, negotiationID)
		}

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// StartTransfer starts a transfer process for an agreed contract and
// returns the transfer process id. NegotiateAndTransfer covers the common
// case through the EDR API; this is for explicit transfer types.
func (s *ConsumerService) StartTransfer(ctx context.Context, counterPartyAddress, assetID, contractID, transferType string) (string, error) {
	resp, err := s.TransferProcesses.Create(ctx, TransferRequest{
		Context:             vocabContext(),
		Type:                "TransferRequest",
		AssetID:             assetID,
		ContractID:          contractID,
		CounterPartyAddress: counterPartyAddress,
		Protocol:            s.cfg.Protocol,
		TransferType:        transferType,
	})
	if err != nil {
		return "", err
	}
	id, _ := resp["@id"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: transfer process response has no @id", ErrInvalidResponse)
	}
	return id, nil
}

// ConnectionKey fingerprints target's filter and policies.
func (s *ConsumerService) ConnectionKey(target Target) (connection.Key, error) {
	queryChecksum, err := connection.Checksum(target.Filter)
	if err != nil {
		return connection.Key{}, err
	}
	policyChecksum, err := connection.Checksum(s.policies(target))
	if err != nil {
		return connection.Key{}, err
	}
	return connection.Key{
		CounterPartyID:      target.CounterPartyID,
		CounterPartyAddress: target.CounterPartyAddress,
		QueryChecksum:       queryChecksum,
		PolicyChecksum:      policyChecksum,
	}, nil
}

// GetTransferID returns the cached transfer id for target, negotiating and
// caching a new transfer when none exists.
func (s *ConsumerService) GetTransferID(ctx context.Context, target Target) (string, error) {
	key, err := s.ConnectionKey(target)
	if err != nil {
		return "", err
	}

	transferID, ok, err := s.connections.TransferID(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		s.logger.Debug().
			Str("counter_party_id", target.CounterPartyID).
			Str("transfer_id", transferID).
			Msg("Reusing cached transfer")
		return transferID, nil
	}

	s.logger.Info().
		Str("counter_party_id", target.CounterPartyID).
		Str("counter_party_address", target.CounterPartyAddress).
		Msg("No cached transfer, starting contract negotiation")

	entry, err := s.NegotiateAndTransfer(ctx, target)
	if err != nil {
		return "", err
	}
	if field := s.connections.TransferIDKey(); field != edrTransferIDField {
		entry[field] = entry[edrTransferIDField]
	}
	return s.connections.Put(ctx, key, entry)
}

// GetEDR fetches the data address of a transfer, refreshing the token when
// it expired.
func (s *ConsumerService) GetEDR(ctx context.Context, transferID string) (EDR, error) {
	var edr EDR
	path := PathEDRs + "/" + url.PathEscape(transferID) + "/dataaddress"
	if err := s.management.JSON(ctx, http.MethodGet, path, url.Values{"auto_refresh": {"true"}}, nil, &edr); err != nil {
		return EDR{}, fmt.Errorf("get edr for transfer %s: %w", transferID, err)
	}
	return edr, nil
}

// GetEndpointWithToken returns the data-plane endpoint and access token of a
// transfer.
func (s *ConsumerService) GetEndpointWithToken(ctx context.Context, transferID string) (string, string, error) {
	edr, err := s.GetEDR(ctx, transferID)
	if err != nil {
		return "", "", err
	}
	if edr.Endpoint == "" || edr.Authorization == "" {
		return "", "", fmt.Errorf("%w: edr for transfer %s lacks endpoint or token", ErrInvalidResponse, transferID)
	}
	return edr.Endpoint, edr.Authorization, nil
}

// DoDSP runs catalog, negotiation and transfer as needed and returns the
// data-plane endpoint and token for target. A cached transfer whose EDR can
// no longer be fetched is dropped and renegotiated once.
func (s *ConsumerService) DoDSP(ctx context.Context, target Target) (string, string, error) {
	transferID, err := s.GetTransferID(ctx, target)
	if err != nil {
		return "", "", err
	}

	endpoint, token, err := s.GetEndpointWithToken(ctx, transferID)
	if err == nil {
		return endpoint, token, nil
	}

	s.logger.Warn().
		Err(err).
		Str("transfer_id", transferID).
		Msg("Cached transfer unusable, renegotiating")

	key, keyErr := s.ConnectionKey(target)
	if keyErr != nil {
		return "", "", keyErr
	}
	if _, delErr := s.connections.Delete(ctx, key); delErr != nil {
		return "", "", delErr
	}

	transferID, err = s.GetTransferID(ctx, target)
	if err != nil {
		return "", "", err
	}
	return s.GetEndpointWithToken(ctx, transferID)
}

// DoGet performs a data-plane GET for path below the transfer endpoint of
// target.
func (s *ConsumerService) DoGet(ctx context.Context, target Target, path string, query url.Values) (*http.Response, error) {
	endpoint, token, err := s.DoDSP(ctx, target)
	if err != nil {
		return nil, err
	}

	req, err := s.dataPlane.NewRequest(ctx, http.MethodGet, client.JoinURL(endpoint, path), query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", token)
	return s.dataPlane.Do(req)
}

func (s *ConsumerService) policies(target Target) []Object {
	if target.Policies != nil {
		return target.Policies
	}
	return s.cfg.DefaultPolicies
}
