package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/connector"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/discovery"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/dtr"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/metrics"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/samm"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DigitalTwinRegistryType is the asset type under which providers offer
// their registry.
const DigitalTwinRegistryType = "https://w3id.org/catenax/taxonomy#DigitalTwinRegistry"

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

var errDiscoveryDisabled = errors.New("discovery is not configured")

type gateway struct {
	management *client.Client
	consumer   *connector.ConsumerService
	finder     *discovery.FinderService
	cache      *discovery.URLCache
	connectors *discovery.ConnectorDiscoveryService
	translator *samm.Translator
	redis      *redis.Client
	logger     zerolog.Logger
}

// Close releases clients held by the gateway.
func (g *gateway) Close() {
	if g.management != nil {
		g.management.Close()
	}
	if g.redis != nil {
		g.redis.Close()
	}
}

func (g *gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.requestLogger)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(g.redis))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/discovery/{key}", g.discoveryHandler)
	r.Get("/connectors/{bpn}", g.connectorsHandler)

	r.Post("/transfers", g.transfersHandler)
	r.Get("/transfers/count", g.transferCountHandler)
	r.Post("/shells", g.shellsHandler)

	r.Post("/semantics/context", g.semanticsHandler)
	return r
}

func (g *gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while the Redis connection cache is unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func (g *gateway) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	if g.finder == nil {
		g.writeError(w, r, errDiscoveryDisabled)
		return
	}
	key := chi.URLParam(r, "key")

	url, err := g.cache.Resolve(r.Context(), key, g.finder.Fetch(key))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (g *gateway) connectorsHandler(w http.ResponseWriter, r *http.Request) {
	if g.connectors == nil {
		g.writeError(w, r, errDiscoveryDisabled)
		return
	}
	bpn := chi.URLParam(r, "bpn")

	endpoints, err := g.connectors.FindConnectorsByBPN(r.Context(), bpn)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bpn": bpn, "connectors": endpoints})
}

type transferRequest struct {
	CounterPartyID      string             `json:"counterPartyId"`
	CounterPartyAddress string             `json:"counterPartyAddress"`
	DCTType             string             `json:"dctType"`
	Policies            []connector.Object `json:"policies"`
}

func (t transferRequest) target() connector.Target {
	target := connector.Target{
		CounterPartyID:      t.CounterPartyID,
		CounterPartyAddress: t.CounterPartyAddress,
		Policies:            t.Policies,
	}
	if t.DCTType != "" {
		target.Filter = []connector.Criterion{connector.DCTTypeFilter(t.DCTType)}
	}
	return target
}

type transferResponse struct {
	TransferID    string `json:"transferId"`
	Endpoint      string `json:"endpoint"`
	Authorization string `json:"authorization"`
}

func (g *gateway) transfersHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CounterPartyID == "" || req.CounterPartyAddress == "" {
		http.Error(w, "counterPartyId and counterPartyAddress are required", http.StatusBadRequest)
		return
	}

	resp, err := g.transfer(r.Context(), req.target())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *gateway) transfer(ctx context.Context, target connector.Target) (transferResponse, error) {
	endpoint, token, err := g.consumer.DoDSP(ctx, target)
	if err != nil {
		return transferResponse{}, err
	}
	transferID, err := g.consumer.GetTransferID(ctx, target)
	if err != nil {
		return transferResponse{}, err
	}
	return transferResponse{TransferID: transferID, Endpoint: endpoint, Authorization: token}, nil
}

func (g *gateway) transferCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := g.consumer.Connections().Count(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

type shellsRequest struct {
	transferRequest
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// shellsHandler negotiates access to a provider's registry and lists its
// shell descriptors through the data plane.
func (g *gateway) shellsHandler(w http.ResponseWriter, r *http.Request) {
	var req shellsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CounterPartyID == "" || req.CounterPartyAddress == "" {
		http.Error(w, "counterPartyId and counterPartyAddress are required", http.StatusBadRequest)
		return
	}
	if req.DCTType == "" {
		req.DCTType = DigitalTwinRegistryType
	}

	endpoint, token, err := g.consumer.DoDSP(r.Context(), req.target())
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	cfg := client.DefaultConfig("dtr", endpoint)
	cfg.Headers = map[string]string{"Authorization": token}
	dataPlane, err := client.New(cfg)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	defer dataPlane.Close()

	page, err := dtr.NewClient(dataPlane).ListShellDescriptors(r.Context(), dtr.ListOptions{
		Limit:  req.Limit,
		Cursor: req.Cursor,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (g *gateway) semanticsHandler(w http.ResponseWriter, r *http.Request) {
	var schema map[string]any
	if !decodeBody(w, r, &schema) {
		return
	}

	query := r.URL.Query()
	result, err := g.translator.SchemaToJSONLD(query.Get("semanticId"), schema, query.Get("aspectPrefix"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps SDK errors to gateway responses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errDiscoveryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, discovery.ErrBPNNotFound), errors.Is(err, discovery.ErrEndpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, connector.ErrNoMatchingOffer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, samm.ErrInvalidSemanticID), errors.Is(err, samm.ErrEmptyContext),
		errors.Is(err, dtr.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, connector.ErrNegotiationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, discovery.ErrDiscoveryUnavailable), errors.Is(err, client.ErrRetryExhausted):
		return http.StatusBadGateway
	}
	if _, ok := client.StatusCode(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (g *gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := g.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = g.logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Request failed")

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
