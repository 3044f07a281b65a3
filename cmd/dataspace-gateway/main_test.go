package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/internal/config"
	"github.com/eclipse-tractusx/tractusx-sdk-go/internal/testutil"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/dtr"
)

const (
	providerBPN     = "BPNL000000000001"
	providerAddress = "https://provider.example.com/api/v1/dsp"
)

// newTestGateway wires a gateway against mock, which plays identity
// provider, discovery finder, connector discovery and consumer connector.
func newTestGateway(t *testing.T, mock *testutil.MockServer, withDiscovery bool) (*gateway, http.Handler) {
	t.Helper()

	yaml := fmt.Sprintf(`
connector:
  managementUrl: %s/management
  apiKey: test-key
  pollInterval: 1ms
  negotiationTimeout: 1s
`, mock.URL())
	if withDiscovery {
		mock.SetIdentityProvider("test", "finder-token")
		yaml += fmt.Sprintf(`
auth:
  url: %[1]s/auth
  realm: test
  clientId: gateway
  clientSecret: secret
discovery:
  finderUrl: %[1]s/finder/search
`, mock.URL())
	}

	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("config.Parse failed: %v", err)
	}
	gw, err := newGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newGateway failed: %v", err)
	}
	t.Cleanup(gw.Close)
	return gw, gw.routes()
}

func serve(t *testing.T, h http.Handler, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

// setupConnector registers a consumer connector that negotiates one
// registry transfer and a provider data plane serving shell descriptors.
func setupConnector(mock *testutil.MockServer) *int32 {
	var negotiations int32

	mock.SetJSON("POST /management/v3/catalog/request", http.StatusOK, map[string]any{
		"@id": "catalog",
		"dcat:dataset": map[string]any{
			"@id":            "registry-asset",
			"odrl:hasPolicy": map[string]any{"@id": "offer-1", "odrl:permission": map[string]any{"odrl:action": "use"}},
		},
	})
	mock.SetHandler("POST /management/v3/edrs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&negotiations, 1)
		writeJSON(w, http.StatusOK, map[string]string{"@id": "neg-1"})
	})
	mock.SetJSON("POST /management/v3/edrs/request", http.StatusOK, []map[string]any{{
		"@type":             "EndpointDataReferenceEntry",
		"providerId":        providerBPN,
		"transferProcessId": "tp-1",
	}})
	mock.SetJSON("GET /management/v3/edrs/tp-1/dataaddress", http.StatusOK, map[string]string{
		"endpoint":      mock.URL() + "/public",
		"authorization": "edr-token",
	})
	mock.SetHandler("GET /public/shell-descriptors", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "edr-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, dtr.ShellDescriptorPage{Result: []dtr.ShellDescriptor{{ID: "urn:uuid:shell-1"}}})
	})
	return &negotiations
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint_MemoryBackend(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	_, h := newTestGateway(t, mock, false)

	resp, body := serve(t, h, http.MethodGet, "/ready", "")
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("ready = %d %q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	_, h := newTestGateway(t, mock, false)

	resp, body := serve(t, h, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	// Plain gauges are exported before the first observation.
	if !strings.Contains(bodyStr, "tractusx_discovery_cache_entries") {
		t.Error("Expected metrics output to contain tractusx_discovery_cache_entries")
	}
}

func TestDiscoveryEndpoints(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	mock.SetJSON("POST /finder/search", http.StatusOK, map[string]any{
		"endpoints": []map[string]string{{"type": "bpn", "endpointAddress": mock.URL() + "/connector-discovery"}},
	})
	mock.SetJSON("POST /connector-discovery", http.StatusOK, []map[string]any{{
		"bpn":               providerBPN,
		"connectorEndpoint": []string{providerAddress},
	}})
	_, h := newTestGateway(t, mock, true)

	resp, body := serve(t, h, http.MethodGet, "/discovery/bpn", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discovery status = %d, body %s", resp.StatusCode, body)
	}
	var discovered map[string]string
	json.Unmarshal(body, &discovered)
	if discovered["url"] != mock.URL()+"/connector-discovery" {
		t.Errorf("url = %q", discovered["url"])
	}

	resp, body = serve(t, h, http.MethodGet, "/connectors/"+providerBPN, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connectors status = %d, body %s", resp.StatusCode, body)
	}
	var found struct {
		Connectors []string `json:"connectors"`
	}
	json.Unmarshal(body, &found)
	if len(found.Connectors) != 1 || found.Connectors[0] != providerAddress {
		t.Errorf("connectors = %v", found.Connectors)
	}

	// The discovery URL is cached across both requests.
	if n := len(mock.RequestsTo(http.MethodPost, "/finder/search")); n != 1 {
		t.Errorf("finder requests = %d, want 1", n)
	}

	resp, _ = serve(t, h, http.MethodGet, "/connectors/BPNL00000000FFFF", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown bpn status = %d, want 404", resp.StatusCode)
	}
}

func TestDiscoveryEndpoints_NotConfigured(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	_, h := newTestGateway(t, mock, false)

	for _, path := range []string{"/discovery/bpn", "/connectors/" + providerBPN} {
		if resp, _ := serve(t, h, http.MethodGet, path, ""); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, resp.StatusCode)
		}
	}
}

func TestTransfersEndpoint(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	negotiations := setupConnector(mock)
	_, h := newTestGateway(t, mock, false)

	body := fmt.Sprintf(`{"counterPartyId": %q, "counterPartyAddress": %q, "dctType": %q}`,
		providerBPN, providerAddress, DigitalTwinRegistryType)

	for i := 0; i < 2; i++ {
		resp, data := serve(t, h, http.MethodPost, "/transfers", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body %s", resp.StatusCode, data)
		}
		var transfer transferResponse
		if err := json.Unmarshal(data, &transfer); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if transfer.TransferID != "tp-1" || transfer.Endpoint != mock.URL()+"/public" || transfer.Authorization != "edr-token" {
			t.Errorf("transfer = %+v", transfer)
		}
	}

	if got := atomic.LoadInt32(negotiations); got != 1 {
		t.Errorf("negotiations = %d, want 1", got)
	}

	resp, data := serve(t, h, http.MethodGet, "/transfers/count", "")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(data)) != `{"count":1}` {
		t.Errorf("count = %d %s", resp.StatusCode, data)
	}
}

func TestTransfersEndpoint_BadRequest(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	_, h := newTestGateway(t, mock, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: "{"},
		{name: "missing counterparty", body: `{"counterPartyAddress": "https://provider"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp, _ := serve(t, h, http.MethodPost, "/transfers", tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestTransfersEndpoint_ConnectorDown(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetResponse("POST /management/v3/catalog/request", testutil.NewJSONResponse(http.StatusForbidden, `{"error":"forbidden"}`))
	_, h := newTestGateway(t, mock, false)

	body := fmt.Sprintf(`{"counterPartyId": %q, "counterPartyAddress": %q}`, providerBPN, providerAddress)
	resp, _ := serve(t, h, http.MethodPost, "/transfers", body)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestShellsEndpoint(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	setupConnector(mock)
	_, h := newTestGateway(t, mock, false)

	body := fmt.Sprintf(`{"counterPartyId": %q, "counterPartyAddress": %q, "limit": 5}`, providerBPN, providerAddress)
	resp, data := serve(t, h, http.MethodPost, "/shells", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}

	var page dtr.ShellDescriptorPage
	json.Unmarshal(data, &page)
	if len(page.Result) != 1 || page.Result[0].ID != "urn:uuid:shell-1" {
		t.Errorf("page = %+v", page)
	}

	reqs := mock.RequestsTo(http.MethodGet, "/public/shell-descriptors")
	if len(reqs) != 1 || reqs[0].Query != "limit=5" {
		t.Errorf("registry requests = %+v", reqs)
	}
	if reqs[0].Header.Get("X-Api-Key") != "" {
		t.Error("management API key leaked to the data plane")
	}

	catalog := mock.RequestsTo(http.MethodPost, "/management/v3/catalog/request")
	if !strings.Contains(string(catalog[0].Body), DigitalTwinRegistryType) {
		t.Error("catalog request must filter for the registry asset type")
	}
}

func TestSemanticsEndpoint(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	_, h := newTestGateway(t, mock, false)

	resp, data := serve(t, h, http.MethodPost, "/semantics/context?semanticId=urn:samm:example:1.0.0%23Speed", `{"type": "number"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), `"aspect:Speed"`) {
		t.Errorf("body = %s", data)
	}

	resp, _ = serve(t, h, http.MethodPost, "/semantics/context?semanticId=urn:samm:example:1.0.0", `{"type": "number"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid semantic id status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if got := statusFor(ctx.Err()); got != http.StatusGatewayTimeout {
		t.Errorf("statusFor(deadline) = %d, want 504", got)
	}
	if got := statusFor(fmt.Errorf("boom")); got != http.StatusInternalServerError {
		t.Errorf("statusFor(other) = %d, want 500", got)
	}
}
