// Package dtr is a client for the Asset Administration Shell registry API
// of a digital twin registry, reached directly or through a connector data
// plane.
package dtr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/rs/zerolog"
)

// ErrInvalidLimit is returned for a non-positive page size.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// HeaderBPN passes the caller's BPN so the registry can filter specific
// asset ids by external subject.
const HeaderBPN = "Edc-Bpn"

// EncodeID encodes an identifier as unpadded URL-safe base64 for use in
// registry paths.
func EncodeID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeID reverses EncodeID. Padded input is accepted.
func DecodeID(encoded string) (string, error) {
	for len(encoded)%4 != 0 {
		encoded += "="
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode identifier: %w", err)
	}
	return string(data), nil
}

// ListOptions filter and page list requests. Zero values are omitted.
type ListOptions struct {
	Limit     int
	Cursor    string
	AssetKind AssetKind

	// AssetType is sent base64 encoded.
	AssetType string

	// BPN is sent as Edc-Bpn.
	BPN string
}

func (o ListOptions) query() (url.Values, error) {
	if o.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if o.AssetKind != "" {
		q.Set("assetKind", string(o.AssetKind))
	}
	if o.AssetType != "" {
		q.Set("assetType", EncodeID(o.AssetType))
	}
	return q, nil
}

// Client talks to one registry. Its underlying client's BaseURL is the
// registry API root, e.g. "https://dtr.example.com/api/v3".
type Client struct {
	client *client.Client
	logger zerolog.Logger
}

// NewClient binds a registry client to c.
func NewClient(c *client.Client) *Client {
	return &Client{
		client: c,
		logger: logging.NewLogger(logging.ComponentDTR),
	}
}

// ListShellDescriptors returns one page of shell descriptors.
func (d *Client) ListShellDescriptors(ctx context.Context, opts ListOptions) (ShellDescriptorPage, error) {
	var page ShellDescriptorPage
	q, err := opts.query()
	if err != nil {
		return page, err
	}
	err = d.do(ctx, http.MethodGet, "/shell-descriptors", q, nil, opts.BPN, &page)
	return page, err
}

// GetShellDescriptor fetches one shell by id.
func (d *Client) GetShellDescriptor(ctx context.Context, id, bpn string) (ShellDescriptor, error) {
	var shell ShellDescriptor
	err := d.do(ctx, http.MethodGet, "/shell-descriptors/"+EncodeID(id), nil, nil, bpn, &shell)
	return shell, err
}

// CreateShellDescriptor registers shell and returns the stored descriptor.
func (d *Client) CreateShellDescriptor(ctx context.Context, shell ShellDescriptor) (ShellDescriptor, error) {
	if shell.ID == "" {
		return ShellDescriptor{}, fmt.Errorf("shell descriptor id is required")
	}
	var created ShellDescriptor
	if err := d.do(ctx, http.MethodPost, "/shell-descriptors", nil, shell, "", &created); err != nil {
		return ShellDescriptor{}, err
	}
	d.logger.Info().Str("shell_id", shell.ID).Msg("Registered shell descriptor")
	return created, nil
}

// DeleteShellDescriptor removes a shell by id.
func (d *Client) DeleteShellDescriptor(ctx context.Context, id string) error {
	if err := d.do(ctx, http.MethodDelete, "/shell-descriptors/"+EncodeID(id), nil, nil, "", nil); err != nil {
		return err
	}
	d.logger.Info().Str("shell_id", id).Msg("Deleted shell descriptor")
	return nil
}

// GetSubmodelDescriptors returns one page of a shell's submodel descriptors.
func (d *Client) GetSubmodelDescriptors(ctx context.Context, shellID string, opts ListOptions) (SubmodelDescriptorPage, error) {
	var page SubmodelDescriptorPage
	q, err := opts.query()
	if err != nil {
		return page, err
	}
	path := "/shell-descriptors/" + EncodeID(shellID) + "/submodel-descriptors"
	err = d.do(ctx, http.MethodGet, path, q, nil, opts.BPN, &page)
	return page, err
}

// GetSubmodelDescriptor fetches one submodel descriptor of a shell.
func (d *Client) GetSubmodelDescriptor(ctx context.Context, shellID, submodelID, bpn string) (SubmodelDescriptor, error) {
	var sm SubmodelDescriptor
	path := "/shell-descriptors/" + EncodeID(shellID) + "/submodel-descriptors/" + EncodeID(submodelID)
	err := d.do(ctx, http.MethodGet, path, nil, nil, bpn, &sm)
	return sm, err
}

// LookupShells returns the ids of shells carrying all of assetIDs. Each
// asset id is sent as base64 encoded JSON.
func (d *Client) LookupShells(ctx context.Context, assetIDs []SpecificAssetID, opts ListOptions) (ShellIDPage, error) {
	var page ShellIDPage
	q, err := opts.query()
	if err != nil {
		return page, err
	}
	for _, id := range assetIDs {
		data, err := json.Marshal(SpecificAssetID{Name: id.Name, Value: id.Value})
		if err != nil {
			return page, fmt.Errorf("encode asset id: %w", err)
		}
		q.Add("assetIds", base64.RawURLEncoding.EncodeToString(data))
	}
	err = d.do(ctx, http.MethodGet, "/lookup/shells", q, nil, opts.BPN, &page)
	return page, err
}

// FetchShellDescriptor implements ShellFetcher.
func (d *Client) FetchShellDescriptor(ctx context.Context, id, bpn string) (ShellDescriptor, error) {
	return d.GetShellDescriptor(ctx, id, bpn)
}

func (d *Client) do(ctx context.Context, method, path string, query url.Values, body any, bpn string, out any) error {
	req, err := d.client.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if bpn != "" {
		req.Header.Set(HeaderBPN, bpn)
	}
	if err := d.client.DoJSON(req, out); err != nil {
		return fmt.Errorf("dtr %s %s: %w", method, path, err)
	}
	return nil
}
