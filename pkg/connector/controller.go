// Package connector binds the EDC management API: provider resources
// (assets, policies, contract definitions) and the consumer flow that turns
// a catalog offer into a negotiated transfer and an endpoint data reference.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
)

// Object is a JSON-LD object as returned by the management API.
type Object = map[string]any

// Controller manages one management API resource collection, e.g.
// "/v3/assets".
type Controller struct {
	client *client.Client
	path   string
}

// NewController binds a resource collection path on c.
func NewController(c *client.Client, path string) *Controller {
	return &Controller{client: c, path: path}
}

// Path returns the collection path.
func (c *Controller) Path() string {
	return c.path
}

// Create posts obj to the collection and returns the created id response.
func (c *Controller) Create(ctx context.Context, obj any) (Object, error) {
	var out Object
	if err := c.client.JSON(ctx, http.MethodPost, c.path, nil, obj, &out); err != nil {
		return nil, fmt.Errorf("create %s: %w", c.path, err)
	}
	return out, nil
}

// Get fetches one resource by id.
func (c *Controller) Get(ctx context.Context, id string) (Object, error) {
	var out Object
	if err := c.client.JSON(ctx, http.MethodGet, c.itemPath(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get %s: %w", c.itemPath(id), err)
	}
	return out, nil
}

// Update replaces a resource. The id is taken from obj.
func (c *Controller) Update(ctx context.Context, obj any) error {
	if err := c.client.JSON(ctx, http.MethodPut, c.path, nil, obj, nil); err != nil {
		return fmt.Errorf("update %s: %w", c.path, err)
	}
	return nil
}

// Delete removes one resource by id.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.client.JSON(ctx, http.MethodDelete, c.itemPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", c.itemPath(id), err)
	}
	return nil
}

// Query lists resources matching spec.
func (c *Controller) Query(ctx context.Context, spec QuerySpec) ([]Object, error) {
	var out []Object
	if err := c.client.JSON(ctx, http.MethodPost, c.path+"/request", nil, spec, &out); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.path, err)
	}
	return out, nil
}

func (c *Controller) itemPath(id string) string {
	return c.path + "/" + url.PathEscape(id)
}
