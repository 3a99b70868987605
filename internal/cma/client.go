// Package cma is a typed HTTP client for the schema-management API of one
// project: item types, fields, fieldsets, plugins and locales. Reads paginate
// transparently; creates accept caller-chosen ids.
package cma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// pageLimit is the page size used for list endpoints.
const pageLimit = 100

// Client talks to one project's schema-management API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given API base URL and access token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Body)
}

// IsTransient reports whether the error is a rate limit, auth or server error
// that a caller may want to retry, as opposed to a structural failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests:
		return true
	case apiErr.Status == http.StatusUnauthorized:
		return true
	case apiErr.Status >= 500:
		return true
	}
	return false
}

// listPage is the envelope list endpoints respond with.
type listPage[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// listAll pages through a list endpoint until every record is fetched.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	offset := 0
	for {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		page := fmt.Sprintf("%s%spage[offset]=%d&page[limit]=%d", path, sep, offset, pageLimit)

		var result listPage[T]
		if err := c.do(ctx, http.MethodGet, page, nil, &result); err != nil {
			return nil, err
		}
		all = append(all, result.Data...)

		offset += len(result.Data)
		if len(result.Data) < pageLimit || offset >= result.Meta.TotalCount {
			return all, nil
		}
	}
}

// record wraps single-entity responses.
type record[T any] struct {
	Data T `json:"data"`
}

// ListItemTypes returns every item type in the project.
func (c *Client) ListItemTypes(ctx context.Context) ([]*core.ItemType, error) {
	return listAll[*core.ItemType](ctx, c, "/item-types")
}

// GetItemType returns one item type by id.
func (c *Client) GetItemType(ctx context.Context, id string) (*core.ItemType, error) {
	var result record[*core.ItemType]
	if err := c.do(ctx, http.MethodGet, "/item-types/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// CreateItemType creates an item type. The payload's id, when set, is used as
// the created entity's id.
func (c *Client) CreateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error) {
	var result record[*core.ItemType]
	if err := c.do(ctx, http.MethodPost, "/item-types", it, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// UpdateItemType updates an existing item type.
func (c *Client) UpdateItemType(ctx context.Context, it *core.ItemType) (*core.ItemType, error) {
	var result record[*core.ItemType]
	if err := c.do(ctx, http.MethodPut, "/item-types/"+url.PathEscape(it.ID), it, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ListFields returns an item type's fields.
func (c *Client) ListFields(ctx context.Context, itemTypeID string) ([]*core.Field, error) {
	return listAll[*core.Field](ctx, c, "/item-types/"+url.PathEscape(itemTypeID)+"/fields")
}

// CreateField creates a field under its owning item type.
func (c *Client) CreateField(ctx context.Context, f *core.Field) (*core.Field, error) {
	var result record[*core.Field]
	path := "/item-types/" + url.PathEscape(f.ItemTypeID) + "/fields"
	if err := c.do(ctx, http.MethodPost, path, f, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// UpdateField updates an existing field.
func (c *Client) UpdateField(ctx context.Context, f *core.Field) (*core.Field, error) {
	var result record[*core.Field]
	if err := c.do(ctx, http.MethodPut, "/fields/"+url.PathEscape(f.ID), f, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ListFieldsets returns an item type's fieldsets.
func (c *Client) ListFieldsets(ctx context.Context, itemTypeID string) ([]*core.Fieldset, error) {
	return listAll[*core.Fieldset](ctx, c, "/item-types/"+url.PathEscape(itemTypeID)+"/fieldsets")
}

// CreateFieldset creates a fieldset under its owning item type.
func (c *Client) CreateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error) {
	var result record[*core.Fieldset]
	path := "/item-types/" + url.PathEscape(fs.ItemTypeID) + "/fieldsets"
	if err := c.do(ctx, http.MethodPost, path, fs, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// UpdateFieldset updates an existing fieldset.
func (c *Client) UpdateFieldset(ctx context.Context, fs *core.Fieldset) (*core.Fieldset, error) {
	var result record[*core.Fieldset]
	if err := c.do(ctx, http.MethodPut, "/fieldsets/"+url.PathEscape(fs.ID), fs, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ListPlugins returns every installed plugin.
func (c *Client) ListPlugins(ctx context.Context) ([]*core.Plugin, error) {
	return listAll[*core.Plugin](ctx, c, "/plugins")
}

// GetPlugin returns one plugin by id.
func (c *Client) GetPlugin(ctx context.Context, id string) (*core.Plugin, error) {
	var result record[*core.Plugin]
	if err := c.do(ctx, http.MethodGet, "/plugins/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// CreatePlugin installs a plugin.
func (c *Client) CreatePlugin(ctx context.Context, p *core.Plugin) (*core.Plugin, error) {
	var result record[*core.Plugin]
	if err := c.do(ctx, http.MethodPost, "/plugins", p, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Locales returns the project's locale codes.
func (c *Client) Locales(ctx context.Context) ([]string, error) {
	var result record[struct {
		Locales []string `json:"locales"`
	}]
	if err := c.do(ctx, http.MethodGet, "/site", nil, &result); err != nil {
		return nil, err
	}
	return result.Data.Locales, nil
}
