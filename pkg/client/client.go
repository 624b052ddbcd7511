// Package client is the Go SDK for the gfs daemon's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/registry"
	"github.com/rmax-ai/gfs/pkg/retry"
)

// DefaultEndpoint is the daemon's default listen address.
const DefaultEndpoint = "http://127.0.0.1:8090"

// Client is the gfs SDK client. Reads are retried on network errors and
// 5xx responses; writes are sent once.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  retry.Strategy
	attempts int
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRetry sets how many times a read is attempted and the wait between
// attempts.
func WithRetry(attempts int, s retry.Strategy) Option {
	return func(cl *Client) {
		cl.attempts = attempts
		cl.backoff = s
	}
}

// NewClient creates a new gfs client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff:  retry.DefaultBackoff(),
		attempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/v1/health", &status)
	return status, err
}

// ListEntities returns every registered entity.
func (c *Client) ListEntities(ctx context.Context) ([]feature.Entity, error) {
	var entities []feature.Entity
	if err := c.get(ctx, "/v1/entities", &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// FieldsOf returns the fields bound to the entity named entityName.
func (c *Client) FieldsOf(ctx context.Context, entityName string) ([]feature.Field, error) {
	var fields []feature.Field
	if err := c.get(ctx, "/v1/entities/"+url.PathEscape(entityName)+"/fields", &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// GetResource fetches one resource and decodes it as the kind the daemon
// reports.
func (c *Client) GetResource(ctx context.Context, id feature.ResourceID) (feature.Resource, error) {
	var env resourceEnvelope
	if err := c.get(ctx, "/v1/resources?id="+url.QueryEscape(string(id)), &env); err != nil {
		return nil, err
	}
	return registry.DecodeResource(env.Kind, env.Resource)
}

// ListIDs returns the ids of every registered resource of kind, in id order.
func (c *Client) ListIDs(ctx context.Context, kind feature.Kind) ([]feature.ResourceID, error) {
	var list resourceList
	if err := c.get(ctx, "/v1/resources?kind="+url.QueryEscape(string(kind)), &list); err != nil {
		return nil, err
	}
	return list.IDs, nil
}

// Register stores res, overwriting any resource with the same id.
func (c *Client) Register(ctx context.Context, res feature.Resource) (feature.ResourceID, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", res.ResourceID(), err)
	}
	target := c.endpoint + "/v1/resources?kind=" + url.QueryEscape(string(res.Kind()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", decodeAPIError(resp)
	}
	var out registerResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Lineage returns the plan behind a registered transformation.
func (c *Client) Lineage(ctx context.Context, transformationID feature.ResourceID) (Lineage, error) {
	var l Lineage
	err := c.get(ctx, "/v1/transformations/lineage?id="+url.QueryEscape(string(transformationID)), &l)
	return l, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return decodeAPIError(resp)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(decodeAPIError(resp))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	})
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
