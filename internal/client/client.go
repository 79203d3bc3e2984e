// Package client is the typed Go client for the console API. Beyond plain
// request wrappers it carries the UI-facing discipline: one in-flight audit
// action per provider, local reason validation before the wire, and a
// provider snapshot cache kept fresh by refetch-after-mutation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/permissions"
)

// Provider is the API shape of a provider plus the viewer's capabilities.
type Provider struct {
	domain.Provider
	Capabilities permissions.Capabilities `json:"capabilities"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.Mutex
	token    string
	inflight map[string]struct{}
	cache    map[string]*Provider
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		inflight:   make(map[string]struct{}),
		cache:      make(map[string]*Provider),
	}
}

// Login obtains and stores the bearer token for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})

	var resp domain.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/token", body, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) GetProvider(ctx context.Context, id string) (*Provider, error) {
	var p Provider
	if err := c.do(ctx, http.MethodGet, "/api/v1/providers/"+id, nil, &p); err != nil {
		return nil, err
	}
	c.store(&p)
	return &p, nil
}

func (c *Client) ListProviders(ctx context.Context) ([]*Provider, error) {
	var list []*Provider
	if err := c.do(ctx, http.MethodGet, "/api/v1/providers", nil, &list); err != nil {
		return nil, err
	}
	for _, p := range list {
		c.store(p)
	}
	return list, nil
}

// Snapshot returns the locally cached provider state, or nil when the
// provider has not been fetched yet.
func (c *Client) Snapshot(id string) *Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (c *Client) Test(ctx context.Context, id, remark string) (*Provider, error) {
	return c.action(ctx, id, "test", map[string]interface{}{"remark": remark})
}

func (c *Client) Approve(ctx context.Context, id, remark string) (*Provider, error) {
	return c.action(ctx, id, "approve", map[string]interface{}{"remark": remark})
}

func (c *Client) ApproveLimited(ctx context.Context, id string, limitQPS int, remark string) (*Provider, error) {
	return c.action(ctx, id, "approve", map[string]interface{}{
		"limited":   true,
		"limit_qps": limitQPS,
		"remark":    remark,
	})
}

// Reject validates the reason locally: a blank reason never reaches the
// wire, mirroring the server-side rule.
func (c *Client) Reject(ctx context.Context, id, reason, remark string) (*Provider, error) {
	if isBlank(reason) {
		return nil, domain.ErrReasonRequired
	}
	return c.action(ctx, id, "reject", map[string]interface{}{
		"reason": reason,
		"remark": remark,
	})
}

func (c *Client) Pause(ctx context.Context, id, remark string) (*Provider, error) {
	return c.action(ctx, id, "pause", map[string]interface{}{"remark": remark})
}

func (c *Client) Resume(ctx context.Context, id, remark string) (*Provider, error) {
	return c.action(ctx, id, "resume", map[string]interface{}{"remark": remark})
}

func (c *Client) Offline(ctx context.Context, id, remark string) (*Provider, error) {
	return c.action(ctx, id, "offline", map[string]interface{}{"remark": remark})
}

// action is the single-flight mutation path: while one audit or operation
// action for a provider is in flight, further ones fail fast with
// ErrActionInFlight instead of queueing up double decisions.
func (c *Client) action(ctx context.Context, id, verb string, payload map[string]interface{}) (*Provider, error) {
	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)

	body, _ := json.Marshal(payload)

	var p Provider
	if err := c.do(ctx, http.MethodPost, "/api/v1/providers/"+id+"/"+verb, body, &p); err != nil {
		return nil, err
	}

	// The server responds with the refreshed view; the cache follows it.
	c.store(&p)
	return &p, nil
}

// ToggleModel applies the flip to the cached snapshot immediately and rolls
// it back if the server declines. Callers reading Snapshot between the two
// points see the optimistic state.
func (c *Client) ToggleModel(ctx context.Context, id, model string, disabled bool) (*Provider, error) {
	prev := c.setModelDisabled(id, model, disabled)

	body, _ := json.Marshal(map[string]bool{"disabled": disabled})

	var p Provider
	err := c.do(ctx, http.MethodPost, "/api/v1/providers/"+id+"/models/"+model+"/toggle", body, &p)
	if err != nil {
		if prev != nil {
			c.setModelDisabled(id, model, *prev)
		}
		return nil, err
	}

	c.store(&p)
	return &p, nil
}

// setModelDisabled mutates the cached snapshot and returns the previous
// value, or nil when the provider or model is not cached.
func (c *Client) setModelDisabled(id, model string, disabled bool) *bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.cache[id]
	if !ok {
		return nil
	}
	for i := range p.Models {
		if p.Models[i].Name == model {
			prev := p.Models[i].Disabled
			p.Models[i].Disabled = disabled
			return &prev
		}
	}
	return nil
}

func (c *Client) acquire(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return domain.ErrActionInFlight
	}
	c.inflight[id] = struct{}{}
	return nil
}

func (c *Client) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

func (c *Client) store(p *Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.cache[p.ID] = &cp
}

// APIError carries the server's status and error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("console api: %d %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
