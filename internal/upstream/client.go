// Package upstream calls the CRM (Dynamics 365 Web API) and SharePoint (Microsoft
// Graph) with a bearer token from the matching client-credentials cache.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUpstreamStatus = errors.New("upstream returned an error status")

// TokenSource yields the current access token for one system.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StatusError carries the failing upstream status for logging and mapping.
type StatusError struct {
	System string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.System, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

type Client struct {
	system  string
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewClient(system, baseURL string, tokens TokenSource) *Client {
	return &Client{
		system:  system,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetJSON performs an authenticated GET of baseURL+path and decodes the body into dst.
// Token failures are returned unwrapped so callers can match the cache's sentinel.
func (c *Client) GetJSON(ctx context.Context, path string, dst any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.system, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.system, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{System: c.system, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.system, err)
	}
	return nil
}

// WhoAmI is the Dynamics 365 WhoAmI function result.
type WhoAmI struct {
	UserID         string `json:"UserId"`
	BusinessUnitID string `json:"BusinessUnitId"`
	OrganizationID string `json:"OrganizationId"`
}

// CRM wraps the Dynamics 365 Web API.
type CRM struct {
	*Client
}

func NewCRM(baseURL string, tokens TokenSource) *CRM {
	return &CRM{Client: NewClient("crm", baseURL, tokens)}
}

func (c *CRM) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	var out WhoAmI
	if err := c.GetJSON(ctx, "/api/data/v9.2/WhoAmI", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Site is the subset of a Graph site resource the gateway exposes.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// SharePoint wraps Microsoft Graph site lookups.
type SharePoint struct {
	*Client
}

func NewSharePoint(baseURL string, tokens TokenSource) *SharePoint {
	return &SharePoint{Client: NewClient("sharepoint", baseURL, tokens)}
}

// Site looks a site up by Graph id ("root", a site id, or "host:/sites/path").
func (s *SharePoint) Site(ctx context.Context, siteID string) (*Site, error) {
	if strings.TrimSpace(siteID) == "" {
		return nil, errors.New("sharepoint: site id is required")
	}
	var out Site
	if err := s.GetJSON(ctx, "/sites/"+url.PathEscape(siteID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
