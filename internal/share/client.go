package share

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Entry is one file of a share listing
type Entry struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Pwd  string `json:"pwd,omitempty"`
}

// Listing describes what a share reference points at
type Listing struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Entries []Entry `json:"entries"`
}

// Resolver turns share references into direct transfer addresses
type Resolver interface {
	ResolveDirectURL(ctx context.Context, shareURL, pwd string) (string, error)
	ListShare(ctx context.Context, shareURL, pwd string) (*Listing, error)
}

type resolveReply struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Client talks to the address service JSON API
type Client struct {
	baseURL string
	client  *http.Client
	opts    options
}

// NewClient creates an address service client for baseURL
func NewClient(baseURL string, client *http.Client, opts ...Option) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		opts:    applyOptions(opts),
	}
}

// ResolveDirectURL returns the direct transfer address of a single shared file
func (c *Client) ResolveDirectURL(ctx context.Context, shareURL, pwd string) (string, error) {
	var reply resolveReply
	if err := c.get(ctx, "/resolve", shareURL, pwd, &reply); err != nil {
		return "", err
	}
	if reply.URL == "" {
		return "", fmt.Errorf("%w: no direct url for %s: %s", ErrNetwork, shareURL, reply.Error)
	}
	return reply.URL, nil
}

// ListShare returns the name, type and content of a share reference
func (c *Client) ListShare(ctx context.Context, shareURL, pwd string) (*Listing, error) {
	var listing Listing
	if err := c.get(ctx, "/list", shareURL, pwd, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (c *Client) get(ctx context.Context, path, shareURL, pwd string, out any) error {
	q := url.Values{}
	q.Set("url", shareURL)
	if pwd != "" {
		q.Set("pwd", pwd)
	}
	endpoint := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAccessDenied, shareURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s returned %s", ErrNetwork, path, resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding %s reply: %w", ErrNetwork, path, err)
	}

	c.opts.logger.Debug().Str("endpoint", path).Str("url", shareURL).Msg("address service call")
	return nil
}
