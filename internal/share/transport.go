package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrNetwork wraps transport failures and unexpected HTTP statuses
	ErrNetwork = errors.New("network error")

	// ErrAccessDenied is returned when the service rejects the share password
	ErrAccessDenied = errors.New("access denied")
)

// Stream is an open response body with the headers that came with it.
// URL is the final address after redirects.
type Stream struct {
	URL    string
	Header http.Header
	Body   io.ReadCloser
}

// ContentLength returns the declared body size, or -1 when absent
func (s *Stream) ContentLength() int64 {
	v := s.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// IsAttachment reports whether the response declares a file body
func (s *Stream) IsAttachment() bool {
	return s.Header.Get("Content-Disposition") != ""
}

// IsChallenge reports whether a response is an HTML page served in place of file content.
func IsChallenge(header http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "text/html"
}

// NewHTTPClient returns a client with a cookie jar so that cookies issued
// alongside a challenge page are replayed on the validation request.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// Transport opens byte streams and submits challenge validations
type Transport struct {
	client *http.Client
	opts   options
}

// NewTransport creates a transport over client.
// The client must not set a Timeout when used for long transfers; cancellation
// goes through the request context.
func NewTransport(client *http.Client, opts ...Option) *Transport {
	return &Transport{client: client, opts: applyOptions(opts)}
}

// Open issues a GET for rawURL and returns the response stream
func (t *Transport) Open(ctx context.Context, rawURL string, header http.Header) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	t.setDefaults(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %s from %s", ErrNetwork, resp.Status, rawURL)
	}

	t.opts.logger.Debug().
		Str("url", rawURL).
		Str("content_type", resp.Header.Get("Content-Type")).
		Int64("content_length", resp.ContentLength).
		Msg("stream opened")

	return &Stream{
		URL:    resp.Request.URL.String(),
		Header: resp.Header,
		Body:   resp.Body,
	}, nil
}

// Submit sends a validation request and returns the response body.
// POST sends fields form-encoded; any other method carries them in the query.
func (t *Transport) Submit(ctx context.Context, action *Action, target, referer string) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	method := strings.ToUpper(action.Method)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(action.Fields.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		var u *url.URL
		u, err = url.Parse(target)
		if err == nil {
			q := u.Query()
			for k, vs := range action.Fields {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			u.RawQuery = q.Encode()
			req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid validation request: %w", err)
	}
	req.Header.Set("Referer", referer)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	t.setDefaults(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: validation returned %s", ErrNetwork, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return body, nil
}

func (t *Transport) setDefaults(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.opts.userAgent)
	}
}
