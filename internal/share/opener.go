package share

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// validationReply is the JSON answer to a challenge validation request.
// URL may be relative to Dom when Dom is set.
type validationReply struct {
	URL string `json:"url"`
	Dom string `json:"dom"`
	Msg string `json:"inf"`
}

// StreamOpener opens a byte stream for a direct URL
type StreamOpener interface {
	Open(ctx context.Context, directURL string) (*Stream, error)
}

// Opener opens direct URLs and transparently passes challenge pages
type Opener struct {
	transport *Transport
	opts      options
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewOpener creates an Opener on top of transport
func NewOpener(transport *Transport, opts ...Option) *Opener {
	return &Opener{
		transport: transport,
		opts:      applyOptions(opts),
		sleep:     sleepContext,
	}
}

// Open returns a stream for directURL. Each challenge page costs one
// validation round-trip; after maxHops of them the open fails with ErrChallengeParse.
func (o *Opener) Open(ctx context.Context, directURL string) (*Stream, error) {
	current := directURL
	for hop := 0; ; hop++ {
		stream, err := o.transport.Open(ctx, current, nil)
		if err != nil {
			return nil, err
		}
		if !IsChallenge(stream.Header) {
			return stream, nil
		}
		if hop >= o.opts.maxHops {
			stream.Body.Close()
			return nil, fmt.Errorf("%w: still challenged after %d validations", ErrChallengeParse, hop)
		}

		o.opts.logger.Info().Str("url", stream.URL).Int("hop", hop+1).Msg("challenge page received")
		next, err := o.bypass(ctx, stream)
		if err != nil {
			return nil, err
		}
		current = next
	}
}

// bypass consumes a challenge page and returns the URL granted by its validation
func (o *Opener) bypass(ctx context.Context, stream *Stream) (string, error) {
	page, err := io.ReadAll(io.LimitReader(stream.Body, maxChallengePage))
	stream.Body.Close()
	if err != nil {
		return "", fmt.Errorf("%w: reading challenge page: %w", ErrNetwork, err)
	}

	action, ok := ParseValidationAction(string(page))
	if !ok {
		return "", fmt.Errorf("%w: no validation action in page from %s", ErrChallengeParse, stream.URL)
	}
	target, err := resolveReference(stream.URL, action.URL)
	if err != nil {
		return "", fmt.Errorf("%w: bad action url %q: %w", ErrChallengeParse, action.URL, err)
	}

	if err := o.sleep(ctx, o.opts.challengeDelay); err != nil {
		return "", err
	}

	body, err := o.transport.Submit(ctx, action, target, stream.URL)
	if err != nil {
		return "", err
	}

	var reply validationReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("%w: validation reply is not JSON: %w", ErrChallengeParse, err)
	}
	if reply.URL == "" {
		return "", fmt.Errorf("%w: validation reply has no url (%s)", ErrChallengeParse, reply.Msg)
	}

	base := stream.URL
	if reply.Dom != "" {
		base = strings.TrimSuffix(reply.Dom, "/") + "/"
	}
	next, err := resolveReference(base, reply.URL)
	if err != nil {
		return "", fmt.Errorf("%w: bad granted url %q: %w", ErrChallengeParse, reply.URL, err)
	}

	o.opts.logger.Debug().Str("referer", stream.URL).Str("url", next).Msg("challenge validated")
	return next, nil
}

func resolveReference(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
