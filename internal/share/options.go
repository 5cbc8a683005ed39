package share

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults for the challenge bypass protocol
const (
	// DefaultChallengeDelay is the pause the remote service requires between
	// serving the challenge page and accepting its validation request.
	DefaultChallengeDelay = 2 * time.Second

	// DefaultMaxChallengeHops bounds the number of validation round-trips per open.
	DefaultMaxChallengeHops = 3

	// DefaultUserAgent is sent with every request unless overridden
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxChallengePage = 1 << 20
	maxAPIResponse   = 4 << 20
)

type options struct {
	logger         zerolog.Logger
	challengeDelay time.Duration
	maxHops        int
	userAgent      string
}

func defaultOptions() options {
	return options{
		logger:         zerolog.Nop(),
		challengeDelay: DefaultChallengeDelay,
		maxHops:        DefaultMaxChallengeHops,
		userAgent:      DefaultUserAgent,
	}
}

// Option configures Client, Transport and Opener.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChallengeDelay overrides DefaultChallengeDelay. Negative values are ignored.
func WithChallengeDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.challengeDelay = d
		}
	}
}

// WithMaxChallengeHops overrides DefaultMaxChallengeHops. Values below 1 are ignored.
func WithMaxChallengeHops(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxHops = n
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
