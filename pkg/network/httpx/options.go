package httpx

import (
	"time"

	"github.com/blastzone/netplay/pkg/logger"
)

type (
	Options struct {
		Https         bool
		HttpsRedirect bool
		// HttpsRedirectAddress is the plain listener of the redirect server.
		HttpsRedirectAddress string
		HttpsCert            string
		HttpsKey             string
		HttpsDomain          string
		PortRoll             bool
		IdleTimeout          time.Duration
		ReadTimeout          time.Duration
		WriteTimeout         time.Duration
		Logger               *logger.Logger
	}
	Option func(*Options)
)

func (o *Options) override(options ...Option) {
	for _, opt := range options {
		opt(o)
	}
}

// IsAutoHttpsCert tells if certificates come from Let's Encrypt.
func (o *Options) IsAutoHttpsCert() bool { return !(o.HttpsCert != "" && o.HttpsKey != "") }

func HttpsRedirect(redirect bool) Option {
	return func(opts *Options) { opts.HttpsRedirect = redirect }
}

func WithPortRoll(roll bool) Option        { return func(opts *Options) { opts.PortRoll = roll } }
func WithLogger(log *logger.Logger) Option { return func(opts *Options) { opts.Logger = log } }

func WithTimeouts(idle, rw time.Duration) Option {
	return func(opts *Options) { opts.IdleTimeout, opts.ReadTimeout, opts.WriteTimeout = idle, rw, rw }
}

// WithHttps serves TLS with the given cert files or,
// if they are empty, with certificates of the domain from Let's Encrypt.
func WithHttps(domain, cert, key, redirectAddress string) Option {
	return func(opts *Options) {
		opts.Https = true
		opts.HttpsDomain = domain
		opts.HttpsCert = cert
		opts.HttpsKey = key
		opts.HttpsRedirectAddress = redirectAddress
	}
}
