// Package httpc builds HTTP clients with every timeout set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Options tunes a client. Zero fields take the DefaultOptions value.
type Options struct {
	Timeout         time.Duration // Whole request, including body read
	ConnectTimeout  time.Duration
	IdleConnTimeout time.Duration
	MaxConnsPerHost int
}

// DefaultOptions returns settings suited to talking to one local server.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		ConnectTimeout:  5 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxConnsPerHost: 4,
	}
}

// New creates a client. Use it instead of http.DefaultClient, which has
// no timeout.
func New(opts Options) *http.Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = def.IdleConnTimeout
	}
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = def.MaxConnsPerHost
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   opts.MaxConnsPerHost,
			MaxConnsPerHost:       opts.MaxConnsPerHost,
			IdleConnTimeout:       opts.IdleConnTimeout,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ExpectContinueTimeout: time.Second,
		},
	}
}
