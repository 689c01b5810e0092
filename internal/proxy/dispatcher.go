// Package proxy forwards requests to the backend selected by the route table and
// relays the backend response verbatim.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"api-gateway/internal/apierror"
	"api-gateway/internal/route"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeout     = 30 * time.Second
	defaultDialTimeout = 5 * time.Second
)

type Options struct {
	// Transport overrides the backend transport built from Timeout.
	Transport http.RoundTripper
	// Timeout bounds the wait for backend response headers.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Dispatcher owns one reverse proxy per route. It is safe for concurrent use.
type Dispatcher struct {
	table   *route.Table
	proxies map[string]*httputil.ReverseProxy
	logger  zerolog.Logger
}

func NewDispatcher(table *route.Table, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport(opts.Timeout)
	}

	d := &Dispatcher{
		table:   table,
		proxies: make(map[string]*httputil.ReverseProxy),
		logger:  opts.Logger,
	}
	for _, rt := range table.Routes() {
		d.proxies[rt.Prefix] = d.newReverseProxy(rt, opts.Transport)
	}
	return d
}

// NewTransport returns the backend transport: bounded dial and response header waits.
func NewTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   defaultDialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.ResponseHeaderTimeout = timeout
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 20
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// Match returns the route that would serve path.
func (d *Dispatcher) Match(path string) (route.Route, bool) {
	return d.table.Resolve(path)
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.table.Resolve(r.URL.Path)
	if !ok {
		apierror.Write(w, http.StatusNotFound, "Not Found")
		return
	}
	d.proxies[rt.Prefix].ServeHTTP(w, r)
}

func (d *Dispatcher) newReverseProxy(rt route.Route, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path, pr.Out.URL.RawPath = rt.RewriteURL(pr.In.URL)
			pr.SetURL(rt.Target)
			if !rt.ChangeOrigin {
				pr.Out.Host = pr.In.Host
			}
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := StatusFor(err)
			ev := d.logger.Warn()
			if errors.Is(err, context.Canceled) {
				ev = d.logger.Debug()
			}
			ev.Err(err).
				Str("route", rt.Prefix).
				Str("target", rt.Target.String()).
				Str("path", r.URL.Path).
				Int("status", status).
				Msg("Backend request failed")
			apierror.Write(w, status, http.StatusText(status))
		},
	}
}

// StatusFor maps a backend transport error to the status sent to the client:
// timeouts become 504, everything else 502.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
