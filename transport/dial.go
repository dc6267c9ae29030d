// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"mellium.im/chat/internal/discover"
)

// DialFunc connects to the address on the named network.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Dial implements proxy.Dialer.
func (f DialFunc) Dial(network, addr string) (net.Conn, error) {
	return f(context.Background(), network, addr)
}

// DialContext implements proxy.ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// Endpoint is a parsed server address.
type Endpoint struct {
	Host string
	Port uint16

	// TLS is set when the connection is encrypted as soon as it is established.
	// Otherwise STARTTLS is negotiated by the session.
	TLS bool
}

// String returns the endpoint in the form accepted by ParseEndpoint.
func (e Endpoint) String() string {
	scheme := "tcp://"
	if e.TLS {
		scheme = "tls://"
	}
	return scheme + net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10))
}

// ParseEndpoint parses an endpoint of the form "host[:port]",
// "tls://host[:port]" or "tcp://host[:port]".
// Endpoints without a scheme use direct TLS.
// A missing port is replaced by the default port for the scheme.
func ParseEndpoint(s string) (Endpoint, error) {
	e := Endpoint{TLS: true}
	switch {
	case strings.HasPrefix(s, "tls://"):
		s = strings.TrimPrefix(s, "tls://")
	case strings.HasPrefix(s, "tcp://"):
		s = strings.TrimPrefix(s, "tcp://")
		e.TLS = false
	case strings.Contains(s, "://"):
		return Endpoint{}, fmt.Errorf("transport: unsupported endpoint scheme in %q", s)
	}
	service := discover.ClientTLS
	if !e.TLS {
		service = discover.Client
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// No port.
		e.Host = strings.Trim(s, "[]")
		e.Port = discover.DefaultPort(service)
	} else {
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return Endpoint{}, fmt.Errorf("transport: invalid port in %q: %w", s, err)
		}
		e.Host = host
		e.Port = uint16(p)
	}
	if e.Host == "" {
		return Endpoint{}, fmt.Errorf("transport: endpoint %q has no host", s)
	}
	return e, nil
}

// Dialer contains options for connecting to a server.
// The zero value dials directly with a net.Dialer and a real DNS resolver.
type Dialer struct {
	// Dial replaces the function used to open connections.
	Dial DialFunc

	// Proxy is a socks5:// URL that connections are routed through.
	Proxy string

	// Resolver is used for SRV lookups when no endpoint is given.
	Resolver *net.Resolver

	// TLSConfig is used for direct TLS connections.
	// If nil a config with ServerName set to the endpoint host is used.
	TLSConfig *tls.Config

	// IdleTimeout is the idle window of the resulting link.
	IdleTimeout time.Duration

	Logger *slog.Logger
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d *Dialer) dialFunc() (DialFunc, error) {
	forward := d.Dial
	if forward == nil {
		var nd net.Dialer
		forward = nd.DialContext
	}
	if d.Proxy == "" {
		return forward, nil
	}
	u, err := url.Parse(d.Proxy)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid proxy URL: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("transport: unsupported proxy scheme %q", u.Scheme)
	}
	pd, err := proxy.FromURL(u, forward)
	if err != nil {
		return nil, err
	}
	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		return func(_ context.Context, network, addr string) (net.Conn, error) {
			return pd.Dial(network, addr)
		}, nil
	}
	return cd.DialContext, nil
}

// DialEndpoint connects to e.
// Failures to connect or to complete a direct TLS handshake are reported as
// ErrConnectionRefused.
func (d *Dialer) DialEndpoint(ctx context.Context, e Endpoint) (*Link, error) {
	dial, err := d.dialFunc()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10))
	d.logger().Debug("dialing", "addr", addr, "tls", e.TLS, "proxy", d.Proxy != "")
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Class: ErrConnectionRefused, Err: err}
	}
	if e.TLS {
		cfg := d.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{ServerName: e.Host}
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &Error{Class: ErrConnectionRefused, Err: err}
		}
		conn = tc
	}
	return New(conn, d.IdleTimeout), nil
}

// DialDomain looks up the SRV records for the client service at domain and
// connects to the first host that accepts the connection.
// Direct TLS records are tried before plain ones.
func (d *Dialer) DialDomain(ctx context.Context, domain string) (*Link, error) {
	var endpoints []Endpoint
	for _, service := range [...]string{discover.ClientTLS, discover.Client} {
		addrs, err := discover.LookupService(ctx, d.Resolver, service, domain)
		if err != nil {
			d.logger().Debug("service lookup failed", "service", service, "domain", domain, "err", err)
			continue
		}
		for _, a := range addrs {
			endpoints = append(endpoints, Endpoint{
				Host: strings.TrimSuffix(a.Target, "."),
				Port: a.Port,
				TLS:  service == discover.ClientTLS,
			})
		}
	}
	if len(endpoints) == 0 {
		return nil, &Error{Class: ErrConnectionRefused, Err: fmt.Errorf("no service found at %s", domain)}
	}

	dd := *d
	if dd.TLSConfig == nil {
		dd.TLSConfig = &tls.Config{ServerName: domain}
	}
	var errs []error
	for _, e := range endpoints {
		l, err := dd.DialEndpoint(ctx, e)
		if err == nil {
			return l, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &Error{Class: ErrConnectionRefused, Err: errors.Join(errs...)}
}
