// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"mellium.im/sasl"

	"mellium.im/chat/internal/clock"
	"mellium.im/chat/transport"
)

// Default values used for zero fields of Config.
const (
	DefaultIdleTimeout       = transport.DefaultIdleTimeout
	DefaultKeepAliveInterval = 60 * time.Second
	DefaultIQTimeout         = 30 * time.Second
	DefaultResource          = "chat"
)

// Config represents the configuration of a session.
type Config struct {
	// Domain is the chat service domain. Users are addressed as
	// user-id@Domain.
	Domain string

	// ConferenceDomain hosts the rooms.
	// If empty, "conference." followed by Domain is used.
	ConferenceDomain string

	// Endpoint is the server address in one of the forms accepted by
	// transport.ParseEndpoint.
	// If empty, the SRV records of Domain are looked up.
	Endpoint string

	// Proxy is an optional socks5:// URL through which the server is dialed.
	Proxy string

	// Resource is the resource requested when binding.
	// The server may assign a different one.
	Resource string

	// Lang is the default language of the stream.
	Lang language.Tag

	// IdleTimeout is the window after which a silent connection is considered
	// dead.
	IdleTimeout time.Duration

	// KeepAliveInterval is the interval between keep-alive presences.
	// It should be shorter than the idle window of the server (90 seconds).
	KeepAliveInterval time.Duration

	// IQTimeout is the deadline of every request sent to the server.
	IQTimeout time.Duration

	// NoTLSVerify disables verification of the server certificate.
	NoTLSVerify bool

	// InsecurePlaintext allows authenticating over an unencrypted connection
	// when the server does not offer STARTTLS.
	InsecurePlaintext bool

	// TLSConfig is used for direct TLS and STARTTLS.
	// If nil, a configuration with ServerName set to Domain is used.
	TLSConfig *tls.Config

	// Mechanisms lists the SASL mechanisms in order of preference.
	// If empty, SCRAM-SHA-256, SCRAM-SHA-1 and PLAIN are used.
	Mechanisms []sasl.Mechanism

	// Dial replaces the function used to open connections.
	Dial transport.DialFunc

	// Logger receives structured logs. If nil, logs are discarded.
	Logger *slog.Logger

	// TeeIn and TeeOut, if set, receive a copy of all raw XML read from and
	// written to the server.
	TeeIn, TeeOut io.Writer

	clock clock.Clock
}

var errNoDomain = errors.New("chat: no domain configured")

func (c Config) withDefaults() (Config, error) {
	if c.Domain == "" {
		return c, errNoDomain
	}
	if c.ConferenceDomain == "" {
		c.ConferenceDomain = "conference." + c.Domain
	}
	if c.Resource == "" {
		c.Resource = DefaultResource
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.IQTimeout <= 0 {
		c.IQTimeout = DefaultIQTimeout
	}
	if len(c.Mechanisms) == 0 {
		c.Mechanisms = []sasl.Mechanism{sasl.ScramSha256, sasl.ScramSha1, sasl.Plain}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	return c, nil
}

func (c Config) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.Domain
	}
	if c.NoTLSVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
