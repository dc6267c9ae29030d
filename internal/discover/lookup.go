// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package discover looks up the hosts that serve a chat domain.
package discover // import "mellium.im/chat/internal/discover"

import (
	"context"
	"errors"
	"net"
)

// Services that may be looked up.
const (
	Client    = "xmpp-client"
	ClientTLS = "xmpps-client"
)

// Errors returned by this package.
var (
	ErrInvalidService = errors.New("discover: service must be one of xmpp-client or xmpps-client")
)

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	ok := errors.As(err, &dnsErr)
	return ok && dnsErr.IsNotFound
}

// DefaultPort returns the well known port for service.
func DefaultPort(service string) uint16 {
	if service == ClientTLS {
		return 5223
	}
	return 5222
}

// FallbackRecords returns fake SRV records based on the service that can be
// used if no actual SRV records can be found but we believe that a service
// exists at the given domain.
func FallbackRecords(service, domain string) []*net.SRV {
	switch service {
	case Client, ClientTLS:
		return []*net.SRV{{
			Target: domain,
			Port:   DefaultPort(service),
		}}
	}
	return nil
}

// LookupService looks for a service hosted at domain.
// It returns addresses from SRV records and if none are found returns a
// fallback record using the domain itself and the default port.
// If the target of the only record is "." the service is decidedly not
// available and an empty list is returned.
func LookupService(ctx context.Context, resolver *net.Resolver, service, domain string) ([]*net.SRV, error) {
	switch service {
	case Client, ClientTLS:
	default:
		return nil, ErrInvalidService
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, addrs, err := resolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		return FallbackRecords(service, domain), nil
	}

	// RFC 6120 §3.2.1: a single record with a target of "." means that the
	// service is not available at this domain.
	if len(addrs) == 1 && addrs[0].Target == "." {
		return nil, nil
	}
	return addrs, nil
}
