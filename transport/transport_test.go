// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"
	"time"

	"mellium.im/chat/transport"
)

var endpointTestCases = [...]struct {
	in  string
	out transport.Endpoint
	err bool
}{
	0: {in: "chat.example.net", out: transport.Endpoint{Host: "chat.example.net", Port: 5223, TLS: true}},
	1: {in: "chat.example.net:443", out: transport.Endpoint{Host: "chat.example.net", Port: 443, TLS: true}},
	2: {in: "tcp://chat.example.net", out: transport.Endpoint{Host: "chat.example.net", Port: 5222}},
	3: {in: "tls://[::1]:5223", out: transport.Endpoint{Host: "::1", Port: 5223, TLS: true}},
	4: {in: "tcp://127.0.0.1:6000", out: transport.Endpoint{Host: "127.0.0.1", Port: 6000}},
	5: {in: "ws://chat.example.net", err: true},
	6: {in: "chat.example.net:http", err: true},
	7: {in: "tcp://", err: true},
}

func TestParseEndpoint(t *testing.T) {
	for i, tc := range endpointTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			e, err := transport.ParseEndpoint(tc.in)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected error parsing %q", tc.in)
			case !tc.err && err != nil:
				t.Fatalf("unexpected error: %v", err)
			}
			if e != tc.out {
				t.Errorf("unexpected endpoint: want=%+v, got=%+v", tc.out, e)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var classifyTestCases = [...]struct {
	in    error
	class error
}{
	0: {in: io.EOF, class: transport.ErrConnectionClosed},
	1: {in: fmt.Errorf("read: %w", os.ErrDeadlineExceeded), class: transport.ErrConnectionTimeout},
	2: {in: timeoutErr{}, class: transport.ErrConnectionTimeout},
	3: {in: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, class: transport.ErrConnectionRefused},
	4: {in: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, class: transport.ErrConnectionClosed},
	5: {in: net.ErrClosed, class: transport.ErrConnectionClosed},
	6: {in: &transport.Error{Class: transport.ErrConnectionRefused}, class: transport.ErrConnectionRefused},
}

func TestClassify(t *testing.T) {
	for i, tc := range classifyTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			err := transport.Classify(tc.in)
			if !errors.Is(err, tc.class) {
				t.Errorf("unexpected class: want=%v, got=%v", tc.class, err)
			}
		})
	}
	if transport.Classify(nil) != nil {
		t.Errorf("expected nil error to stay nil")
	}
}

func TestIdleTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := transport.New(client, 20*time.Millisecond)
	defer l.Close()

	_, err := l.Read(make([]byte, 10))
	if !errors.Is(err, transport.ErrConnectionTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	select {
	case err := <-l.Health():
		if !errors.Is(err, transport.ErrConnectionTimeout) {
			t.Errorf("unexpected health error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("health channel did not report the failure")
	}
}

func TestTrafficKeepsLinkAlive(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := transport.New(client, 200*time.Millisecond)
	defer l.Close()

	go func() {
		for range 5 {
			time.Sleep(50 * time.Millisecond)
			if _, err := server.Write([]byte(" ")); err != nil {
				return
			}
		}
	}()
	buf := make([]byte, 1)
	for range 5 {
		if _, err := l.Read(buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestCloseReportsOnce(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	l := transport.New(client, 0)
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	err, ok := <-l.Health()
	if !ok || !errors.Is(err, transport.ErrConnectionClosed) {
		t.Fatalf("unexpected health report: %v, %t", err, ok)
	}
	if _, ok := <-l.Health(); ok {
		t.Errorf("expected health channel to be closed after one report")
	}
	if l.Secure() {
		t.Errorf("plain link reported as secure")
	}
}

func TestDialHook(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	var dialed string
	d := transport.Dialer{
		Dial: func(_ context.Context, network, addr string) (net.Conn, error) {
			dialed = network + " " + addr
			return client, nil
		},
	}
	l, err := d.DialEndpoint(context.Background(), transport.Endpoint{Host: "chat.example.net", Port: 5222})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()
	if dialed != "tcp chat.example.net:5222" {
		t.Errorf("unexpected address dialed: %q", dialed)
	}
}

func TestDialRefused(t *testing.T) {
	d := transport.Dialer{
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		},
	}
	_, err := d.DialEndpoint(context.Background(), transport.Endpoint{Host: "chat.example.net", Port: 5222})
	if !errors.Is(err, transport.ErrConnectionRefused) {
		t.Errorf("expected connection refused, got %v", err)
	}
}

func TestInvalidProxy(t *testing.T) {
	d := transport.Dialer{Proxy: "http://proxy.example.net:8080"}
	_, err := d.DialEndpoint(context.Background(), transport.Endpoint{Host: "chat.example.net", Port: 5222})
	if err == nil {
		t.Errorf("expected unsupported proxy scheme to fail")
	}
}
