// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"mellium.im/chat"
)

const testConfigFile = `
domain: example.net
endpoint: tcp://chat.example.net:5222
keep_alive_interval: 45s
insecure_plaintext: true
user:
  id: 42
  password: secret
`

func TestLoadConfig(t *testing.T) {
	fc, err := loadConfig(strings.NewReader(testConfigFile))
	if err != nil {
		t.Fatalf("error loading config: %v", err)
	}
	cfg, user, err := fc.session(nil)
	if err != nil {
		t.Fatalf("error building session config: %v", err)
	}
	switch {
	case cfg.Domain != "example.net":
		t.Errorf("wrong domain: %q", cfg.Domain)
	case cfg.Endpoint != "tcp://chat.example.net:5222":
		t.Errorf("wrong endpoint: %q", cfg.Endpoint)
	case cfg.KeepAliveInterval != 45*time.Second:
		t.Errorf("wrong keep-alive interval: %v", cfg.KeepAliveInterval)
	case !cfg.InsecurePlaintext:
		t.Errorf("expected plaintext to be allowed")
	case user != chat.User{ID: 42, Password: "secret"}:
		t.Errorf("wrong user: %+v", user)
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	_, err := loadConfig(strings.NewReader("domian: example.net\n"))
	if err == nil {
		t.Errorf("expected an error for an unknown key")
	}
}

func TestConfigPasswordFromEnv(t *testing.T) {
	t.Setenv(envPassword, "from-env")
	fc, err := loadConfig(strings.NewReader("domain: example.net\nuser:\n  id: 7\n"))
	if err != nil {
		t.Fatalf("error loading config: %v", err)
	}
	_, user, err := fc.session(nil)
	if err != nil {
		t.Fatalf("error building session config: %v", err)
	}
	if user.Password != "from-env" {
		t.Errorf("wrong password: want=%q, got=%q", "from-env", user.Password)
	}
}

func TestConfigNoUser(t *testing.T) {
	_, _, err := fileConfig{Domain: "example.net"}.session(nil)
	if !errors.Is(err, errNoUser) {
		t.Errorf("wrong error: want=%v, got=%v", errNoUser, err)
	}
}

func TestRunMissingConfig(t *testing.T) {
	err := run([]string{"--config", "does-not-exist.yaml"}, strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("wrong error: want=%v, got=%v", os.ErrNotExist, err)
	}
}

func TestRunHelp(t *testing.T) {
	if err := run([]string{"--help"}, strings.NewReader(""), &bytes.Buffer{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecuteOffline(t *testing.T) {
	s, err := chat.New(chat.Config{Domain: "example.net"})
	if err != nil {
		t.Fatalf("error creating session: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for i, tc := range []struct {
		line string
		quit bool
		err  error
	}{
		0: {line: "hello"},
		1: {line: "/quit", quit: true},
		2: {line: "/msg 7", err: errUsage},
		3: {line: "/msg 7 hi", err: chat.ErrNotAuthenticated},
		4: {line: "/join lobby", err: chat.ErrNotAuthenticated},
		5: {line: "/help"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var out bytes.Buffer
			quit, err := execute(ctx, s, &out, tc.line)
			if quit != tc.quit {
				t.Errorf("wrong quit value: want=%t, got=%t", tc.quit, quit)
			}
			if !errors.Is(err, tc.err) {
				t.Errorf("wrong error: want=%v, got=%v", tc.err, err)
			}
		})
	}
}

func TestExecuteUnknown(t *testing.T) {
	_, err := execute(context.Background(), nil, &bytes.Buffer{}, "/frobnicate")
	if err == nil {
		t.Errorf("expected an error for an unknown command")
	}
}

func TestPrintEvent(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	printEvent(&out, chat.MessageEvent{Message: chat.Message{From: 7, Body: "hi"}})
	if got, want := out.String(), "<7> hi\n"; got != want {
		t.Errorf("wrong output: want=%q, got=%q", want, got)
	}
}

func TestPrintEventInfo(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	printEvent(&out, chat.PresenceEvent{UserID: 3, Available: true, Status: "away"})
	if got, want := out.String(), "* 3 is online away\n"; got != want {
		t.Errorf("wrong output: want=%q, got=%q", want, got)
	}
}
