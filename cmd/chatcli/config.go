// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"mellium.im/chat"
)

const envPassword = "CHAT_PASSWORD"

var (
	errNoUser     = errors.New("no user id configured")
	errNoTerminal = errors.New("no password configured and no terminal to prompt on")
)

// fileConfig is the layout of the YAML configuration file.
type fileConfig struct {
	Domain            string        `yaml:"domain"`
	ConferenceDomain  string        `yaml:"conference_domain,omitempty"`
	Endpoint          string        `yaml:"endpoint,omitempty"`
	Proxy             string        `yaml:"proxy,omitempty"`
	Resource          string        `yaml:"resource,omitempty"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval,omitempty"`
	IQTimeout         time.Duration `yaml:"iq_timeout,omitempty"`
	NoTLSVerify       bool          `yaml:"no_tls_verify,omitempty"`
	InsecurePlaintext bool          `yaml:"insecure_plaintext,omitempty"`

	User struct {
		ID       uint64 `yaml:"id"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"user"`
}

// loadConfig decodes a configuration file.
// Unknown keys are rejected.
func loadConfig(r io.Reader) (fileConfig, error) {
	var cfg fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileConfig{}, err
	}
	defer f.Close()
	return loadConfig(f)
}

// session returns the session configuration and the user to log in as.
// The password is taken from the environment if the file does not set one.
func (c fileConfig) session(logger *slog.Logger) (chat.Config, chat.User, error) {
	if c.User.ID == 0 {
		return chat.Config{}, chat.User{}, errNoUser
	}
	user := chat.User{ID: c.User.ID, Password: c.User.Password}
	if user.Password == "" {
		user.Password = os.Getenv(envPassword)
	}
	return chat.Config{
		Domain:            c.Domain,
		ConferenceDomain:  c.ConferenceDomain,
		Endpoint:          c.Endpoint,
		Proxy:             c.Proxy,
		Resource:          c.Resource,
		KeepAliveInterval: c.KeepAliveInterval,
		IQTimeout:         c.IQTimeout,
		NoTLSVerify:       c.NoTLSVerify,
		InsecurePlaintext: c.InsecurePlaintext,
		Logger:            logger,
	}, user, nil
}

// promptPassword reads a password from the terminal with echo disabled.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pass), nil
}
