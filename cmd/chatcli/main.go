// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The chatcli command logs in to a chat service, prints every event it
// receives and sends messages typed at the prompt.
//
// Type "/help" at the prompt for a list of commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"mellium.im/chat"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	var (
		configPath string
		envFile    string
		userID     uint64
		endpoint   string
		debug      bool
	)
	flags := pflag.NewFlagSet("chatcli", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "chat.yaml", "path to the YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "file of environment variables to load before reading "+envPassword)
	flags.Uint64VarP(&userID, "user", "u", 0, "user id to log in as, overrides the configuration file")
	flags.StringVar(&endpoint, "endpoint", "", "server endpoint, overrides the configuration file")
	flags.BoolVarP(&debug, "debug", "d", false, "log protocol activity to stderr")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	fc, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}
	if userID != 0 {
		fc.User.ID = userID
	}
	if endpoint != "" {
		fc.Endpoint = endpoint
	}

	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg, user, err := fc.session(logger)
	if err != nil {
		return err
	}
	if user.Password == "" {
		if user.Password, err = promptPassword(); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s, err := chat.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	go func() {
		err := s.Serve(ctx, chat.HandlerFunc(func(e chat.Event) {
			printEvent(out, e)
		}))
		logger.Debug("event loop stopped", "err", err)
	}()
	if err := s.Login(ctx, user); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, s, out, line)
			if err != nil {
				warn(out, "%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}
