// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// services.go - Builds the credential provider, history store, archive and
// endpoint client from the loaded configuration.
package cli

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/client"
	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/storage"
)

// credentials opens the token file. With watch set the provider follows
// external changes until closed.
func (a *app) credentials(watch bool) (*auth.FileProvider, error) {
	provider, err := auth.NewFileProvider(a.cfg.Auth.TokenFile, auth.FileOptions{
		Logger: a.log.Named("auth"),
	})
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	if watch && a.cfg.Auth.WatchTokenFile {
		if err := provider.Watch(); err != nil {
			a.log.Warn("token file watch unavailable", zap.Error(err))
		}
	}
	return provider, nil
}

// historyClient builds the REST client for the configured server.
func (a *app) historyClient(cred history.CredentialSource) *history.Client {
	rps := a.cfg.History.RequestsPerSecond
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return history.NewClient(a.cfg.Server.BaseURL, cred).
		WithRateLimit(rps, burst).
		WithLogger(a.log.Named("history"))
}

// openArchive opens the local archive at the configured path.
func (a *app) openArchive() (*storage.Archive, error) {
	archive, err := storage.Open(a.cfg.History.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return archive, nil
}

// useArchive reports whether chats are read from the local archive.
func (a *app) useArchive() bool {
	return a.cfg.History.Source == config.SourceLocal
}

// session bundles what a connected command needs and closes it in order.
type session struct {
	client   *client.Client
	endpoint *client.Endpoint
	cred     *auth.FileProvider
	archive  *storage.Archive
}

func (s *session) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.cred != nil {
		_ = s.cred.Close()
	}
	if s.archive != nil {
		_ = s.archive.Close()
	}
}

// openSession builds a client for one endpoint. The history store is the
// archive or the server depending on history.source; with history.record
// set, messages are mirrored into the archive.
func (a *app) openSession(name string, watch bool) (*session, error) {
	endpoint, err := conn.ParseEndpoint(name)
	if err != nil {
		return nil, ErrInvalidValue("mode", name, "solo, mix or local")
	}

	s := &session{}
	s.cred, err = a.credentials(watch)
	if err != nil {
		return nil, err
	}
	if s.cred.Token() == "" {
		s.Close()
		return nil, fmt.Errorf("not logged in, run \"helix login\": %w", history.ErrNoCredential)
	}

	opts, err := client.OptionsFromConfig(a.cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	opts.Endpoints = []conn.Endpoint{endpoint}
	opts.Credentials = s.cred
	opts.Logger = a.log.Logger
	opts.Store = a.historyClient(s.cred)

	if a.useArchive() || a.cfg.History.Record {
		s.archive, err = a.openArchive()
		if err != nil {
			s.Close()
			return nil, err
		}
		if a.useArchive() {
			opts.Store = s.archive
		}
		if a.cfg.History.Record {
			opts.Recorder = s.archive
		}
	}

	s.client, err = client.New(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.endpoint, _ = s.client.Endpoint(endpoint)
	return s, nil
}
