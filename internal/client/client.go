// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
)

// ErrNoEndpoints is returned by New when no endpoint is configured.
var ErrNoEndpoints = errors.New("no endpoints configured")

// Options configures a Client. Every endpoint shares these values.
type Options struct {
	BaseURL   string
	Endpoints []conn.Endpoint

	// Credentials supplies the bearer token. If it is an auth.Notifier,
	// every endpoint reconnects when the token changes.
	Credentials auth.Provider

	Store    history.Store
	Recorder history.Recorder
	Defaults protocol.Defaults

	MaxMessages    int
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	KeepAlive      time.Duration

	Dialer    conn.Dialer
	Scheduler conn.Scheduler

	Logger *zap.Logger
}

// Client owns one Endpoint per configured endpoint name.
type Client struct {
	logger      *zap.Logger
	credentials auth.Provider
	order       []conn.Endpoint
	endpoints   map[conn.Endpoint]*Endpoint

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// New creates a client. Endpoints are built but not connected.
func New(opts Options) (*Client, error) {
	if len(opts.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Client{
		logger:      opts.Logger,
		credentials: opts.Credentials,
		endpoints:   make(map[conn.Endpoint]*Endpoint, len(opts.Endpoints)),
	}
	for _, raw := range opts.Endpoints {
		name, err := conn.ParseEndpoint(raw.String())
		if err != nil {
			return nil, err
		}
		if _, dup := c.endpoints[name]; dup {
			return nil, fmt.Errorf("endpoint %q configured twice", name)
		}
		c.endpoints[name] = NewEndpoint(EndpointOptions{
			Endpoint:       name,
			BaseURL:        opts.BaseURL,
			Credentials:    opts.Credentials,
			Store:          opts.Store,
			Recorder:       opts.Recorder,
			Defaults:       opts.Defaults,
			MaxMessages:    opts.MaxMessages,
			ReconnectDelay: opts.ReconnectDelay,
			DialTimeout:    opts.DialTimeout,
			KeepAlive:      opts.KeepAlive,
			Dialer:         opts.Dialer,
			Scheduler:      opts.Scheduler,
			Logger:         opts.Logger,
		})
		c.order = append(c.order, name)
	}
	return c, nil
}

// OptionsFromConfig maps the configuration onto client options. Store,
// Recorder, Credentials and Logger are left for the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	endpoints := make([]conn.Endpoint, 0, len(cfg.Server.Endpoints))
	for _, name := range cfg.Server.Endpoints {
		ep, err := conn.ParseEndpoint(name)
		if err != nil {
			return Options{}, err
		}
		endpoints = append(endpoints, ep)
	}

	return Options{
		BaseURL:        cfg.Server.BaseURL,
		Endpoints:      endpoints,
		Defaults:       cfg.ProtocolDefaults(),
		MaxMessages:    cfg.History.MaxMessages,
		ReconnectDelay: cfg.Connection.ReconnectDelay(),
		DialTimeout:    cfg.Connection.DialTimeout(),
		KeepAlive:      cfg.Connection.KeepAlive(),
	}, nil
}

// Endpoint returns the endpoint with the given name.
func (c *Client) Endpoint(name conn.Endpoint) (*Endpoint, error) {
	e, ok := c.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", conn.ErrUnknownEndpoint, name)
	}
	return e, nil
}

// Endpoints returns the endpoints in configuration order.
func (c *Client) Endpoints() []*Endpoint {
	out := make([]*Endpoint, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.endpoints[name])
	}
	return out
}

// Connect starts every endpoint and begins following credential changes.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return conn.ErrClosed
	}
	if n, ok := c.credentials.(auth.Notifier); ok && c.unsubscribe == nil {
		c.unsubscribe = n.Subscribe(c.onCredentialChange)
	}
	c.mu.Unlock()

	return c.each(func(e *Endpoint) error {
		if err := e.Connect(); err != nil {
			return fmt.Errorf("connect %s: %w", e.Name(), err)
		}
		return nil
	})
}

// Reconnect restarts every endpoint.
func (c *Client) Reconnect() error {
	return c.each(func(e *Endpoint) error {
		if err := e.Reconnect(); err != nil {
			return fmt.Errorf("reconnect %s: %w", e.Name(), err)
		}
		return nil
	})
}

// ResetSessions empties the session of every endpoint, for example on
// logout.
func (c *Client) ResetSessions() {
	for _, e := range c.Endpoints() {
		e.ResetSession()
	}
}

// Close closes every endpoint concurrently. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return c.each(func(e *Endpoint) error {
		if err := e.Close(); err != nil {
			return fmt.Errorf("close %s: %w", e.Name(), err)
		}
		return nil
	})
}

// each runs fn for every endpoint concurrently and returns the first error.
func (c *Client) each(fn func(*Endpoint) error) error {
	var g errgroup.Group
	for _, e := range c.Endpoints() {
		g.Go(func() error {
			return fn(e)
		})
	}
	return g.Wait()
}

func (c *Client) onCredentialChange(token string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if token == "" {
		c.logger.Info("credential removed, resetting sessions")
		c.ResetSessions()
	} else {
		c.logger.Info("credential changed, reconnecting")
	}
	if err := c.Reconnect(); err != nil && !errors.Is(err, conn.ErrClosed) {
		c.logger.Warn("reconnect after credential change failed", zap.Error(err))
	}
}
