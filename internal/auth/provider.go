// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"sort"
	"sync"
)

// Provider supplies the current credential. The empty string means none.
type Provider interface {
	Token() string
}

// Notifier is a Provider whose credential can change.
type Notifier interface {
	Provider

	// Subscribe registers fn to be called with the new token after every
	// change. The returned function removes the subscription.
	Subscribe(fn func(token string)) (unsubscribe func())
}

// TokenSink stores a credential obtained by Login.
type TokenSink interface {
	Set(token string) error
}

// =============================================================================
// SUBSCRIBERS
// =============================================================================

// subscribers is the callback registry shared by the providers.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(string)
}

func (s *subscribers) add(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(string))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// notify calls every subscriber in registration order, without holding the
// registry lock.
func (s *subscribers) notify(token string) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), len(ids))
	for i, id := range ids {
		fns[i] = s.fns[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(token)
	}
}

// =============================================================================
// STATIC PROVIDER
// =============================================================================

// StaticProvider holds a token in memory.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
	subs  subscribers
}

// NewStatic creates a provider holding token.
func NewStatic(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Token returns the held token.
func (p *StaticProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Set replaces the token and notifies subscribers if it changed.
func (p *StaticProvider) Set(token string) error {
	p.mu.Lock()
	changed := p.token != token
	p.token = token
	p.mu.Unlock()

	if changed {
		p.subs.notify(token)
	}
	return nil
}

// Subscribe implements Notifier.
func (p *StaticProvider) Subscribe(fn func(token string)) func() {
	return p.subs.add(fn)
}
