// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/util"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatching is returned by Watch when the provider already watches.
var ErrWatching = errors.New("token file is already watched")

// DefaultTokenPath returns ~/.helix/token.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".helix", "token")
	}
	return filepath.Join(home, ".helix", "token")
}

// ReadTokenFile returns the trimmed content of path. A missing file is an
// empty token, not an error.
func ReadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// =============================================================================
// FILE PROVIDER
// =============================================================================

// FileOptions configures a FileProvider.
type FileOptions struct {
	// Debounce delays reloads after file events. Defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger is the diagnostic sink. Defaults to a no-op logger.
	Logger *zap.Logger
}

// FileProvider reads the token from a file. After Watch, edits to the file
// by other processes (another helix login, a text editor) are picked up and
// reported to subscribers.
type FileProvider struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	subs subscribers
}

// NewFileProvider loads the token at path.
func NewFileProvider(path string, opts FileOptions) (*FileProvider, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve token path: %w", err)
	}
	token, err := ReadTokenFile(abs)
	if err != nil {
		return nil, err
	}

	return &FileProvider{
		path:     abs,
		debounce: opts.Debounce,
		logger:   opts.Logger.With(zap.String("token_file", abs)),
		token:    token,
	}, nil
}

// Path returns the absolute token file path.
func (p *FileProvider) Path() string {
	return p.path
}

// Token returns the last loaded token.
func (p *FileProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Subscribe implements Notifier.
func (p *FileProvider) Subscribe(fn func(token string)) func() {
	return p.subs.add(fn)
}

// Set writes token to the file with owner-only permissions. The empty token
// removes the file.
func (p *FileProvider) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove token file: %w", err)
		}
	} else if err := util.WriteSecretFile(p.path, []byte(token+"\n")); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	p.update(token)
	return nil
}

// Reload rereads the file and reports whether the token changed.
func (p *FileProvider) Reload() (bool, error) {
	token, err := ReadTokenFile(p.path)
	if err != nil {
		return false, err
	}
	return p.update(token), nil
}

func (p *FileProvider) update(token string) bool {
	p.mu.Lock()
	changed := p.token != token
	p.token = token
	p.mu.Unlock()

	if changed {
		p.logger.Info("credential changed", zap.Bool("present", token != ""))
		p.subs.notify(token)
	}
	return changed
}

// =============================================================================
// WATCHING
// =============================================================================

// Watch starts watching the token file. The parent directory is watched so
// that atomic replacements and re-creation after removal are seen.
func (p *FileProvider) Watch() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		return ErrWatching
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, util.SecretDirPerm); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watcher = watcher
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.processEvents(ctx, watcher, p.done)
	return nil
}

// Close stops watching. It is safe to call more than once.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	watcher, cancel, done := p.watcher, p.cancel, p.done
	p.watcher, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	if watcher == nil {
		return nil
	}
	cancel()
	<-done
	return watcher.Close()
}

// processEvents reloads the token once file events have been quiet for the
// debounce interval.
func (p *FileProvider) processEvents(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path || event.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(p.debounce)
				pending = timer.C
			} else {
				timer.Reset(p.debounce)
			}

		case <-pending:
			if _, err := p.Reload(); err != nil {
				p.logger.Warn("failed to reload token file", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("token watcher error", zap.Error(err))
		}
	}
}
