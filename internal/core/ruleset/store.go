// internal/core/ruleset/store.go
package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

/*
 * Store holds the compiled rule list served to evaluations.
 *
 * Readers take a snapshot with Rules(); a reload swaps the whole slice, so an
 * evaluation in flight keeps the list it started with. A reload that fails to
 * read or compile is logged and the previous list stays in place.
 *
 * Watch observes the parent directory rather than the file itself because
 * editors commonly save by writing a temp file and renaming it over the
 * original, which drops a watch held on the old inode.
 */
type Store struct {
	path     string
	opts     []rules.CompileOption
	logger   *slog.Logger
	debounce time.Duration

	current  atomic.Pointer[[]*types.Rule]
	reloaded chan struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for reload events.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithCompileOptions passes options through to rules.CompileList.
func WithCompileOptions(opts ...rules.CompileOption) StoreOption {
	return func(s *Store) { s.opts = append(s.opts, opts...) }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) StoreOption {
	return func(s *Store) { s.debounce = d }
}

// NewStore loads path once and returns a Store serving the result.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		path:     path,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		reloaded: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the watched rule file.
func (s *Store) Path() string {
	return s.path
}

// Rules returns the current rule list. Callers must not modify it.
func (s *Store) Rules() []*types.Rule {
	p := s.current.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Reload reads and compiles the rule file, replacing the current list on
// success.
func (s *Store) Reload() error {
	compiled, err := Load(s.path, s.opts...)
	if err != nil {
		return err
	}
	s.current.Store(&compiled)

	select {
	case s.reloaded <- struct{}{}:
	default:
	}
	return nil
}

// Reloaded is signalled after each successful reload.
func (s *Store) Reloaded() <-chan struct{} {
	return s.reloaded
}

// Watch reloads the rule file whenever it changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	s.logger.Info("rule watcher started", "path", s.path)

	// Stopped timer; armed by the first relevant event
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rule watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug("rule file event", "path", event.Name, "op", event.Op.String())
			timer.Reset(s.debounce)

		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Error("rule reload failed, keeping previous rules", "path", s.path, "error", err)
				continue
			}
			s.logger.Info("rules reloaded", "path", s.path, "count", len(s.Rules()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Error("rule watcher error", "error", err)
		}
	}
}
