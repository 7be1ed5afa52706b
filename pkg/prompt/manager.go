// Package prompt assembles system prompts from a directory of text
// templates. Templates are cached with a TTL and invalidated early
// when the files change on disk.
package prompt

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ckindle-42/portal/pkg/config"
)

// templateExt is appended to logical template names on disk.
const templateExt = ".txt"

type cacheEntry struct {
	content string
	loaded  time.Time
}

// Manager loads and caches prompt templates. Safe for concurrent use.
type Manager struct {
	dir string
	ttl time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a manager over cfg.Dir. A missing directory or a failed
// watcher degrades to TTL-only caching; prompt loading itself never
// fails construction.
func New(cfg *config.PromptsConfig) *Manager {
	m := &Manager{
		dir:   cfg.Dir,
		ttl:   cfg.CacheTTL(),
		cache: make(map[string]cacheEntry),
	}
	m.startWatcher()
	return m
}

// startWatcher begins filesystem invalidation. Best effort: fsnotify
// may be unavailable (or the directory absent) and the TTL still
// bounds staleness.
func (m *Manager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Prompt watcher unavailable, relying on cache TTL", "error", err)
		return
	}

	dirs := []string{m.dir, filepath.Join(m.dir, "preferences")}
	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err == nil {
			watched++
		}
	}
	if watched == 0 {
		slog.Debug("No prompt directories to watch", "dir", m.dir)
		watcher.Close()
		return
	}

	m.watcher = watcher
	m.done = make(chan struct{})
	go m.watch()
}

func (m *Manager) watch() {
	defer close(m.done)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				m.invalidate(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Prompt watcher error", "error", err)
		}
	}
}

// invalidate drops the cache entry for a changed file.
func (m *Manager) invalidate(file string) {
	rel, err := filepath.Rel(m.dir, file)
	if err != nil {
		return
	}
	name := strings.TrimSuffix(filepath.ToSlash(rel), templateExt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[name]; ok {
		delete(m.cache, name)
		slog.Debug("Prompt template invalidated", "template", name)
	}
}

// Template returns the named template's content, or "" when the file
// is missing. Results are cached for the TTL.
func (m *Manager) Template(name string) string {
	m.mu.Lock()
	if entry, ok := m.cache[name]; ok && time.Since(entry.loaded) < m.ttl {
		m.mu.Unlock()
		return entry.content
	}
	m.mu.Unlock()

	content := ""
	raw, err := os.ReadFile(filepath.Join(m.dir, filepath.FromSlash(name)+templateExt))
	if err == nil {
		content = strings.TrimSpace(string(raw))
	} else if !os.IsNotExist(err) {
		slog.Warn("Failed to read prompt template", "template", name, "error", err)
	}

	m.mu.Lock()
	m.cache[name] = cacheEntry{content: content, loaded: time.Now()}
	m.mu.Unlock()
	return content
}

// BuildSystemPrompt joins the base, per-interface, and per-style
// templates with blank lines. Missing templates are silently skipped;
// the result may be empty.
func (m *Manager) BuildSystemPrompt(iface, style string) string {
	names := []string{"base"}
	if iface != "" {
		names = append(names, iface)
	}
	if style != "" {
		names = append(names, "preferences/"+style)
	}

	var parts []string
	for _, name := range names {
		if content := m.Template(name); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Close stops the filesystem watcher.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	<-m.done
	return err
}
