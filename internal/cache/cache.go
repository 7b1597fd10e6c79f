// Package cache persists model responses on disk, keyed by the exact
// request. Re-running a check over unchanged files then skips the paid
// API call entirely. Mainly useful for local iteration; CI runs normally
// leave it disabled.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Cache is a content-addressed store of raw model responses.
type Cache struct {
	dir string
}

// New returns a cache rooted at dir, creating it if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key derives the cache key for one dispatch. Model, prompt, and batch
// content all participate, so any change invalidates the entry.
func Key(model, system, user string) string {
	h := sha256.New()
	for _, part := range []string{model, system, user} {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key, if any.
func (c *Cache) Get(key string) (string, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Put stores a response under key.
func (c *Cache) Put(key, content string) error {
	return os.WriteFile(c.path(key), []byte(content), 0o644)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Analyzer mirrors the dispatch surface of the llm client.
type Analyzer interface {
	Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error)
}

type cachingAnalyzer struct {
	inner Analyzer
	cache *Cache
	model string
	log   *slog.Logger
}

// Wrap returns an Analyzer that consults c before dispatching through
// inner and stores every fresh response.
func Wrap(inner Analyzer, c *Cache, model string, log *slog.Logger) Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &cachingAnalyzer{inner: inner, cache: c, model: model, log: log}
}

func (a *cachingAnalyzer) Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error) {
	key := Key(a.model, system, user)
	if content, ok := a.cache.Get(key); ok {
		if accept == nil || accept(content) == nil {
			a.log.Debug("cache hit", "key", key[:12])
			return content, nil
		}
		// Entry no longer passes validation; dispatch fresh.
	}

	content, err := a.inner.Analyze(ctx, system, user, accept)
	if err != nil {
		return "", err
	}
	if err := a.cache.Put(key, content); err != nil {
		a.log.Warn("cache write failed", "error", err)
	}
	return content, nil
}
