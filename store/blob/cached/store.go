// Package cached provides a local-disk caching wrapper for payload file
// stores. Voicemail audio is written once and replayed many times, so a
// read-through cache in front of S3 or GCS cuts most of the object-store
// traffic.
package cached

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sipfoundry/voicemail/store"
)

// Store wraps a store.FileStore with local file caching.
type Store struct {
	backend store.FileStore
	dir     string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	size int64
}

var _ store.FileStore = (*Store)(nil)

// New creates a cached payload store wrapping the given backend.
func New(backend store.FileStore, opts ...Option) (*Store, error) {
	o := &options{
		cacheDir: os.TempDir(),
		maxSize:  1 << 30, // 1GB
		ttl:      24 * time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	dir := filepath.Join(o.cacheDir, "voicemail-payloads")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		backend: backend,
		dir:     dir,
		maxSize: o.maxSize,
		ttl:     o.ttl,
		logger:  o.logger,
		stop:    make(chan struct{}),
	}
	s.size = s.measure()

	if s.ttl > 0 {
		go s.sweep()
	}
	return s, nil
}

// Close stops the background expiry sweeper. Cached files stay on disk.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Upload passes content through to the backend. Caching happens on Load.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	return s.backend.Upload(ctx, filename, contentType, content)
}

// Load returns a reader over the payload, serving from the local cache
// when a fresh copy exists and filling the cache otherwise.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	path := s.pathFor(uri)

	if f := s.openFresh(path); f != nil {
		s.logger.Debug("cache hit", "uri", uri)
		return f, nil
	}

	s.logger.Debug("cache miss", "uri", uri)
	src, err := s.backend.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, "fill-*")
	if err != nil {
		// Caching is best-effort; serve the backend stream directly.
		s.logger.Warn("failed to create cache fill file", "error", err)
		return src, nil
	}
	return &fillReader{src: src, tmp: tmp, dest: path, store: s}, nil
}

// Delete removes the payload from the backend and evicts the cached copy.
func (s *Store) Delete(ctx context.Context, uri string) error {
	s.evict(s.pathFor(uri))
	return s.backend.Delete(ctx, uri)
}

// ClearCache removes every cached file.
func (s *Store) ClearCache() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}

	s.mu.Lock()
	s.size = 0
	s.mu.Unlock()
	s.logger.Info("cache cleared")
	return nil
}

func (s *Store) pathFor(uri string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%x", sha256.Sum256([]byte(uri))))
}

// openFresh opens a cached file if it exists and has not expired.
// Expired entries are evicted on the way through.
func (s *Store) openFresh(path string) *os.File {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if time.Since(info.ModTime()) >= s.ttl {
		s.evict(path)
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return f
}

func (s *Store) evict(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if os.Remove(path) == nil {
		s.grow(-info.Size())
	}
}

// admit reserves n bytes of cache space, reporting false when full.
func (s *Store) admit(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size+n > s.maxSize {
		return false
	}
	s.size += n
	return true
}

func (s *Store) grow(delta int64) {
	s.mu.Lock()
	s.size += delta
	if s.size < 0 {
		s.size = 0
	}
	s.mu.Unlock()
}

// measure sums the cache contents at startup.
func (s *Store) measure() int64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to measure cache size", "error", err)
		return 0
	}
	var total int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil && !info.IsDir() {
			total += info.Size()
		}
	}
	return total
}

func (s *Store) sweep() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to read cache dir for cleanup", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.ttl)
	var removed int
	var freed int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
				removed++
				freed += info.Size()
			}
		}
	}
	if removed > 0 {
		s.grow(-freed)
		s.logger.Info("cache cleanup completed", "removed", removed, "freed_bytes", freed)
	}
}

// fillReader streams the backend payload to the caller while copying it
// into a cache fill file, promoted into place on Close.
type fillReader struct {
	src    io.ReadCloser
	tmp    *os.File
	dest   string
	store  *Store
	n      int64
	closed bool
}

func (r *fillReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		if _, werr := r.tmp.Write(p[:n]); werr != nil {
			r.store.logger.Warn("failed to write cache fill file", "error", werr)
		}
		r.n += int64(n)
	}
	return n, err
}

func (r *fillReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	srcErr := r.src.Close()
	if err := r.tmp.Close(); err != nil {
		os.Remove(r.tmp.Name())
		return srcErr
	}

	if !r.store.admit(r.n) {
		os.Remove(r.tmp.Name())
		r.store.logger.Debug("cache full, not caching", "size", r.n)
		return srcErr
	}
	if err := os.Rename(r.tmp.Name(), r.dest); err != nil {
		os.Remove(r.tmp.Name())
		r.store.grow(-r.n)
		r.store.logger.Warn("failed to promote cache fill file", "error", err)
		return srcErr
	}
	r.store.logger.Debug("cached payload", "path", r.dest, "size", r.n)
	return srcErr
}
