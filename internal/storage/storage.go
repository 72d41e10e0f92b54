// Package storage keeps uploaded and transformed files in a scratch directory. Files are
// named with random UUIDs and the total size of in-flight uploads is bounded by a quota.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/logs"
)

const (
	inputPrefix  = "in-"
	outputPrefix = "out-"
)

// Store owns a scratch directory.
type Store struct {
	dir      string
	maxBytes int64

	mu       sync.Mutex
	reserved map[string]int64
	used     int64
}

var _ protocol.Storage = (*Store)(nil)

// New creates dir if needed. maxBytes bounds the sum of the declared sizes of uploads that
// have not been removed yet; zero disables the quota.
func New(dir string, maxBytes int64) (*Store, error) {
	if maxBytes < 0 {
		return nil, fmt.Errorf("storage quota must not be negative, got %d", maxBytes)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve storage directory %q", dir)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage directory %q", abs)
	}
	return &Store{
		dir:      abs,
		maxBytes: maxBytes,
		reserved: map[string]int64{},
	}, nil
}

// Dir is the absolute path of the scratch directory.
func (s *Store) Dir() string { return s.dir }

// Used is the number of bytes currently reserved by uploads.
func (s *Store) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Create reserves size bytes against the quota and opens a new upload file.
func (s *Store) Create(ctx context.Context, size int64, mediaType string) (protocol.Upload, error) {
	path := s.newPath(inputPrefix, mediaType)

	if err := s.reserve(path, size); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		s.release(path)
		return nil, protocol.StorageError("failed to create upload file", err)
	}

	klog.FromContext(ctx).V(logs.Trace).Info("Created upload", "path", path, "size", size)
	return &upload{store: s, file: file, path: path, size: size}, nil
}

// OutputPath returns a fresh path in the scratch directory for a transformed file with the
// given extension. The file is not created.
func (s *Store) OutputPath(extension string) string {
	return s.newPath(outputPrefix, extension)
}

// Remove deletes the given files and releases their reservations. Paths outside the
// scratch directory are refused. Missing files are not an error.
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var result *multierror.Error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if !s.contains(path) {
			result = multierror.Append(result, fmt.Errorf("refusing to remove %q: not in %q", path, s.dir))
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "failed to remove %q", path))
			continue
		}
		s.release(path)
		klog.FromContext(ctx).V(logs.Trace).Info("Removed file", "path", path)
	}
	return result.ErrorOrNil()
}

// Purge deletes files left in the scratch directory by a previous run.
func (s *Store) Purge(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, "failed to list storage directory %q", s.dir)
	}

	var stale []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && (strings.HasPrefix(name, inputPrefix) || strings.HasPrefix(name, outputPrefix)) {
			stale = append(stale, filepath.Join(s.dir, name))
		}
	}
	if len(stale) > 0 {
		klog.FromContext(ctx).Info("Removing stale files from storage directory", "count", len(stale), "dir", s.dir)
	}
	return s.Remove(ctx, stale...)
}

func (s *Store) newPath(prefix, extension string) string {
	name := prefix + uuid.NewString()
	if extension != "" {
		name += "." + extension
	}
	return filepath.Join(s.dir, name)
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func (s *Store) reserve(path string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 && s.used+size > s.maxBytes {
		return &protocol.Error{
			Kind:        protocol.KindStorage,
			Code:        protocol.CodeUpload,
			Description: fmt.Sprintf("upload of %d bytes exceeds the storage quota (%d of %d bytes in use)", size, s.used, s.maxBytes),
			Remedy:      "Retry later or send a smaller file.",
		}
	}
	s.reserved[path] = size
	s.used += size
	return nil
}

func (s *Store) release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size, ok := s.reserved[path]; ok {
		s.used -= size
		delete(s.reserved, path)
	}
}
