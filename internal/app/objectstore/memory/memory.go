// Package memory is an in-process object store for tests and local
// development. Signed URLs are synthesised, not cryptographically signed.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/hangarhq/hangar/internal/app/objectstore"
)

// Store records issued uploads and deletions so tests can assert the
// lifecycle manager's storage side effects.
type Store struct {
	mu       sync.Mutex
	objects  map[string]bool
	uploads  []string
	removals []string
}

var _ objectstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{objects: make(map[string]bool)}
}

// Put marks an object as present, simulating a completed direct upload.
func (s *Store) Put(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[file] = true
}

// Uploads returns the keys upload URLs were issued for, in order.
func (s *Store) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

// Removals returns the keys removed, in order.
func (s *Store) Removals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removals...)
}

func (s *Store) CreateUpload(_ context.Context, req objectstore.UploadRequest) (objectstore.SignedURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, req.File)
	return objectstore.SignedURL{
		URL: fmt.Sprintf("https://storage.example.com/%s?signature=upload-%d", url.PathEscape(req.File), len(s.uploads)),
	}, nil
}

func (s *Store) GetDownloadURL(_ context.Context, file string) (objectstore.SignedURL, error) {
	query := "signature=download"
	if strings.HasSuffix(file, ".apk") {
		query += "&response-content-type=" + url.QueryEscape("application/vnd.android.package-archive")
	}
	return objectstore.SignedURL{
		URL: fmt.Sprintf("https://storage.example.com/%s?%s", url.PathEscape(file), query),
	}, nil
}

func (s *Store) RemoveFile(_ context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.objects[file] {
		return nil
	}
	delete(s.objects, file)
	s.removals = append(s.removals, file)
	return nil
}

func (s *Store) FileExists(_ context.Context, file string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[file], nil
}
