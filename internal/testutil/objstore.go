package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/objstore"
)

// InMemoryObjectStore implements objstore.Client over a map.
type InMemoryObjectStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memObject
}

type memObject struct {
	data         []byte
	lastModified time.Time
}

func NewInMemoryObjectStore(bucket string) *InMemoryObjectStore {
	return &InMemoryObjectStore{
		bucket:  bucket,
		objects: make(map[string]memObject),
	}
}

// SetObject installs or replaces one object.
func (s *InMemoryObjectStore) SetObject(key string, data []byte, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memObject{data: data, lastModified: lastModified}
}

func (s *InMemoryObjectStore) Bucket() string {
	return s.bucket
}

func (s *InMemoryObjectStore) List(ctx context.Context, prefix string) ([]objstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []objstore.ObjectInfo
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, objstore.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ierr.NewErrorf("object %s/%s does not exist", s.bucket, key).
			Mark(ierr.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}
