package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vitovidale/video-insight-service/domain"
)

// ArtifactStore keeps blobs in a map; references are "memory://<key>".
type ArtifactStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{blobs: make(map[string][]byte)}
}

func (s *ArtifactStore) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "memory://" + key
	s.blobs[ref] = slices.Clone(body)
	return ref, nil
}

func (s *ArtifactStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(body), nil
}

// Refs lists every stored reference.
func (s *ArtifactStore) Refs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blobs))
	for ref := range s.blobs {
		out = append(out, ref)
	}
	slices.Sort(out)
	return out
}
