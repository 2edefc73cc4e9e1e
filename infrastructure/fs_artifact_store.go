package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vitovidale/video-insight-service/domain"
)

const fsRefScheme = "file://"

// FSArtifactStore writes artifacts under a root directory for local runs.
// References are "file://<key>" relative to the root.
type FSArtifactStore struct {
	root string
}

func NewFSArtifactStore(root string) (*FSArtifactStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FSArtifactStore{root: abs}, nil
}

func (s *FSArtifactStore) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("persisting artifact: %w", err)
	}
	return fsRefScheme + key, nil
}

func (s *FSArtifactStore) Get(_ context.Context, ref string) ([]byte, error) {
	key, ok := strings.CutPrefix(ref, fsRefScheme)
	if !ok {
		return nil, domain.Wrap(domain.ErrValidation, "artifacts", "get", "not a file reference: "+ref, nil)
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return body, nil
}

func (s *FSArtifactStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.Wrap(domain.ErrValidation, "artifacts", "", "invalid artifact key "+key, nil)
	}
	return filepath.Join(s.root, clean), nil
}
