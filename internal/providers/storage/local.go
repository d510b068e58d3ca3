package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalStore keeps objects on the local filesystem under a single root
// directory. Good enough for development and single-node deployments.
type LocalStore struct {
	root string
	log  *zap.Logger
}

func NewLocal(root string, log *zap.Logger) *LocalStore {
	return &LocalStore{
		root: root,
		log:  log.Named("storage.local"),
	}
}

func (s *LocalStore) Put(ctx context.Context, key string, contents io.Reader) (string, error) {
	ref, target, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	file, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer file.Close()

	written, err := io.Copy(file, contents)
	if err != nil {
		return "", err
	}

	s.log.Debug("object stored",
		zap.String("ref", ref),
		zap.Int64("bytes", written),
	)
	return ref, nil
}

func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	_, target, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// resolve normalizes the key and pins it under the store root so references
// coming back from the database cannot escape it.
func (s *LocalStore) resolve(key string) (string, string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	if cleaned == "/" {
		return "", "", ErrInvalidRef
	}
	ref := strings.TrimPrefix(cleaned, "/")
	return ref, filepath.Join(s.root, filepath.FromSlash(ref)), nil
}
