package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// Store keeps uploaded blobs on local disk under opaque keys. The key
// preserves the original extension so downloads carry a usable filename.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a blob directory.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "fieldgate-media")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Save streams a blob to disk and returns its opaque key together with the
// stored size in megabytes.
func (s *Store) Save(filename string, r io.Reader) (key string, sizeMB float64, err error) {
	key = uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", 0, err
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, key))
		return "", 0, err
	}
	return key, float64(written) / (1024 * 1024), nil
}

// Open returns a reader over a stored blob.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, shared.Fail(shared.ErrNotFound, "stored file not found")
	}
	return f, err
}

// Remove deletes a stored blob. Removing an already absent key is not an
// error.
func (s *Store) Remove(key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// resolve rejects keys that would escape the blob directory.
func (s *Store) resolve(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", shared.Fail(shared.ErrInvalidInput, "invalid file key")
	}
	return filepath.Join(s.dir, key), nil
}
