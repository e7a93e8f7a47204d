// Package checkpoint persists agent snapshots between training runs.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when the named checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrInvalidStoreType is returned when an unknown store type is configured.
	ErrInvalidStoreType = errors.New("invalid checkpoint store type")
)

// StoreType selects the checkpoint backend.
type StoreType string

const (
	// StoreTypeNone disables checkpointing.
	StoreTypeNone StoreType = "none"
	// StoreTypeFile persists checkpoints as files under a base directory.
	StoreTypeFile StoreType = "file"
)

// Store persists named opaque snapshot blobs.
type Store interface {
	// Save writes a snapshot under the given name, replacing any previous
	// snapshot with that name.
	Save(name string, blob []byte) error

	// Load returns the snapshot stored under name, or ErrNotFound.
	Load(name string) ([]byte, error)

	// List returns the stored checkpoint names in sorted order.
	List() ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// Config holds checkpoint store settings.
type Config struct {
	Type    StoreType
	BaseDir string
}

// DefaultConfig returns file-based checkpointing under ./checkpoints.
func DefaultConfig() Config {
	return Config{
		Type:    StoreTypeFile,
		BaseDir: "checkpoints",
	}
}

// NewStore creates a store from configuration.
func NewStore(cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case StoreTypeNone:
		return &NullStore{}, nil
	case StoreTypeFile:
		return NewFileStore(cfg.BaseDir, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, cfg.Type)
	}
}

const fileExt = ".ckpt.json"

// FileStore writes each checkpoint as one file named <name>.ckpt.json.
// Saves go through a temp file and rename so a crash mid-write never
// corrupts the previous checkpoint.
type FileStore struct {
	baseDir string
	logger  zerolog.Logger
	mu      sync.Mutex
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger.With().Str("component", "checkpoint").Logger(),
	}, nil
}

// Save writes the blob atomically under name.
func (fs *FileStore) Save(name string, blob []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	final := fs.path(name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize checkpoint %s: %w", name, err)
	}

	fs.logger.Info().
		Str("name", name).
		Int("bytes", len(blob)).
		Time("saved_at", time.Now()).
		Msg("Saved checkpoint")
	return nil
}

// Load reads the blob stored under name.
func (fs *FileStore) Load(name string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	blob, err := os.ReadFile(fs.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", name, err)
	}
	return blob, nil
}

// List returns the names of all stored checkpoints.
func (fs *FileStore) List() ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(fs.baseDir, "*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op for file stores.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.baseDir, name+fileExt)
}

// MemStore keeps checkpoints in memory. Used in tests and when durable
// checkpoints are not needed.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Save stores a copy of the blob.
func (ms *MemStore) Save(name string, blob []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	ms.blobs[name] = cp
	return nil
}

// Load returns a copy of the stored blob.
func (ms *MemStore) Load(name string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	blob, ok := ms.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// List returns stored names in sorted order.
func (ms *MemStore) List() ([]string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	names := make([]string, 0, len(ms.blobs))
	for name := range ms.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (ms *MemStore) Close() error { return nil }

// NullStore discards saves and never finds checkpoints.
type NullStore struct{}

func (n *NullStore) Save(name string, blob []byte) error { return nil }

func (n *NullStore) Load(name string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (n *NullStore) List() ([]string, error) { return nil, nil }

func (n *NullStore) Close() error { return nil }
