package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	vaultstate "github.com/goliatone/go-vaultstate"
)

// File is a persistent Storage that keeps one JSON file per key under a root
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a torn value behind.
type File struct {
	root    string
	updates *vaultstate.Subject[vaultstate.StorageUpdate]
}

// NewFile constructs a file store rooted at dir, creating it when missing.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", dir, err)
	}
	return &File{
		root:    dir,
		updates: vaultstate.NewSubject[vaultstate.StorageUpdate](),
	}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.root, key+".json")
}

// Get implements vaultstate.Storage.
func (f *File) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, true, nil
}

// Save implements vaultstate.Storage. A nil value removes the key's file.
func (f *File) Save(_ context.Context, key string, value json.RawMessage) error {
	path := f.path(key)

	if value == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: remove %s: %w", key, err)
		}
		f.updates.Next(vaultstate.StorageUpdate{Key: key, Removed: true})
		return nil
	}

	tmp, err := os.CreateTemp(f.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}

	f.updates.Next(vaultstate.StorageUpdate{Key: key})
	return nil
}

// Has implements vaultstate.Storage.
func (f *File) Has(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	return true, nil
}

// Updates implements vaultstate.Storage.
func (f *File) Updates() vaultstate.Observable[vaultstate.StorageUpdate] {
	return f.updates
}
