package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// FileCache implements Persister using filesystem storage
type FileCache struct {
	dir string
}

// fileRecord keeps the original key next to the entry; sanitized file names
// can collide
type fileRecord struct {
	Key string `json:"key"`
	Entry
}

// NewFileCache creates a file-based cache in the specified subdirectory
// If subdir is empty, uses the default cache directory
func NewFileCache(subdir string) (*FileCache, error) {
	usr, err := user.Current()
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(usr.HomeDir, ".tickerscope_cache")
	if subdir != "" {
		baseDir = filepath.Join(baseDir, subdir)
	}
	return NewFileCacheAt(baseDir)
}

// NewFileCacheAt creates a file-based cache rooted at dir
func NewFileCacheAt(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Load implements Persister
func (fc *FileCache) Load(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cache file for %s: %w", key, err)
	}
	if rec.Key != key {
		return nil, ErrNotFound
	}
	return &rec.Entry, nil
}

// Save implements Persister
func (fc *FileCache) Save(_ context.Context, key string, entry *Entry) error {
	path := fc.path(key)

	data, err := json.MarshalIndent(fileRecord{Key: key, Entry: *entry}, "", "  ")
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// path generates the full filesystem path for a cache key
func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, fc.fileName(key))
}

// fileName ensures the key is safe for use as a filename
func (fc *FileCache) fileName(key string) string {
	// For very long keys, use hash to avoid filesystem limits
	if len(key) > 200 {
		hash := md5.Sum([]byte(key))
		return fmt.Sprintf("hash_%x.json", hash)
	}

	// Replace unsafe characters
	unsafe := []string{"/", ":", "?", "&", "=", "#", "<", ">", "|", "*", "\"", "\\", " "}
	result := key
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	return result + ".json"
}
