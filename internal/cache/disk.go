package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ivlev/slides2video/internal/fault"
)

// Store is the blob storage the cache sits on. Keys map to opaque blob paths;
// where and how blobs live on disk is the store's business alone.
type Store interface {
	Exists(key string) bool
	Get(key string) (string, error)
	Put(key string, src io.Reader) (string, error)
}

// DiskStore keeps blobs as flat files under an injected root directory.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fault.Wrap(fault.ErrCacheIO, "store", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) blobPath(key string) string {
	return filepath.Join(s.root, key+".seg")
}

func (s *DiskStore) Exists(key string) bool {
	fi, err := os.Stat(s.blobPath(key))
	return err == nil && !fi.IsDir()
}

func (s *DiskStore) Get(key string) (string, error) {
	path := s.blobPath(key)
	if _, err := os.Stat(path); err != nil {
		return "", fault.Wrap(fault.ErrCacheIO, "store", fmt.Sprintf("key %s", shortKey(key)), err)
	}
	return path, nil
}

// Put streams src into the store under key. The blob lands in a temp file
// first and is renamed into place only after src is fully drained, so a
// failed producer never leaves a readable entry under the key. Errors raised
// by src itself pass through unwrapped; the caller distinguishes render
// failures from storage failures that way.
func (s *DiskStore) Put(key string, src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.root, "put-*.tmp")
	if err != nil {
		return "", fault.Wrap(fault.ErrCacheIO, "store", "create temp", err)
	}
	tmpPath := tmp.Name()

	fw := &fileWriter{f: tmp}
	_, copyErr := io.Copy(fw, src)
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if fw.err != nil {
			return "", fault.Wrap(fault.ErrCacheIO, "store", "write blob", fw.err)
		}
		if copyErr != nil {
			return "", copyErr
		}
		return "", fault.Wrap(fault.ErrCacheIO, "store", "close blob", closeErr)
	}

	final := s.blobPath(key)
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", fault.Wrap(fault.ErrCacheIO, "store", "publish blob", err)
	}
	return final, nil
}

// fileWriter remembers whether a failure came from the file side of the copy.
type fileWriter struct {
	f   *os.File
	err error
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
