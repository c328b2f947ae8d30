package appcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	cacheMetaFile = "cache.json"
	entrySuffix   = ".entry"
	bodySuffix    = ".body"
	tmpSuffix     = ".tmp"
	backupSuffix  = ".bak"
)

// FSStorage keeps each cache in its own directory under a root. Every entry
// is a JSON metadata file plus a body file named after the key hash.
type FSStorage struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex
}

type cacheMeta struct {
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

// NewFSStorage creates the root directory on fs if needed.
func NewFSStorage(fs afero.Fs, root string) (*FSStorage, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FSStorage{fs: fs, root: root}, nil
}

// NewOSStorage is NewFSStorage on the operating system filesystem.
func NewOSStorage(root string) (*FSStorage, error) {
	return NewFSStorage(afero.NewOsFs(), root)
}

func (s *FSStorage) dir(name string) string {
	return filepath.Join(s.root, url.PathEscape(name))
}

// Open implements Storage.
func (s *FSStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, errors.New("empty cache name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.dir(name)
	meta := filepath.Join(dir, cacheMetaFile)
	ok, err := afero.Exists(s.fs, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache %s: %w", name, err)
		}
		data, err := json.Marshal(cacheMeta{Name: name, Created: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if err := afero.WriteFile(s.fs, meta, data, 0o644); err != nil {
			return nil, fmt.Errorf("create cache %s: %w", name, err)
		}
	}
	return &fsCache{fs: s.fs, dir: dir, name: name}, nil
}

// Has implements Storage.
func (s *FSStorage) Has(ctx context.Context, name string) (bool, error) {
	return afero.Exists(s.fs, filepath.Join(s.dir(name), cacheMetaFile))
}

// Keys implements Storage.
func (s *FSStorage) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, err
	}
	metas := make([]cacheMeta, 0, len(infos))
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.root, fi.Name(), cacheMetaFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var m cacheMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("corrupt cache metadata in %s: %w", fi.Name(), err)
		}
		metas = append(metas, m)
	}
	sort.SliceStable(metas, func(i, j int) bool {
		if metas[i].Created.Equal(metas[j].Created) {
			return metas[i].Name < metas[j].Name
		}
		return metas[i].Created.Before(metas[j].Created)
	})
	names := make([]string, len(metas))
	for i, m := range metas {
		names[i] = m.Name
	}
	return names, nil
}

// Delete implements Storage.
func (s *FSStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.dir(name)
	ok, err := afero.DirExists(s.fs, dir)
	if err != nil || !ok {
		return false, err
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return true, nil
}

// Close implements Storage.
func (s *FSStorage) Close() error { return nil }

type fsCache struct {
	fs   afero.Fs
	dir  string
	name string
	mu   sync.Mutex
}

func entryID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func (c *fsCache) Name() string { return c.name }

func (c *fsCache) Match(ctx context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(entryID(key))
}

func (c *fsCache) read(id string) (*Entry, error) {
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, id+entrySuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt entry %s: %w", id, err)
	}
	e.Body, err = afero.ReadFile(c.fs, filepath.Join(c.dir, id+bodySuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *fsCache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, err
	}
	var entries []*Entry
	for _, fi := range infos {
		id, ok := strings.CutSuffix(fi.Name(), entrySuffix)
		if !ok {
			continue
		}
		e, err := c.read(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// PutAll stages every entry under temporary names and renames them into
// place only after all of them were written. A failed rename undoes the
// ones before it.
func (c *fsCache) PutAll(ctx context.Context, entries []*Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var files []renamePair
	discard := func() {
		for _, f := range files {
			_ = c.fs.Remove(f.tmp)
		}
	}
	now := time.Now().UTC()
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			discard()
			return err
		}
		stored := *e
		if stored.StoredAt.IsZero() {
			// Keep insertion order observable through Keys.
			stored.StoredAt = now.Add(time.Duration(i))
		}
		meta, err := json.Marshal(&stored)
		if err != nil {
			discard()
			return err
		}
		id := entryID(e.Key)
		for _, f := range []struct {
			suffix string
			data   []byte
		}{{bodySuffix, e.Body}, {entrySuffix, meta}} {
			final := filepath.Join(c.dir, id+f.suffix)
			tmp := final + tmpSuffix
			if err := afero.WriteFile(c.fs, tmp, f.data, 0o644); err != nil {
				discard()
				return fmt.Errorf("write %s: %w", e.Key, err)
			}
			files = append(files, renamePair{tmp: tmp, final: final})
		}
	}
	return c.commit(files)
}

type renamePair struct{ tmp, final string }

// commit renames every staged file into place. Files it replaces are kept
// aside until the last rename succeeds, so a failure restores the cache as
// it was before.
func (c *fsCache) commit(files []renamePair) error {
	var backups, committed []string
	rollback := func() {
		for _, final := range committed {
			_ = c.fs.Remove(final)
		}
		for _, final := range backups {
			_ = c.fs.Rename(final+backupSuffix, final)
		}
		for _, f := range files {
			_ = c.fs.Remove(f.tmp)
		}
	}
	for _, f := range files {
		ok, err := afero.Exists(c.fs, f.final)
		if err == nil && ok {
			err = c.fs.Rename(f.final, f.final+backupSuffix)
			if err == nil {
				backups = append(backups, f.final)
			}
		}
		if err != nil {
			rollback()
			return fmt.Errorf("commit %s: %w", f.final, err)
		}
		if err := c.fs.Rename(f.tmp, f.final); err != nil {
			rollback()
			return fmt.Errorf("commit %s: %w", f.final, err)
		}
		committed = append(committed, f.final)
	}
	for _, final := range backups {
		_ = c.fs.Remove(final + backupSuffix)
	}
	return nil
}

func (c *fsCache) Delete(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := entryID(key)
	metaPath := filepath.Join(c.dir, id+entrySuffix)
	ok, err := afero.Exists(c.fs, metaPath)
	if err != nil || !ok {
		return false, err
	}
	if err := c.fs.Remove(metaPath); err != nil {
		return false, err
	}
	_ = c.fs.Remove(filepath.Join(c.dir, id+bodySuffix))
	return true, nil
}

var _ Storage = (*FSStorage)(nil)
