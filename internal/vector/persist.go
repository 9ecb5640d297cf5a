package vector

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const snapshotExt = ".hnsw"

// graphMetadata is the gob sidecar for one user's graph.
type graphMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
}

// SaveDir persists every user graph under dir, one snapshot per user.
// Writes are atomic (temp file + rename).
func (x *HNSWIndex) SaveDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	x.mu.RLock()
	users := make(map[string]*userGraph, len(x.users))
	for id, ug := range x.users {
		users[id] = ug
	}
	x.mu.RUnlock()

	for userID, ug := range users {
		if err := saveUserGraph(dir, userID, ug); err != nil {
			return fmt.Errorf("save snapshot for %s: %w", userID, err)
		}
	}
	return nil
}

// LoadDir restores user graphs from snapshots under dir. A missing
// directory is a fresh start, not an error.
func (x *HNSWIndex) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		userID, err := url.PathUnescape(strings.TrimSuffix(e.Name(), snapshotExt))
		if err != nil {
			continue
		}
		if err := x.loadUserGraph(dir, userID); err != nil {
			return fmt.Errorf("load snapshot for %s: %w", userID, err)
		}
	}
	return nil
}

func snapshotPath(dir, userID string) string {
	return filepath.Join(dir, url.PathEscape(userID)+snapshotExt)
}

func saveUserGraph(dir, userID string, ug *userGraph) error {
	ug.mu.RLock()
	defer ug.mu.RUnlock()

	path := snapshotPath(dir, userID)

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := ug.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot file: %w", err)
	}

	metaPath := path + ".meta"
	tmpMeta := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMeta)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	meta := graphMetadata{IDMap: ug.idMap, NextKey: ug.nextKey}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		_ = metaFile.Close()
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpMeta, metaPath)
}

func (x *HNSWIndex) loadUserGraph(dir, userID string) error {
	path := snapshotPath(dir, userID)

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer metaFile.Close()

	var meta graphMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	ug := x.forUser(userID, true)
	ug.mu.Lock()
	defer ug.mu.Unlock()

	// coder/hnsw Import requires an io.ByteReader.
	if err := ug.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	ug.idMap = meta.IDMap
	if ug.idMap == nil {
		ug.idMap = make(map[string]uint64)
	}
	ug.nextKey = meta.NextKey
	ug.keyMap = make(map[uint64]string, len(ug.idMap))
	for id, key := range ug.idMap {
		ug.keyMap[key] = id
	}
	return nil
}
