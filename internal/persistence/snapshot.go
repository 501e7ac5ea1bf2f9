// Package persistence writes collection snapshots as length-prefixed binary
// files, one per collection, using a temp-file plus atomic rename so a crash
// mid-write never corrupts the previous snapshot.
package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopcore/internal/store"
)

const (
	dbFileExtension = ".scdb"
	tempFileSuffix  = ".tmp"
	indexHeader     = "@idx" // pseudo-key carrying the indexed field list
)

// FileStorage persists collections under a single data directory.
type FileStorage struct {
	DataDir string
}

// NewFileStorage creates the data directory if needed.
func NewFileStorage(dataDir string) (*FileStorage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", dataDir, err)
	}
	return &FileStorage{DataDir: dataDir}, nil
}

func (fs *FileStorage) collectionFile(collectionName string) string {
	return filepath.Join(fs.DataDir, collectionName+dbFileExtension)
}

// SaveCollectionData writes one collection snapshot. Implements
// store.Persister.
func (fs *FileStorage) SaveCollectionData(collectionName string, s store.DocStore) error {
	data := s.GetAll()
	finalPath := fs.collectionFile(collectionName)
	tempPath := finalPath + tempFileSuffix

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file '%s': %w", tempPath, err)
	}
	defer file.Close()

	// Indexed fields travel with the data so they can be rebuilt on load.
	indexes := strings.Join(s.ListIndexes(), ",")

	if err := writeRecord(file, indexHeader, []byte(indexes)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write index header for '%s': %w", collectionName, err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(len(data))); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write document count for '%s': %w", collectionName, err)
	}
	for key, value := range data {
		if err := writeRecord(file, key, value); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("failed to write document '%s' in '%s': %w", key, collectionName, err)
		}
	}

	if err := file.Sync(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot file for '%s': %w", collectionName, err)
	}
	file.Close()

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file for '%s': %w", collectionName, err)
	}
	slog.Debug("Collection snapshot saved", "collection", collectionName, "documents", len(data))
	return nil
}

// DeleteCollectionFile removes a collection's snapshot. Implements
// store.Persister.
func (fs *FileStorage) DeleteCollectionFile(collectionName string) error {
	err := os.Remove(fs.collectionFile(collectionName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file for '%s': %w", collectionName, err)
	}
	return nil
}

// LoadCollection reads one collection snapshot into its store. A missing
// file is not an error; the collection simply starts empty.
func (fs *FileStorage) LoadCollection(collectionName string, s store.DocStore) error {
	path := fs.collectionFile(collectionName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	headerKey, headerVal, err := readRecord(file)
	if err != nil {
		return fmt.Errorf("failed to read index header from '%s': %w", path, err)
	}
	if headerKey != indexHeader {
		return fmt.Errorf("snapshot file '%s' has malformed index header", path)
	}

	var numEntries uint32
	if err := binary.Read(file, binary.LittleEndian, &numEntries); err != nil {
		return fmt.Errorf("failed to read document count from '%s': %w", path, err)
	}

	data := make(map[string][]byte, numEntries)
	for i := 0; i < int(numEntries); i++ {
		key, value, err := readRecord(file)
		if err != nil {
			return fmt.Errorf("failed to read document %d from '%s': %w", i, path, err)
		}
		data[key] = value
	}

	s.LoadData(data)
	if indexes := string(headerVal); indexes != "" {
		for _, field := range strings.Split(indexes, ",") {
			s.CreateIndex(field)
		}
	}
	slog.Info("Collection snapshot loaded", "collection", collectionName, "documents", len(data))
	return nil
}

// LoadAll restores every snapshot file found in the data directory.
func (fs *FileStorage) LoadAll(manager *store.Manager) error {
	entries, err := os.ReadDir(fs.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read data directory '%s': %w", fs.DataDir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, dbFileExtension) {
			continue
		}
		collectionName := strings.TrimSuffix(name, dbFileExtension)
		if err := fs.LoadCollection(collectionName, manager.Collection(collectionName)); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, key string, value []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(value))); err != nil {
		return err
	}
	_, err := w.Write(value)
	return err
}

func readRecord(r io.Reader) (string, []byte, error) {
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return "", nil, err
	}
	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return "", nil, err
	}
	var valLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valLen); err != nil {
		return "", nil, err
	}
	valBytes := make([]byte, valLen)
	if _, err := io.ReadFull(r, valBytes); err != nil {
		return "", nil, err
	}
	return string(keyBytes), valBytes, nil
}

// SnapshotScheduler periodically persists every active collection, on top
// of the per-mutation saves the gateway already enqueues.
type SnapshotScheduler struct {
	Manager  *store.Manager
	Interval time.Duration
	Enabled  bool
	quit     chan struct{}
}

// NewSnapshotScheduler creates a scheduler; call Start in a goroutine.
func NewSnapshotScheduler(m *store.Manager, interval time.Duration, enabled bool) *SnapshotScheduler {
	return &SnapshotScheduler{Manager: m, Interval: interval, Enabled: enabled, quit: make(chan struct{})}
}

// Start runs the periodic snapshot loop until Stop is called.
func (ss *SnapshotScheduler) Start() {
	if !ss.Enabled || ss.Interval <= 0 {
		slog.Info("Scheduled snapshots disabled")
		return
	}
	slog.Info("Scheduled snapshots enabled", "interval", ss.Interval)
	ticker := time.NewTicker(ss.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, name := range ss.Manager.ListCollections() {
				ss.Manager.EnqueueSave(name, ss.Manager.Collection(name))
			}
		case <-ss.quit:
			return
		}
	}
}

// Stop signals the scheduler to cease.
func (ss *SnapshotScheduler) Stop() {
	if ss.Enabled {
		close(ss.quit)
	}
}
