package store

import (
	"log/slog"
	"maps"
	"sync"
)

// Persister is the interface the manager uses to persist collections.
type Persister interface {
	SaveCollectionData(collectionName string, s DocStore) error
	DeleteCollectionFile(collectionName string) error
}

type saveTask struct {
	collectionName string
	collection     DocStore
}

type deleteTask struct {
	collectionName string
}

// Manager owns all named collection stores and funnels persistence work
// through a single background worker so request handling never blocks on
// disk I/O.
type Manager struct {
	collections map[string]DocStore
	mu          sync.RWMutex
	persister   Persister
	saveQueue   chan saveTask
	deleteQueue chan deleteTask
	quit        chan struct{}
	wg          sync.WaitGroup
	numShards   int
	fileLocks   map[string]*sync.Mutex
	fileLocksMu sync.RWMutex
}

// NewManager creates a Manager and starts its persistence worker.
func NewManager(persister Persister, numShards int) *Manager {
	m := &Manager{
		collections: make(map[string]DocStore),
		persister:   persister,
		saveQueue:   make(chan saveTask, 100),
		deleteQueue: make(chan deleteTask, 10),
		quit:        make(chan struct{}),
		numShards:   numShards,
		fileLocks:   make(map[string]*sync.Mutex),
	}
	m.startWorker()
	return m
}

func (m *Manager) startWorker() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case task, ok := <-m.saveQueue:
				if !ok {
					return
				}
				m.runSave(task)
			case task, ok := <-m.deleteQueue:
				if !ok {
					return
				}
				m.runDelete(task)
			case <-m.quit:
				// Drain both queues before stopping so shutdown never
				// loses an enqueued mutation.
				for len(m.saveQueue) > 0 {
					m.runSave(<-m.saveQueue)
				}
				for len(m.deleteQueue) > 0 {
					m.runDelete(<-m.deleteQueue)
				}
				slog.Info("Collection persistence worker stopped")
				return
			}
		}
	}()
}

func (m *Manager) runSave(task saveTask) {
	lock := m.fileLock(task.collectionName)
	lock.Lock()
	defer lock.Unlock()
	if err := m.persister.SaveCollectionData(task.collectionName, task.collection); err != nil {
		slog.Error("Error saving collection", "collection", task.collectionName, "error", err)
	}
}

func (m *Manager) runDelete(task deleteTask) {
	lock := m.fileLock(task.collectionName)
	lock.Lock()
	defer lock.Unlock()
	if err := m.persister.DeleteCollectionFile(task.collectionName); err != nil {
		slog.Error("Error deleting collection file", "collection", task.collectionName, "error", err)
	}
}

// Wait blocks until all outstanding persistence tasks complete and the
// worker stops.
func (m *Manager) Wait() {
	close(m.quit)
	m.wg.Wait()
}

// EnqueueSave snapshots the collection and queues it for persistence. The
// snapshot copy means the live collection is never locked during disk I/O.
func (m *Manager) EnqueueSave(collectionName string, col DocStore) {
	tempStore := NewMemStore(m.numShards)
	tempStore.LoadData(col.GetAll())
	for _, field := range col.ListIndexes() {
		tempStore.CreateIndex(field)
	}

	select {
	case m.saveQueue <- saveTask{collectionName: collectionName, collection: tempStore}:
	default:
		slog.Warn("Save queue is full, dropping task", "collection", collectionName)
	}
}

// EnqueueDelete queues removal of a collection's snapshot file.
func (m *Manager) EnqueueDelete(collectionName string) {
	select {
	case m.deleteQueue <- deleteTask{collectionName: collectionName}:
	default:
		slog.Warn("Delete queue is full, dropping task", "collection", collectionName)
	}
}

// Collection returns the store for a collection, creating it on first use.
func (m *Manager) Collection(name string) DocStore {
	m.mu.RLock()
	col, found := m.collections[name]
	m.mu.RUnlock()
	if found {
		return col
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if col, found = m.collections[name]; found {
		return col
	}
	newCol := NewMemStore(m.numShards)
	m.collections[name] = newCol
	slog.Info("Collection created", "name", name, "num_shards", m.numShards)
	return newCol
}

// ListCollections returns the names of all active collections.
func (m *Manager) ListCollections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	return names
}

// CleanExpiredItemsAndSave sweeps expired items (OTP codes, expired QR
// transactions) from every collection and persists the ones that changed.
func (m *Manager) CleanExpiredItemsAndSave() {
	m.mu.RLock()
	snapshot := make(map[string]DocStore, len(m.collections))
	maps.Copy(snapshot, m.collections)
	m.mu.RUnlock()

	for name, col := range snapshot {
		if col.CleanExpiredItems() {
			m.EnqueueSave(name, col)
		}
	}
}

func (m *Manager) fileLock(collectionName string) *sync.Mutex {
	m.fileLocksMu.RLock()
	lock, exists := m.fileLocks[collectionName]
	m.fileLocksMu.RUnlock()
	if exists {
		return lock
	}

	m.fileLocksMu.Lock()
	defer m.fileLocksMu.Unlock()
	if lock, exists = m.fileLocks[collectionName]; exists {
		return lock
	}
	lock = &sync.Mutex{}
	m.fileLocks[collectionName] = lock
	return lock
}
