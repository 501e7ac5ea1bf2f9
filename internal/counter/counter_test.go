package counter

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/store"
)

type noopPersister struct{}

func (noopPersister) SaveCollectionData(string, store.DocStore) error { return nil }
func (noopPersister) DeleteCollectionFile(string) error               { return nil }

func newService(t *testing.T) *Service {
	t.Helper()
	manager := store.NewManager(noopPersister{}, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(manager, logger)
}

func TestPeekCreatesAtOne(t *testing.T) {
	svc := newService(t)

	first, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	assert.Equal(t, "000001", first)

	// Peek does not advance.
	second, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	assert.Equal(t, "000001", second)
}

func TestIncrementAdvancesPeek(t *testing.T) {
	svc := newService(t)

	_, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	require.NoError(t, svc.Increment("branch-1", "Order"))

	next, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	assert.Equal(t, "000002", next)
}

func TestIncrementMissingKeyIsLoggedNotRaised(t *testing.T) {
	svc := newService(t)
	assert.NoError(t, svc.Increment("branch-1", "Order"))

	// The missing increment left nothing behind.
	value, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	assert.Equal(t, "000001", value)
}

func TestCountersIndependentPerKey(t *testing.T) {
	svc := newService(t)

	_, err := svc.Peek("branch-1", "Order")
	require.NoError(t, err)
	require.NoError(t, svc.Increment("branch-1", "Order"))

	other, err := svc.Peek("branch-1", "Transaction")
	require.NoError(t, err)
	assert.Equal(t, "000001", other)

	otherBranch, err := svc.Peek("branch-2", "Order")
	require.NoError(t, err)
	assert.Equal(t, "000001", otherBranch)
}

func TestReserveIsAtomic(t *testing.T) {
	svc := newService(t)

	const workers = 20
	seen := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := svc.Reserve("branch-1", "Transaction")
			assert.NoError(t, err)
			seen <- value
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for v := range seen {
		assert.False(t, unique[v], "duplicate reserved id %s", v)
		unique[v] = true
	}
	assert.Len(t, unique, workers)

	next, err := svc.Peek("branch-1", "Transaction")
	require.NoError(t, err)
	assert.Equal(t, Format(int64(workers)+1), next)
}
