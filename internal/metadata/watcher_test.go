package metadata

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchema(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeSchema(t, path, "tables:\n  - name: workers\n")

	registry := NewRegistry()
	w := NewWatcher(path, registry)

	var (
		mu      sync.Mutex
		reloads int
		lastErr error
	)
	w.OnReload(func(tables []TableDef, err error) {
		mu.Lock()
		reloads++
		lastErr = err
		mu.Unlock()
	})
	w.OnReload(func([]TableDef, error) { panic("listener failure") })

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	_, ok := registry.Get("workers")
	require.True(t, ok)

	writeSchema(t, path, "tables:\n  - name: workers\n  - name: companies\n")
	require.Eventually(t, func() bool {
		_, ok := registry.Get("companies")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	writeSchema(t, path, "tables:\n  - name: 'not valid'\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return lastErr != nil
	}, 5*time.Second, 20*time.Millisecond)

	_, ok = registry.Get("companies")
	assert.True(t, ok, "registry keeps previous definitions on a failed reload")

	mu.Lock()
	assert.GreaterOrEqual(t, reloads, 3)
	mu.Unlock()
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeSchema(t, path, "tables: [\n")

	w := NewWatcher(path, NewRegistry())
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeSchema(t, path, "tables: []\n")

	w := NewWatcher(path, NewRegistry())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestWatcher_ConcurrentStartRunsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	writeSchema(t, path, "tables: []\n")

	w := NewWatcher(path, NewRegistry())

	var (
		mu      sync.Mutex
		reloads int
	)
	w.OnReload(func([]TableDef, error) {
		mu.Lock()
		reloads++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Start(context.Background()))
		}()
	}
	wg.Wait()
	t.Cleanup(w.Stop)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, reloads)
}
