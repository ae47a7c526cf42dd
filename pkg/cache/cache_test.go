package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

func TestKeyIsDeterministicAndDistinguishesInputs(t *testing.T) {
	k1 := Key(stage.Architect, "ctx-a", "generate")
	k2 := Key(stage.Architect, "ctx-a", "generate")
	assert.Equal(t, k1, k2)

	k3 := Key(stage.Architect, "ctx-b", "generate")
	assert.NotEqual(t, k1, k3)

	k4 := Key(stage.Developer, "ctx-a", "generate")
	assert.NotEqual(t, k1, k4)
}

func TestGetSetRoundTrip(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	key := Key(stage.Architect, "ctx", "generate")
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, &Entry{Value: "architecture doc", TokenCount: 42, CreatedAt: time.Now()})
	e, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "architecture doc", e.Value)
}

func TestEvictionIsLRU(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	c.Set("a", &Entry{Value: "A"})
	c.Set("b", &Entry{Value: "B"})
	// touch "a" so "b" becomes the least-recently-used entry
	c.Get("a")
	c.Set("c", &Entry{Value: "C"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "expected least-recently-used entry to be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestFileBackendPersistLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(filepath.Join(dir, "cache.json"))

	c, err := New(4, WithBackend(backend))
	require.NoError(t, err)
	c.Set("k1", &Entry{Value: "v1", TokenCount: 10})
	require.NoError(t, c.Persist())

	c2, err := New(4, WithBackend(backend))
	require.NoError(t, err)
	c2.Load()

	e, ok := c2.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", e.Value)
}

type brokenBackend struct{}

func (brokenBackend) Save(map[string]*Entry) error { return nil }
func (brokenBackend) Load() (map[string]*Entry, error) {
	return nil, assertCorrupted
}

var assertCorrupted = &corruptedError{}

type corruptedError struct{}

func (*corruptedError) Error() string { return "corrupted cache" }

func TestLoadDiscardsCorruptedBackendSilently(t *testing.T) {
	c, err := New(4, WithBackend(brokenBackend{}))
	require.NoError(t, err)
	c.Load() // must not panic or surface the error
	assert.Equal(t, 0, c.Len())
}
