package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
	"github.com/tendant/wirekit/internal/store/file"
	"github.com/tendant/wirekit/internal/store/storetest"
)

// countingService counts reads reaching the wrapped backend.
type countingService struct {
	store.FileService
	reads *atomic.Int64
}

func (c countingService) Read(ctx context.Context, name string) ([]byte, error) {
	c.reads.Add(1)
	return c.FileService.Read(ctx, name)
}

// gatedService holds its first Read after the backend returned, until
// release is closed.
type gatedService struct {
	store.FileService
	armed   *atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (g gatedService) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := g.FileService.Read(ctx, name)
	if g.armed.CompareAndSwap(true, false) {
		close(g.read)
		<-g.release
	}
	return data, err
}

func newCachedFactory(t *testing.T) (store.Factory, store.Factory, *atomic.Int64) {
	t.Helper()
	fs, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	reads := &atomic.Int64{}
	counting := func(scope resource.Scope, id string) (store.FileService, error) {
		svc, err := fs.Service(scope, id)
		if err != nil {
			return nil, err
		}
		return countingService{FileService: svc, reads: reads}, nil
	}

	c, err := New(context.Background(), counting, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c.Factory(), fs.Factory(), reads
}

func TestContract(t *testing.T) {
	cached, _, _ := newCachedFactory(t)
	storetest.Run(t, cached)
}

func TestReadThrough(t *testing.T) {
	cached, _, reads := newCachedFactory(t)
	ctx := context.Background()

	svc, err := cached(resource.Namespace("app"), "files")
	require.NoError(t, err)
	require.NoError(t, svc.Write(ctx, "k", []byte("v")))

	for range 3 {
		data, err := svc.Read(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(data))
	}
	assert.Equal(t, int64(0), reads.Load(), "written value should be served from cache")
}

func TestSharedAcrossServices(t *testing.T) {
	cached, _, reads := newCachedFactory(t)
	ctx := context.Background()

	a, err := cached(resource.Namespace("app"), "files")
	require.NoError(t, err)
	b, err := cached(resource.Namespace("app"), "files")
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, "k", []byte("one")))
	require.NoError(t, a.Write(ctx, "k", []byte("two")))

	data, err := b.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, int64(0), reads.Load())
}

func TestInvalidateOnConflictAndDelete(t *testing.T) {
	cached, raw, reads := newCachedFactory(t)
	ctx := context.Background()

	svc, err := cached(resource.Namespace("app"), "files")
	require.NoError(t, err)
	backend, err := raw(resource.Namespace("app"), "files")
	require.NoError(t, err)

	require.NoError(t, svc.Write(ctx, "k", []byte("cached")))

	// Someone else overwrites behind the cache, then our create-only write loses.
	require.NoError(t, backend.Write(ctx, "k", []byte("external")))
	err = svc.Write(ctx, "k", []byte("mine"), store.OnlyIfNotExists())
	require.Error(t, err)
	assert.True(t, svc.IsAlreadyExists(err))

	data, err := svc.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "external", string(data))
	assert.Equal(t, int64(1), reads.Load())

	require.NoError(t, svc.Delete(ctx, "k"))
	_, err = svc.Read(ctx, "k")
	assert.True(t, store.IsNotFound(err))
}

func TestHasherIsStable(t *testing.T) {
	h := xxHasher{}
	assert.Equal(t, h.Sum64("app/files/k"), h.Sum64("app/files/k"))
	assert.NotEqual(t, h.Sum64("app/files/a"), h.Sum64("app/files/b"))
}

func TestSlowFillDoesNotOverwriteNewerWrite(t *testing.T) {
	ctx := context.Background()
	fs, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	backend, err := fs.Service(resource.Namespace("app"), "files")
	require.NoError(t, err)
	require.NoError(t, backend.Write(ctx, "k", []byte("old")))

	armed := &atomic.Bool{}
	armed.Store(true)
	gate := gatedService{armed: armed, read: make(chan struct{}), release: make(chan struct{})}
	gated := func(scope resource.Scope, id string) (store.FileService, error) {
		svc, err := fs.Service(scope, id)
		if err != nil {
			return nil, err
		}
		g := gate
		g.FileService = svc
		return g, nil
	}

	c, err := New(ctx, gated, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	reader, err := c.Factory()(resource.Namespace("app"), "files")
	require.NoError(t, err)
	writer, err := c.Factory()(resource.Namespace("app"), "files")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var slow []byte
	go func() {
		defer wg.Done()
		slow, _ = reader.Read(ctx, "k")
	}()

	<-gate.read
	require.NoError(t, writer.Write(ctx, "k", []byte("new")))
	close(gate.release)
	wg.Wait()
	assert.Equal(t, "old", string(slow))

	data, err := reader.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data), "a fill that raced a write must not be cached")
}

func TestKeysFollowBackendNames(t *testing.T) {
	ctx := context.Background()
	fs, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	c, err := New(ctx, fs.Factory(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	svc, err := c.Factory()(resource.Namespace("app"), "files")
	require.NoError(t, err)

	// The file backend stores a~b and a-b in the same file.
	require.NoError(t, svc.Write(ctx, "a~b", []byte("one")))
	data, err := svc.Read(ctx, "a~b")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, svc.Write(ctx, "a-b", []byte("two")))
	data, err = svc.Read(ctx, "a~b")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}
