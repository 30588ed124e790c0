// Package storetest runs the store.FileService contract against a backend.
package storetest

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

// Run exercises every FileService operation through factory.
func Run(t *testing.T, factory store.Factory) {
	t.Helper()
	ns := resource.Namespace("storetest")

	t.Run("ReadMissing", func(t *testing.T) {
		svc, err := factory(ns, "read-missing")
		require.NoError(t, err)

		_, err = svc.Read(context.Background(), "nope.json")
		require.Error(t, err)
		assert.True(t, store.IsNotFound(err), "expected not found, got %v", err)
	})

	t.Run("WriteOverwrite", func(t *testing.T) {
		ctx := context.Background()
		svc, err := factory(ns, "overwrite")
		require.NoError(t, err)

		require.NoError(t, svc.Write(ctx, "a.txt", []byte("one")))
		require.NoError(t, svc.Write(ctx, "a.txt", []byte("two")))

		data, err := svc.Read(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))
	})

	t.Run("CreateOnlyConflict", func(t *testing.T) {
		ctx := context.Background()
		svc, err := factory(ns, "create-only")
		require.NoError(t, err)

		require.NoError(t, svc.Write(ctx, "k", []byte("first"), store.OnlyIfNotExists()))

		err = svc.Write(ctx, "k", []byte("second"), store.OnlyIfNotExists())
		require.Error(t, err)
		assert.True(t, svc.IsAlreadyExists(err), "expected already exists, got %v", err)

		data, err := svc.Read(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))
	})

	t.Run("CreateOnlyRace", func(t *testing.T) {
		ctx := context.Background()
		svc, err := factory(ns, "race")
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		results := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = svc.Write(ctx, "once", []byte{byte('a' + i)}, store.OnlyIfNotExists())
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range results {
			if err == nil {
				winners++
				continue
			}
			assert.True(t, svc.IsAlreadyExists(err), "unexpected error %v", err)
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("IsAlreadyExistsRejectsOtherErrors", func(t *testing.T) {
		svc, err := factory(ns, "predicate")
		require.NoError(t, err)

		_, err = svc.Read(context.Background(), "missing")
		require.Error(t, err)
		assert.False(t, svc.IsAlreadyExists(err))
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		svc, err := factory(ns, "delete")
		require.NoError(t, err)

		require.NoError(t, svc.Write(ctx, "gone", []byte("x")))
		require.NoError(t, svc.Delete(ctx, "gone"))
		_, err = svc.Read(ctx, "gone")
		assert.True(t, store.IsNotFound(err))

		require.NoError(t, svc.Delete(ctx, "never-existed"))
	})

	t.Run("ListPrefix", func(t *testing.T) {
		ctx := context.Background()
		svc, err := factory(ns, "list")
		require.NoError(t, err)

		for _, name := range []string{"byId/1.json", "byId/2.json", "byUsername/alice.json"} {
			require.NoError(t, svc.Write(ctx, name, []byte("{}")))
		}

		// Another resource's files must not show up.
		other, err := factory(ns, "list-other")
		require.NoError(t, err)
		require.NoError(t, other.Write(ctx, "byId/3.json", []byte("{}")))

		collect := func(prefix string) []string {
			var names []string
			for name, err := range svc.List(ctx, prefix) {
				require.NoError(t, err)
				names = append(names, name)
			}
			slices.Sort(names)
			return names
		}

		assert.Equal(t, []string{"byId/1.json", "byId/2.json"}, collect("byId/"))
		assert.Len(t, collect(""), 3)
		assert.Empty(t, collect("nothing/"))

		// Restartable.
		assert.Equal(t, collect("byId/"), collect("byId/"))

		// Early break.
		for range svc.List(ctx, "") {
			break
		}
	})

	t.Run("NestedResources", func(t *testing.T) {
		ctx := context.Background()
		parent := resource.New(ns, "parent")

		a, err := factory(parent, "files")
		require.NoError(t, err)
		b, err := factory(resource.New(ns, "other-parent"), "files")
		require.NoError(t, err)

		require.NoError(t, a.Write(ctx, "x", []byte("a")))
		require.NoError(t, b.Write(ctx, "x", []byte("b")))

		data, err := a.Read(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "a", string(data))

		abs, err := a.Resource().AbsoluteID()
		require.NoError(t, err)
		assert.Equal(t, "storetest/parent/files", abs)
	})

	t.Run("UnscopedResource", func(t *testing.T) {
		_, err := factory(resource.New(nil, "orphan"), "files")
		assert.Error(t, err)
	})
}
