package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "wirekit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, newTestStore(t).Factory())
}

func TestListPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	svc, err := s.Service(resource.Namespace("app"), "many")
	require.NoError(t, err)

	const total = listPageSize*2 + 7
	for i := range total {
		require.NoError(t, svc.Write(ctx, fmt.Sprintf("item/%04d", i), []byte("x")))
	}

	count := 0
	prev := ""
	for name, err := range svc.List(ctx, "item/") {
		require.NoError(t, err)
		assert.Greater(t, name, prev)
		prev = name
		count++
	}
	assert.Equal(t, total, count)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wirekit.db")
	ctx := context.Background()

	s, err := NewStore(path)
	require.NoError(t, err)
	svc, err := s.Service(resource.Namespace("app"), "files")
	require.NoError(t, err)
	require.NoError(t, svc.Write(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	svc, err = s.Service(resource.Namespace("app"), "files")
	require.NoError(t, err)

	data, err := svc.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestPrefixWithLikeWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	svc, err := s.Service(resource.Namespace("app"), "wild")
	require.NoError(t, err)
	require.NoError(t, svc.Write(ctx, "a%b", []byte("1")))
	require.NoError(t, svc.Write(ctx, "axb", []byte("2")))

	var names []string
	for name, err := range svc.List(ctx, "a%") {
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"a%b"}, names)
}
