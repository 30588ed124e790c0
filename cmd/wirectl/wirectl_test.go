package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/wirekit/internal/cookie"
)

func TestCookieFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")

	jar, err := loadJar(path)
	require.NoError(t, err)
	assert.Empty(t, jar.All())

	jar.Set(cookie.Cookie{Name: "identity", Value: "tok", HTTPOnly: true, MaxAge: 60})
	jar.Set(cookie.Cookie{Name: "gone", Value: "x"})
	jar.Delete("gone")
	require.NoError(t, saveJar(path, jar))

	loaded, err := loadJar(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"identity": "tok"}, loaded.All())

	c, ok := loaded.Get("identity")
	require.True(t, ok)
	assert.True(t, c.HTTPOnly)
	assert.Equal(t, "identity=tok", loaded.Header())
}

func TestParseArg(t *testing.T) {
	assert.Equal(t, float64(3), parseArg("3"))
	assert.Equal(t, "hello", parseArg(`"hello"`))
	assert.Equal(t, "hello", parseArg("hello"))
	assert.Equal(t, map[string]any{"a": true}, parseArg(`{"a": true}`))
	assert.Nil(t, parseArg("null"))
}

func TestParseUsers(t *testing.T) {
	users, err := parseUsers([]string{"alice:pw", "bob:p:w"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "p:w", users[1].Password)

	_, err = parseUsers([]string{"nopassword"})
	assert.Error(t, err)
}
