package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tendant/wirekit/internal/cookie"
)

func defaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".wirectl-cookies.json"
	}
	return filepath.Join(dir, "wirectl", "cookies.json")
}

// loadJar reads the cookie file. A missing file is an empty jar.
func loadJar(path string) (*cookie.Jar, error) {
	jar := cookie.NewJar("")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return jar, nil
	}
	if err != nil {
		return nil, err
	}

	var cookies []cookie.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	for _, c := range cookies {
		jar.Set(c)
	}
	return jar, nil
}

// saveJar writes the live cookies of jar. Deleted cookies are dropped.
func saveJar(path string, jar *cookie.Jar) error {
	names := make([]string, 0)
	for name := range jar.All() {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]cookie.Cookie, 0, len(names))
	for _, name := range names {
		c, ok := jar.Get(name)
		if !ok || c.MaxAge < 0 {
			continue
		}
		cookies = append(cookies, c)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
