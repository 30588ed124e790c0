// Package cookie holds the per-request cookie jar shared by every call in an
// API batch.
package cookie

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// DeletedValue replaces the value of a cookie removed with Jar.Delete.
const DeletedValue = "deleted"

// Cookie is a single name/value pair plus the attributes wirekit cares about.
//
// MaxAge follows net/http: a positive value is sent as Max-Age, a negative
// value asks the client to drop the cookie now, zero sends no Max-Age.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	MaxAge   int    `json:"maxAge,omitempty"`
}

// HTTP converts the cookie for use with http.SetCookie.
func (c Cookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
		MaxAge:   c.MaxAge,
	}
}

// FromHTTP converts a parsed Set-Cookie entry.
func FromHTTP(hc *http.Cookie) Cookie {
	return Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		HTTPOnly: hc.HttpOnly,
		Secure:   hc.Secure,
		MaxAge:   hc.MaxAge,
	}
}

// Jar holds the cookies of one request and remembers which of them were
// changed so only those are sent back.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]Cookie
	dirty   []string
}

// NewJar parses a raw Cookie header. Malformed segments are skipped.
func NewJar(header string) *Jar {
	j := &Jar{cookies: make(map[string]Cookie)}
	for _, part := range strings.Split(header, ";") {
		name, value, _ := strings.Cut(part, "=")
		name = decode(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		j.cookies[name] = Cookie{Name: name, Value: decode(strings.TrimSpace(value))}
	}
	return j
}

func decode(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// Get returns a copy of the named cookie.
func (j *Jar) Get(name string) (Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	return c, ok
}

// Set upserts a cookie and marks it to be sent to the client.
func (j *Jar) Set(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[c.Name] = c
	j.markDirty(c.Name)
}

// Delete expires a cookie the client currently holds. Unknown names are ignored.
func (j *Jar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	if !ok {
		return
	}
	c.Value = DeletedValue
	c.MaxAge = -1
	j.cookies[name] = c
	j.markDirty(name)
}

func (j *Jar) markDirty(name string) {
	for _, n := range j.dirty {
		if n == name {
			return
		}
	}
	j.dirty = append(j.dirty, name)
}

// All returns a name to value snapshot of every cookie.
func (j *Jar) All() map[string]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	all := make(map[string]string, len(j.cookies))
	for name, c := range j.cookies {
		all[name] = c.Value
	}
	return all
}

// SetCookies returns copies of the cookies changed through Set or Delete.
func (j *Jar) SetCookies() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Cookie, 0, len(j.dirty))
	for _, name := range j.dirty {
		out = append(out, j.cookies[name])
	}
	return out
}

// Header renders the jar as a Cookie request header, names sorted.
// Cookies that were deleted are left out.
func (j *Jar) Header() string {
	all := j.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		c, _ := j.Get(name)
		if c.MaxAge < 0 {
			continue
		}
		parts = append(parts, url.PathEscape(name)+"="+url.PathEscape(c.Value))
	}
	return strings.Join(parts, "; ")
}
