package http

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration for browser clients of the API.
// Session cookies only travel cross-origin with credentials, so
// AllowCredentials is on by default.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. "*" allows any
	// origin; the request origin is echoed back rather than "*".
	AllowedOrigins   []string
	AllowCredentials bool
	AllowedMethods   []string
	AllowedHeaders   []string
	// MaxAge is how long (in seconds) a preflight result may be cached.
	MaxAge int
}

// DefaultCORSConfig returns a configuration that allows no origins.
func DefaultCORSConfig() *CORSConfig {
	return NewCORSConfig(nil)
}

// NewCORSConfig returns the API defaults for the given origins.
func NewCORSConfig(origins []string) *CORSConfig {
	return &CORSConfig{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		MaxAge:           86400,
	}
}

func (c *CORSConfig) allows(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// CORSMiddleware returns a middleware that handles CORS.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}

	allowMethods := strings.Join(config.AllowedMethods, ", ")
	allowHeaders := strings.Join(config.AllowedHeaders, ", ")
	maxAge := ""
	if config.MaxAge > 0 {
		maxAge = strconv.Itoa(config.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && config.allows(origin)

			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				if maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// SecurityHeadersConfig holds security headers configuration. Empty fields
// are not sent.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	// StrictTransportSecurity is only sent over TLS.
	StrictTransportSecurity string
	PermissionsPolicy       string
}

// DefaultSecurityHeadersConfig returns defaults for a JSON API.
func DefaultSecurityHeadersConfig() *SecurityHeadersConfig {
	return &SecurityHeadersConfig{
		ContentSecurityPolicy:   "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:           "DENY",
		XContentTypeOptions:     "nosniff",
		ReferrerPolicy:          "strict-origin-when-cross-origin",
		StrictTransportSecurity: "max-age=31536000; includeSubDomains",
		PermissionsPolicy:       "geolocation=(), microphone=(), camera=()",
	}
}

// SecurityHeadersMiddleware returns a middleware that sets security headers.
func SecurityHeadersMiddleware(config *SecurityHeadersConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultSecurityHeadersConfig()
	}

	headers := map[string]string{
		"Content-Security-Policy": config.ContentSecurityPolicy,
		"X-Frame-Options":         config.XFrameOptions,
		"X-Content-Type-Options":  config.XContentTypeOptions,
		"Referrer-Policy":         config.ReferrerPolicy,
		"Permissions-Policy":      config.PermissionsPolicy,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range headers {
				if value != "" {
					w.Header().Set(name, value)
				}
			}
			if config.StrictTransportSecurity != "" && r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", config.StrictTransportSecurity)
			}
			next.ServeHTTP(w, r)
		})
	}
}
