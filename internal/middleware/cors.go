package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access for the marketplace frontend.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*.host" subdomain patterns, or "*".
	// "*" is only honored in development.
	AllowedOrigins []string
	IsDevelopment  bool
	MaxAge         int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")

	// x-api-key carries rental tokens; Authorization carries rental tokens or session JWTs.
	corsHeaders = strings.Join([]string{
		"Content-Type", "Authorization", "X-API-Key", "X-Request-ID", "Accept", "Origin",
	}, ", ")

	corsExposed = strings.Join([]string{
		"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
	}, ", ")
)

type originPolicy struct {
	any      bool
	exact    map[string]bool
	suffixes []string
}

func newOriginPolicy(cfg CORSConfig) originPolicy {
	p := originPolicy{exact: make(map[string]bool, len(cfg.AllowedOrigins))}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		switch {
		case origin == "*":
			p.any = cfg.IsDevelopment
		case strings.HasPrefix(origin, "*."):
			p.suffixes = append(p.suffixes, origin[1:])
		case origin != "":
			p.exact[origin] = true
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if p.exact[origin] {
		return true
	}
	for _, suffix := range p.suffixes {
		// "*.example.com" matches "https://app.example.com" but not "https://notexample.com".
		host := origin
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflights and adds CORS headers for allowed origins.
// Requests from other origins pass through without headers, so browsers block them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !policy.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if preflight {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
