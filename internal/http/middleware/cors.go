package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
	corsMethods = "GET, POST, DELETE, OPTIONS"
)

// CORS lets the browser portals call the API. Entries are exact origins,
// "*" for any origin, or "*.example.com" for any subdomain over https.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := newOriginSet(origins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !allowed.match(origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type originSet struct {
	any      bool
	exact    map[string]bool
	suffixes []string
}

func newOriginSet(origins []string) originSet {
	s := originSet{exact: make(map[string]bool)}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			s.any = true
		case strings.HasPrefix(o, "*."):
			s.suffixes = append(s.suffixes, o[1:])
		default:
			s.exact[o] = true
		}
	}
	return s
}

func (s originSet) match(origin string) bool {
	if s.any || s.exact[origin] {
		return true
	}
	if len(s.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" {
		return false
	}
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(u.Hostname(), suffix) {
			return true
		}
	}
	return false
}
