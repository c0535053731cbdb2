package redirects

import (
	"net/http"
	"strings"
)

// Middleware answers GET and HEAD requests for a redirected path with the
// stored status code. The query string is carried over to local targets.
func Middleware(s *Store, skipPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range skipPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			t, ok := s.Lookup(r.Context(), r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			loc := t.ToPath
			if r.URL.RawQuery != "" && !isAbsolute(loc) && !strings.Contains(loc, "?") {
				loc += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, loc, t.StatusCode)
		})
	}
}
