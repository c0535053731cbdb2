// Package geo mirrors CDN geolocation headers into cookies the storefront
// can read client-side.
package geo

import (
	"net/http"
	"strings"
	"time"
)

const (
	CountryCookie = "geo-country"
	RegionCookie  = "geo-region"

	cookieMaxAge = 24 * time.Hour
)

// Location is the country and region reported by the edge.
type Location struct {
	Country string
	Region  string
}

// FromRequest reads Cloudflare then Vercel headers. Values are upper-cased;
// Cloudflare's "XX" and "T1" placeholders are ignored.
func FromRequest(r *http.Request) Location {
	var loc Location
	for _, h := range []string{"CF-IPCountry", "X-Vercel-IP-Country"} {
		if v := clean(r.Header.Get(h)); v != "" && v != "XX" && v != "T1" {
			loc.Country = v
			break
		}
	}
	loc.Region = clean(r.Header.Get("X-Vercel-IP-Country-Region"))
	return loc
}

func clean(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// Middleware sets geo-country and geo-region when the headers are present
// and differ from the cookies the client already holds.
func Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := FromRequest(r)
			setIfChanged(w, r, CountryCookie, loc.Country, secure)
			setIfChanged(w, r, RegionCookie, loc.Region, secure)
			next.ServeHTTP(w, r)
		})
	}
}

func setIfChanged(w http.ResponseWriter, r *http.Request, name, value string, secure bool) {
	if value == "" {
		return
	}
	if c, err := r.Cookie(name); err == nil && c.Value == value {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
