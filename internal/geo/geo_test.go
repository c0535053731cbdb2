package geo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cookies(rec *httptest.ResponseRecorder) map[string]string {
	out := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func serve(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, r)
	return rec
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-IPCountry", "XX")
	r.Header.Set("X-Vercel-IP-Country", " au ")
	r.Header.Set("X-Vercel-IP-Country-Region", "qld")
	assert.Equal(t, Location{Country: "AU", Region: "QLD"}, FromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-IPCountry", "NZ")
	r.Header.Set("X-Vercel-IP-Country", "AU")
	assert.Equal(t, Location{Country: "NZ"}, FromRequest(r))
}

func TestMiddlewareSetsCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/products", nil)
	r.Header.Set("CF-IPCountry", "AU")
	r.Header.Set("X-Vercel-IP-Country-Region", "WA")
	assert.Equal(t, map[string]string{CountryCookie: "AU", RegionCookie: "WA"}, cookies(serve(r)))
}

func TestMiddlewareSkipsUnchanged(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-IPCountry", "AU")
	r.Header.Set("X-Vercel-IP-Country-Region", "NSW")
	r.AddCookie(&http.Cookie{Name: CountryCookie, Value: "AU"})
	r.AddCookie(&http.Cookie{Name: RegionCookie, Value: "VIC"})
	assert.Equal(t, map[string]string{RegionCookie: "NSW"}, cookies(serve(r)))
}

func TestMiddlewareNoHeaders(t *testing.T) {
	assert.Empty(t, cookies(serve(httptest.NewRequest(http.MethodGet, "/", nil))))
}
