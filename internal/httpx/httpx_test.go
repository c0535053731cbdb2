package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"valve"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "valve", v.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("   "))
	assert.ErrorIs(t, DecodeJSON(r, &v), ErrEmptyBody)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope"))
	assert.ErrorIs(t, DecodeJSON(r, &v), ErrInvalidJSON)
}

func TestIntParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500&bad=x&low=-3", nil)
	assert.Equal(t, 200, IntParam(r, "limit", 50, 1, 200))
	assert.Equal(t, 50, IntParam(r, "bad", 50, 1, 200))
	assert.Equal(t, 1, IntParam(r, "low", 50, 1, 200))
	assert.Equal(t, 50, IntParam(r, "missing", 50, 1, 200))
}

func TestBoolParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?a=true&b=0&c=YES", nil)
	assert.True(t, BoolParam(r, "a"))
	assert.False(t, BoolParam(r, "b"))
	assert.True(t, BoolParam(r, "c"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:4431"
	assert.Equal(t, "10.0.0.9", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.8")
	assert.Equal(t, "10.0.0.8", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
	assert.Equal(t, "203.0.113.4", ClientIP(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(r))
}

func TestWithServerDefaults(t *testing.T) {
	h := WithServerDefaults(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusTeapot, "short and stout")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"short and stout"}`, rec.Body.String())
}
