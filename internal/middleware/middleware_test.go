package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mapResolver 固定映射的解析器
type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, urlPath string) (string, error) {
	if p, ok := m[urlPath]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

func newCompressRouter(resolver Resolver) *gin.Engine {
	r := gin.New()
	r.NoRoute(PreCompressedStatic(resolver), func(c *gin.Context) {
		c.String(http.StatusOK, "plain")
	})
	return r
}

func TestPreCompressedStaticServesBrotli(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.css")
	require.NoError(t, os.WriteFile(file, []byte("a{}"), 0644))
	require.NoError(t, os.WriteFile(file+".br", []byte("compressed"), 0644))

	r := newCompressRouter(mapResolver{"/main.v5.css": file})

	req := httptest.NewRequest(http.MethodGet, "/main.v5.css", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))
	assert.Equal(t, "compressed", w.Body.String())
}

func TestPreCompressedStaticFallsThrough(t *testing.T) {
	dir := t.TempDir()
	withBr := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(withBr, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(withBr+".br", []byte("2"), 0644))
	noBr := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(noBr, []byte("3"), 0644))

	r := newCompressRouter(mapResolver{"/app.js": withBr, "/logo.png": noBr})

	cases := []struct {
		name, path, encoding string
	}{
		{"client without brotli", "/app.js", "gzip"},
		{"brotli refused", "/app.js", "br;q=0, gzip"},
		{"no precompressed file", "/logo.png", "br"},
		{"unresolved path", "/missing.js", "br"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("Accept-Encoding", tc.encoding)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Equal(t, "plain", w.Body.String())
		})
	}
}

func TestAcceptsBrotli(t *testing.T) {
	assert.True(t, AcceptsBrotli("br"))
	assert.True(t, AcceptsBrotli("gzip, br;q=0.8"))
	assert.False(t, AcceptsBrotli(""))
	assert.False(t, AcceptsBrotli("gzip, deflate"))
	assert.False(t, AcceptsBrotli("br; q=0.0"))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about.html", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "frame-ancestors 'self'", w.Header().Get("Content-Security-Policy"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/main.css", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.Use(CacheHeaders())
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/main.v1712345678.css", nil))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}
