package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitebuild/internal/cache"
	"sitebuild/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterServesPrecompressedRelease(t *testing.T) {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>hi</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html.br"), []byte("BR"), 0644))

	resolver, err := cache.NewResolveCache(root, 8, time.Minute)
	require.NoError(t, err)
	static, err := handlers.NewStaticHandler(root, resolver, nil)
	require.NoError(t, err)
	r := setupRouter(static, resolver, handlers.NewLiveReload())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "frame-ancestors 'self'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "BR", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "<p>hi</p>", w.Body.String())
}

func TestRouterLiveReloadEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	resolver, err := cache.NewResolveCache(root, 8, time.Minute)
	require.NoError(t, err)
	static, err := handlers.NewStaticHandler(root, resolver, nil)
	require.NoError(t, err)

	live := handlers.NewLiveReload()
	srv := httptest.NewServer(setupRouter(static, resolver, live))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/__preview/ws", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return live.Count() == 1 }, time.Second, 10*time.Millisecond)

	live.Broadcast(handlers.ReloadEvent{Type: handlers.EventReload, Builds: 1})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev handlers.ReloadEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, handlers.EventReload, ev.Type)
}

func TestShouldSkipLog(t *testing.T) {
	assert.True(t, shouldSkipLog("/main.v1.css"))
	assert.True(t, shouldSkipLog("/__preview/status"))
	assert.False(t, shouldSkipLog("/about.html"))
}
