package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ResolveCache, string) {
	t.Helper()
	root := t.TempDir()
	c, err := NewResolveCache(root, 16, time.Minute)
	require.NoError(t, err)
	return c, root
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestStripVersion(t *testing.T) {
	assert.Equal(t, "/main.css", StripVersion("/main.v1712345678.css"))
	assert.Equal(t, "/res/logo", StripVersion("/res/logo.v42"))
	assert.Equal(t, "/vendor.video.js", StripVersion("/vendor.video.js"))
	assert.Equal(t, "/res/board.10_u.png", StripVersion("/res/board.10_u.v1600000000.png"))

	// 只处理最后一段，且后面只能是最终扩展名
	assert.Equal(t, "/lib.v2.min.js", StripVersion("/lib.v2.min.js"))
	assert.Equal(t, "/docs.v3/guide.html", StripVersion("/docs.v3/guide.html"))

	assert.True(t, IsVersioned("/main.v1.css"))
	assert.False(t, IsVersioned("/main.css"))
}

func TestResolveVersionedAndIncomplete(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(root, "main.css"))
	writeFile(t, filepath.Join(root, "res", "logo.png"))

	got, err := c.Resolve(context.Background(), "/main.v1712345678.css")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "main.css"), got)

	got, err = c.Resolve(context.Background(), "/res/logo.v99")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "res", "logo.png"), got)
}

func TestResolvePrefersExistingVersionLikeNames(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(root, "vendor", "lib.v2.js"))
	writeFile(t, filepath.Join(root, "vendor", "lib.js"))
	writeFile(t, filepath.Join(root, "vendor", "chart.v4.min.js"))
	writeFile(t, filepath.Join(root, "docs.v3", "guide.html"))

	got, err := c.Resolve(context.Background(), "/vendor/lib.v2.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "vendor", "lib.v2.js"), got)

	// 文件不存在时仍按版本号处理
	got, err = c.Resolve(context.Background(), "/vendor/lib.v1712345678.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "vendor", "lib.js"), got)

	got, err = c.Resolve(context.Background(), "/vendor/chart.v4.min.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "vendor", "chart.v4.min.js"), got)

	got, err = c.Resolve(context.Background(), "/docs.v3/guide.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs.v3", "guide.html"), got)
}

func TestResolveStaysInsideRoot(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(filepath.Dir(root), "secret.txt"))

	_, err := c.Resolve(context.Background(), "/../secret.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Resolve(context.Background(), "/a\x00b")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestResolveCachesMissesUntilInvalidated(t *testing.T) {
	c, root := newTestCache(t)

	_, err := c.Resolve(context.Background(), "/late.js")
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, filepath.Join(root, "late.js"))
	_, err = c.Resolve(context.Background(), "/late.js")
	assert.ErrorIs(t, err, ErrNotFound, "negative result is served from cache")

	c.InvalidateAll()
	got, err := c.Resolve(context.Background(), "/late.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "late.js"), got)
}

func TestResolveExpiresAfterTTL(t *testing.T) {
	root := t.TempDir()
	c, err := NewResolveCache(root, 4, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "/page.html")
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, filepath.Join(root, "page.html"))
	time.Sleep(20 * time.Millisecond)

	_, err = c.Resolve(context.Background(), "/page.html")
	assert.NoError(t, err)
}

func TestResolveStats(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(root, "index.html"))

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(context.Background(), "/index.html")
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 16, stats.MaxSize)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Greater(t, stats.HitRatio, 0.0)
}

func TestResolveConcurrent(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(root, "app.js"))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background(), "/app.v7.js")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, c.Stats().Size)
}

func TestNewResolveCacheRejectsInvalidArgs(t *testing.T) {
	_, err := NewResolveCache("", 1, time.Second)
	assert.ErrorIs(t, err, ErrCacheInitFailed)
	_, err = NewResolveCache("x", 0, time.Second)
	assert.ErrorIs(t, err, ErrCacheInitFailed)
	_, err = NewResolveCache("x", 1, 0)
	assert.ErrorIs(t, err, ErrCacheInitFailed)
}

func TestResolveDirectoryIndex(t *testing.T) {
	c, root := newTestCache(t)
	writeFile(t, filepath.Join(root, "index.html"))
	writeFile(t, filepath.Join(root, "docs", "index.html"))

	got, err := c.Resolve(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "index.html"), got)

	got, err = c.Resolve(context.Background(), "/docs/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "index.html"), got)

	_, err = c.Resolve(context.Background(), "/docs")
	assert.ErrorIs(t, err, ErrNotFound)
}
