package blocklist

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/logger"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestCache(t *testing.T, maxAgeHours float64, listBody string) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if listBody == "" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, listBody)
	}))
	t.Cleanup(srv.Close)

	sourcesPath := filepath.Join(dir, "sources.txt")
	writeFile(t, sourcesPath, "# sources\n"+srv.URL+"\n")

	cachePath := filepath.Join(dir, "denied.txt")
	c := NewCache(cachePath, sourcesPath, maxAgeHours, newTestFetcher(), logger.Discard())
	return c, cachePath
}

func TestMissingCacheFileForcesRefresh(t *testing.T) {
	c, cachePath := newTestCache(t, 2.0, "0.0.0.0 ads.example.com\n")

	got, err := c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("ads.example.com"), got)

	// refreshed set was persisted
	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, "ads.example.com", string(data))
}

func TestFreshnessBoundary(t *testing.T) {
	c, cachePath := newTestCache(t, 2.0, "new.example.com\n")
	writeFile(t, cachePath, "old.example.com\n")

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(cachePath, mtime, mtime))

	// age exactly at the threshold: still fresh, no refresh
	c.now = func() time.Time { return mtime.Add(2 * time.Hour) }
	got, err := c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("old.example.com"), got)

	// a hair past the threshold: refresh
	c.now = func() time.Time { return mtime.Add(2*time.Hour + 360*time.Millisecond) }
	got, err = c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("new.example.com"), got)
}

func TestFreshCacheSkipsSources(t *testing.T) {
	c, cachePath := newTestCache(t, 2.0, "")
	writeFile(t, cachePath, "cached.example.com\n")

	// sources are unreachable, but the cache is fresh so they are never hit
	got, err := c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("cached.example.com"), got)
}

func TestRefreshFailureKeepsLastGoodSet(t *testing.T) {
	c, cachePath := newTestCache(t, 2.0, "")
	writeFile(t, cachePath, "cached.example.com\n")

	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(cachePath, old, old))

	got, err := c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("cached.example.com"), got)

	// file untouched by the failed refresh
	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Equal(t, "cached.example.com\n", string(data))
}

func TestRefreshFailureWithoutPriorCacheIsFatal(t *testing.T) {
	c, _ := newTestCache(t, 2.0, "")

	_, err := c.DeniedDomains(context.Background())
	require.Error(t, err)
}

func TestMissingSourcesFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(filepath.Join(dir, "denied.txt"), filepath.Join(dir, "absent.txt"), 2.0,
		newTestFetcher(), logger.Discard())

	_, err := c.DeniedDomains(context.Background())
	require.Error(t, err)
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 2.0, "b.example.com\na.example.com\nc.example.com\n")

	want := domains.NewSet("a.example.com", "b.example.com", "c.example.com")
	got, err := c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// second read comes straight from the file
	got, err = c.DeniedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadAllowList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allow.txt")
	writeFile(t, path, "# never block\nGood.Example.COM\n")

	got, err := LoadAllowList(path)
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("good.example.com"), got)

	got, err = LoadAllowList("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = LoadAllowList(filepath.Join(dir, "absent.txt"))
	require.Error(t, err)
}
