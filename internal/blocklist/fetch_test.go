package blocklist

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winspan/blocksync/internal/domains"
	"github.com/winspan/blocksync/pkg/logger"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(5*time.Second, logger.Discard())
}

func TestFetchAllUnionsSources(t *testing.T) {
	hosts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# hosts list\n0.0.0.0 ads.example.com\n127.0.0.1 track.example.com\n")
	}))
	defer hosts.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "metrics.example.net\ntrack.example.com\n")
	}))
	defer plain.Close()

	f := newTestFetcher()
	got, err := f.FetchAll(context.Background(), []string{hosts.URL, plain.URL})
	require.NoError(t, err)
	assert.Equal(t, domains.NewSet("ads.example.com", "track.example.com", "metrics.example.net"), got)
}

func TestFetchAllFailFast(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ads.example.com\n")
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := newTestFetcher()
	_, err := f.FetchAll(context.Background(), []string{good.URL, bad.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad.URL)
}

func TestFetchAllUnreachableSource(t *testing.T) {
	f := newTestFetcher()
	_, err := f.FetchAll(context.Background(), []string{"http://127.0.0.1:1/list.txt"})
	require.Error(t, err)
}

func TestSourceStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ads.example.com\n")
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchAll(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	statuses := f.SourceStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, srv.URL, statuses[0].URL)
	assert.Equal(t, "success", statuses[0].Status)
	assert.Equal(t, 1, statuses[0].DomainCount)
	assert.Empty(t, statuses[0].LastError)
}

func TestSourceStatusesRecordError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchAll(context.Background(), []string{srv.URL})
	require.Error(t, err)

	statuses := f.SourceStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "error", statuses[0].Status)
	assert.NotEmpty(t, statuses[0].LastError)
}
