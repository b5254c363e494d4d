package oraclecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sha1Range("password1") = "E38AD2...", the real HIBP range for "password1",
// used here only to exercise the prefix/suffix split; the fake server below
// ignores the actual prefix and always serves the same range body.
func newTestOracle(t *testing.T, handler http.HandlerFunc) (*Oracle, *Cache) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache, err := Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	o, err := New(Config{BaseURL: server.URL}, cache)
	require.NoError(t, err)
	return o, cache
}

func TestCountMatchesSuffix(t *testing.T) {
	o, _ := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		require.Regexp(t, `^/range/[0-9A-F]{5}$`, r.URL.Path)
		w.Write([]byte("0000000000000000000000000000000000:1\n214943DAAD1D64C102FAEC29DE4AFE9DA3D:9999\n"))
	})

	count := o.Count(context.Background(), "password1")
	require.Equal(t, int64(9999), count)
}

func TestCountCachesResult(t *testing.T) {
	calls := 0
	o, cache := newTestOracle(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(""))
	})

	require.NoError(t, cache.Put("knownroot", 42))

	count := o.Count(context.Background(), "knownroot")
	require.Equal(t, int64(42), count)
	require.Equal(t, 0, calls, "cached root must not hit the network")
}

func TestCountOnNetworkFailureReturnsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close()

	cache, err := Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	defer cache.Close()

	o, err := New(Config{BaseURL: server.URL}, cache)
	require.NoError(t, err)

	count := o.Count(context.Background(), "whatever")
	require.Equal(t, int64(0), count)
}

func TestNewRequiresBaseURL(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	defer cache.Close()

	_, err = New(Config{}, cache)
	require.Error(t, err)
}
