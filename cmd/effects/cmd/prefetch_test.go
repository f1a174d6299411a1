package cmd

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range sceneFixture(t) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestPrefetch_PackageIntoCache(t *testing.T) {
	archive := zipFixture(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	out, err := execute(t, "--cache-dir", root, "prefetch", srv.URL+"/fx.zip")
	require.NoError(t, err)
	assert.Contains(t, out, "images  1 (0 video)")
	assert.Contains(t, out, "fonts   0")
	assert.DirExists(t, filepath.Join(root, "files"))

	_, err = execute(t, "--cache-dir", root, "prefetch", srv.URL+"/fx.zip")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPrefetch_ChecksumMismatch(t *testing.T) {
	archive := zipFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	_, err := execute(t, "--cache-dir", root, "prefetch", "--md5", "00000000000000000000000000000000", srv.URL+"/fx.zip")
	require.Error(t, err)

	entries, _ := os.ReadDir(filepath.Join(root, "files"))
	for _, e := range entries {
		assert.NotEqual(t, ".zip", filepath.Ext(e.Name()))
	}
}
