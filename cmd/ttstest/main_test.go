package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveChunks(t *testing.T, chunks int) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < chunks; i++ {
			_ = conn.WriteMessage(websocket.BinaryMessage, make([]byte, 960))
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VIBEVOICE_URL", serveChunks(t, 3))
	t.Setenv("VIBEVOICE_OUTPUT_DIR", dir)
	t.Setenv("VIBEVOICE_LOG_LEVEL", "error")

	require.Equal(t, 0, run())

	info, err := os.Stat(filepath.Join(dir, outputName+".wav"))
	require.NoError(t, err)
	assert.Equal(t, int64(44+3*960), info.Size())
}

func TestRun_PushesMetricsOnFailure(t *testing.T) {
	pushed := make(chan string, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed <- r.URL.Path
	}))
	defer gateway.Close()

	t.Setenv("VIBEVOICE_URL", serveChunks(t, 0))
	t.Setenv("VIBEVOICE_OUTPUT_DIR", t.TempDir())
	t.Setenv("VIBEVOICE_LOG_LEVEL", "error")
	t.Setenv("VIBEVOICE_PUSHGATEWAY", gateway.URL)

	assert.Equal(t, 1, run())
	select {
	case path := <-pushed:
		assert.True(t, strings.HasPrefix(path, "/metrics/job/vibevoice_smoke"), path)
	default:
		t.Fatal("metrics were not pushed")
	}
}

func TestRun_NoAudio(t *testing.T) {
	t.Setenv("VIBEVOICE_URL", serveChunks(t, 0))
	t.Setenv("VIBEVOICE_OUTPUT_DIR", t.TempDir())
	t.Setenv("VIBEVOICE_LOG_LEVEL", "error")

	assert.Equal(t, 1, run())
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("VIBEVOICE_STEPS", "0")

	assert.Equal(t, 1, run())
}
