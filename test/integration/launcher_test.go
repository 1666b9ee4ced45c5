//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/plataforma/vibevoice-launcher/internal/client"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/launcher"
	"github.com/plataforma/vibevoice-launcher/internal/pyenv"
	"github.com/plataforma/vibevoice-launcher/internal/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// stubApp streams a fixed amount of silence, standing in for the real speech server.
const stubApp = `from fastapi import FastAPI, WebSocket

app = FastAPI()


@app.get("/config")
def config():
    return {"voices": ["Carter", "Emma"]}


@app.websocket("/stream")
async def stream(ws: WebSocket):
    await ws.accept()
    await ws.send_text('{"event": "generation_started", "data": {}}')
    for _ in range(3):
        await ws.send_bytes(b"\x00" * 4800)
    await ws.close()
`

func requirePython(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"python3", "python"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		missing, err := pyenv.New(path, zap.NewNop()).MissingModules(context.Background(), launcher.RequiredModules...)
		if err == nil && len(missing) == 0 {
			return path
		}
	}
	t.Skip("no python interpreter with torch, fastapi, uvicorn and websockets")
	return ""
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServeAndSmoke_EndToEnd(t *testing.T) {
	python := requirePython(t)

	appDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(appDir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, launcher.AppFile), []byte(stubApp), 0o644))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.AppDir = appDir
	cfg.Server.Python = python
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Device.Preference = "cpu"

	log := zaptest.NewLogger(t)
	var server *launcher.Server
	app := fxtest.New(t,
		fx.Supply(cfg, log),
		launcher.Module,
		fx.Populate(&server),
	)
	app.RequireStart()
	defer app.RequireStop()

	c := client.New(fmt.Sprintf("ws://127.0.0.1:%d", cfg.Server.Port), 10*time.Second, log)
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return c.Healthy(ctx) == nil
	}, 60*time.Second, 250*time.Millisecond, "server never became healthy")

	sc, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Carter", "Emma"}, sc.Voices)

	outDir := t.TempDir()
	report, err := client.Smoke(context.Background(), c, client.Request{Text: "hello", Voice: "Carter", CFGScale: 1.5, Steps: 5}, outDir, "e2e", wav.Default, log)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, int64(3*4800), report.Bytes)
	assert.Equal(t, 300*time.Millisecond, report.AudioDuration)
}

func TestServe_PortInUse(t *testing.T) {
	python := requirePython(t)

	appDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(appDir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, launcher.AppFile), []byte(stubApp), 0o644))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.AppDir = appDir
	cfg.Server.Python = python
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Device.Preference = "cpu"

	var server *launcher.Server
	app := fxtest.New(t,
		fx.Supply(cfg, zaptest.NewLogger(t)),
		launcher.Module,
		fx.Populate(&server),
	)
	err = app.Start(context.Background())
	require.Error(t, err)

	var startup *launcher.StartupError
	require.ErrorAs(t, server.Err(), &startup)
	assert.Equal(t, launcher.FailurePortInUse, startup.Kind)
	assert.Equal(t, 1, startup.ExitCode())
}
