package launcher

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plataforma/vibevoice-launcher/internal/compat"
	"github.com/plataforma/vibevoice-launcher/internal/config"
	"github.com/plataforma/vibevoice-launcher/internal/gpu"
)

// AppModule is the ASGI application uvicorn serves.
const AppModule = "web.app:app"

// Options is everything needed to launch the server process.
type Options struct {
	AppDir    string
	Host      string
	Port      int
	Model     string
	Selection gpu.Selection
	// ShimDir, when set, is prepended to PYTHONPATH so the compatibility shim is imported at startup.
	ShimDir string
	// Env holds extra variables for the child. They override inherited ones.
	Env map[string]string
	// Threads sizes OMP_NUM_THREADS on the CPU. Zero means one thread per logical CPU.
	Threads     int
	StopTimeout time.Duration
}

// Args are the interpreter arguments that start uvicorn.
func (o Options) Args() []string {
	return []string{
		"-m", "uvicorn", AppModule,
		"--host", o.Host,
		"--port", strconv.Itoa(o.Port),
		"--log-level", "info",
	}
}

// Environ derives the child environment from base without touching the launcher's own environment.
func (o Options) Environ(base []string) []string {
	env := append([]string(nil), base...)
	for _, key := range sortedKeys(o.Env) {
		env = setEnv(env, key, o.Env[key])
	}
	serverEnv := config.ServerEnv(o.Model, o.Selection.Identifier())
	for _, key := range sortedKeys(serverEnv) {
		env = setEnv(env, key, serverEnv[key])
	}
	env = setEnv(env, "PYTHONIOENCODING", "utf-8")
	if o.ShimDir != "" {
		existing, _ := lookupEnv(env, "PYTHONPATH")
		env = setEnv(env, "PYTHONPATH", compat.PythonPath(o.ShimDir, existing))
	}
	if !o.Selection.IsAccelerated() {
		if _, ok := lookupEnv(env, "OMP_NUM_THREADS"); !ok {
			threads := o.Threads
			if threads <= 0 {
				threads = runtime.NumCPU()
			}
			env = setEnv(env, "OMP_NUM_THREADS", strconv.Itoa(threads))
		}
	}
	return env
}

// URLs returns the HTTP, WebSocket and health endpoints the server will expose.
func (o Options) URLs() (http, stream, health string) {
	base := fmt.Sprintf("%s:%d", o.Host, o.Port)
	return "http://" + base, "ws://" + base + "/stream", "http://" + base + "/config"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}
