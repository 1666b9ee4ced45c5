package compat

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/plataforma/vibevoice-launcher/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	output string
	err    error
}

func (s stubRunner) RunScript(_ context.Context, _ []byte, out any, _ ...string) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.output), out)
}

func TestCheck(t *testing.T) {
	t.Run("cpu only torch without xpu", func(t *testing.T) {
		caps, err := Check(context.Background(), stubRunner{output: `{"torch": true, "version": "2.4.1+cpu", "xpu": false, "threads": 8}`})
		require.NoError(t, err)
		assert.Equal(t, Capabilities{TorchInstalled: true, TorchVersion: "2.4.1+cpu", Threads: 8}, caps)
		assert.True(t, caps.NeedsXPUShim())
	})

	t.Run("torch with xpu", func(t *testing.T) {
		caps, err := Check(context.Background(), stubRunner{output: `{"torch": true, "version": "2.5.0", "xpu": true, "threads": 4}`})
		require.NoError(t, err)
		assert.False(t, caps.NeedsXPUShim())
	})

	t.Run("torch missing", func(t *testing.T) {
		caps, err := Check(context.Background(), stubRunner{output: `{"torch": false, "version": "", "xpu": false, "threads": 0}`})
		require.NoError(t, err)
		assert.False(t, caps.TorchInstalled)
		assert.False(t, caps.NeedsXPUShim())
	})

	t.Run("interpreter failure", func(t *testing.T) {
		_, err := Check(context.Background(), stubRunner{err: errors.New("exit status 1")})
		assert.ErrorContains(t, err, "failed to inspect torch")
	})
}

func TestInstallShim(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pyshim")

	got, err := InstallShim(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	content, err := os.ReadFile(filepath.Join(dir, ShimFile))
	require.NoError(t, err)
	assert.Equal(t, fixtures.SiteCustomize, content)
	assert.Contains(t, string(content), "xpu")

	// installing twice overwrites in place
	_, err = InstallShim(dir)
	assert.NoError(t, err)
}

func TestPythonPath(t *testing.T) {
	sep := string(os.PathListSeparator)

	assert.Equal(t, "/tmp/shim", PythonPath("/tmp/shim", ""))
	assert.Equal(t, "/tmp/shim"+sep+"/opt/lib", PythonPath("/tmp/shim", "/opt/lib"))
	assert.Equal(t, "/opt/lib"+sep+"/tmp/shim", PythonPath("/tmp/shim", "/opt/lib"+sep+"/tmp/shim"))
}
