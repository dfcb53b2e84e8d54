package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mocify/mocify/pkg/cli/internal/ports"
	"github.com/mocify/mocify/pkg/cliconfig"
	"github.com/mocify/mocify/pkg/engine"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeSeed(t *testing.T, dir, name string, port int) string {
	t.Helper()
	content := fmt.Sprintf(`collections:
  - id: users
    name: Users API
    port: %d
    routes:
      - path: /users
        body: '[{"id":1}]'
      - method: POST
        path: /users
        status: 201
`, port)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mocify ")

	out, err = executeCommand(t, "version", "--json")
	require.NoError(t, err)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.NotEmpty(t, v.Version)
	assert.NotEmpty(t, v.Go)
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeSeed(t, dir, "users.yaml", 18080)

	out, err := executeCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "1 files OK: 1 collections, 2 routes")

	out, err = executeCommand(t, "validate", "--json", filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)
	var res ValidateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	require.Len(t, res.Collections, 1)
	assert.Equal(t, 18080, res.Collections[0].Port)
	assert.Equal(t, 2, res.Collections[0].Routes)
}

func TestValidateCommand_Invalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collections:\n  - id: x\n    port: 70000\n"), 0o644))

	_, err := executeCommand(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")

	out, err := executeCommand(t, "validate", "--json", path)
	require.Error(t, err)
	var res ValidateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)

	_, err = executeCommand(t, "validate")
	assert.Error(t, err)
}

func TestServersCommands(t *testing.T) {
	t.Parallel()
	ts, port := newAdminServer(t)
	portStr := strconv.Itoa(port)

	out, err := executeCommand(t, "--admin-url", ts.URL, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "stopped")

	out, err = executeCommand(t, "--admin-url", ts.URL, "servers", "start", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "Started users on http://localhost:"+portStr)

	out, err = executeCommand(t, "--admin-url", ts.URL, "--json", "servers", "list")
	require.NoError(t, err)
	var servers []engine.ServerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &servers))
	require.Len(t, servers, 1)
	assert.True(t, servers[0].IsRunning)

	resp, err := http.Get("http://127.0.0.1:" + portStr + "/nope")
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Eventually(t, func() bool {
		out, err := executeCommand(t, "--admin-url", ts.URL, "servers", "requests", portStr, "--unmatched")
		return err == nil && bytes.Contains([]byte(out), []byte("/nope"))
	}, 2*time.Second, 20*time.Millisecond)

	out, err = executeCommand(t, "--admin-url", ts.URL, "servers", "stop", portStr)
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped server on port "+portStr)

	_, err = executeCommand(t, "--admin-url", ts.URL, "servers", "stop", portStr)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_running", apiErr.ErrorCode)
}

func TestRun_ExitCode(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer

	code := run(NewRootCommand(), []string{"servers", "stop", "http"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `invalid port "http"`)

	stderr.Reset()
	code = run(NewRootCommand(), []string{"version"}, &stderr)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr.String())
}

func TestServeFlags_OnlyChangedFlagsOverride(t *testing.T) {
	t.Parallel()
	cfg := cliconfig.NewDefault()
	cfg.BindHost = "0.0.0.0"
	cfg.GracePeriod = 2 * time.Second

	f := &serveFlags{}
	cmd := f.command()
	require.NoError(t, cmd.ParseFlags([]string{
		"--admin-port", "5000",
		"--seed", "a.yaml", "--seed", "b/*.yaml",
		"--storage", "memory",
		"--watch",
	}))
	f.apply(cmd, cfg)

	assert.Equal(t, 5000, cfg.AdminPort)
	assert.Equal(t, []string{"a.yaml", "b/*.yaml"}, cfg.Seed.Files)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Seed.Watch)
	assert.Equal(t, "0.0.0.0", cfg.BindHost, "unset flag must not reset the config value")
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
}

func TestRunServe(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	mockPort := freePort(t)
	seedPath := writeSeed(t, dir, "users.yaml", mockPort)

	cfg := cliconfig.NewDefault()
	cfg.AdminPort = freePort(t)
	cfg.Storage.Driver = "memory"
	cfg.Seed.Files = []string{seedPath}
	cfg.StartAll = true
	cfg.GracePeriod = time.Second
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, cfg, io.Discard) }()

	client := NewAdminClient(cfg.ResolvedAdminURL(), WithTimeout(time.Second))
	require.Eventually(t, func() bool {
		_, err := client.Health(context.Background())
		return err == nil
	}, 5*time.Second, 25*time.Millisecond)

	servers, err := client.ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.True(t, servers[0].IsRunning)
	assert.Equal(t, mockPort, servers[0].Port)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(mockPort) + "/users")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id":1}]`, string(body))

	res, err := client.ReloadSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Collections)
	assert.Equal(t, 2, res.Routes)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
	assert.True(t, ports.IsAvailable("127.0.0.1", mockPort))
	assert.True(t, ports.IsAvailable("127.0.0.1", cfg.AdminPort))
}

func TestRunServe_AdminPortInUse(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := cliconfig.NewDefault()
	cfg.AdminPort = ln.Addr().(*net.TCPAddr).Port
	cfg.Storage.Driver = "memory"

	err = runServe(context.Background(), cfg, io.Discard)
	assert.ErrorIs(t, err, engine.ErrBind)
}

func TestRunServe_BadSeedFails(t *testing.T) {
	t.Parallel()
	cfg := cliconfig.NewDefault()
	cfg.AdminPort = freePort(t)
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "mocify.db")
	cfg.Seed.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	err := runServe(context.Background(), cfg, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
	assert.FileExists(t, cfg.Storage.Path)
}
