package bootstrap

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdsurfer/shaka-bootstrap/api"
	"github.com/crowdsurfer/shaka-bootstrap/config"
	"github.com/crowdsurfer/shaka-bootstrap/deployment"
	"github.com/crowdsurfer/shaka-bootstrap/identity"
	"github.com/crowdsurfer/shaka-bootstrap/registration"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBackend scripts the backend's heartbeat and deployment
// behavior for one bootstrap run.
type testBackend struct {
	mu              sync.Mutex
	heartbeats      int
	grantOnAttempt  int
	deploymentCode  int
	deploymentBody  []byte
	lastSerial      string
	deploymentCalls int
}

func (b *testBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.HeartbeatPath, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.heartbeats++

		var req api.HeartbeatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.lastSerial = req.SerialNumber

		if b.grantOnAttempt > 0 && b.heartbeats >= b.grantOnAttempt {
			json.NewEncoder(w).Encode(api.HeartbeatResponse{DeviceToken: "tok123"})
			return
		}
		json.NewEncoder(w).Encode(api.HeartbeatResponse{
			Status:  api.StatusUnauthorized,
			Message: "pending operator approval",
		})
	})
	mux.HandleFunc(api.DeploymentPath, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.deploymentCalls++

		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		if b.deploymentCode != http.StatusOK {
			w.WriteHeader(b.deploymentCode)
			return
		}
		w.Write(b.deploymentBody)
	})
	return mux
}

func (b *testBackend) heartbeatCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heartbeats
}

func makeBundle(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type testEnv struct {
	agent      *Agent
	backend    *testBackend
	recordPath string
	stagingDir string
	installDir string
}

func newTestEnv(t *testing.T, backend *testBackend, maxAttempts int) *testEnv {
	t.Helper()

	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cpuinfo := filepath.Join(dir, "cpuinfo")
	require.NoError(t, os.WriteFile(cpuinfo, []byte("Serial\t\t: 10000000f62aa1b2\n"), 0644))

	cfg := &config.Agent{
		BackendURL:          srv.URL,
		CPUInfoPath:         cpuinfo,
		DeviceRecordPath:    filepath.Join(dir, "device.conf"),
		FirmwareVersionPath: filepath.Join(dir, "firmware-version"),
		StagingDir:          filepath.Join(dir, "staging"),
		InstallRoot:         filepath.Join(dir, "install"),
		EntryPoint:          "install.sh",
		PollInterval:        10 * time.Millisecond,
		MaxPollAttempts:     maxAttempts,
		HeartbeatTimeout:    5 * time.Second,
		FetchTimeout:        5 * time.Second,
	}

	log := testLogger()
	store := &config.Store{Path: cfg.DeviceRecordPath, Log: log}
	poller := registration.NewPoller(cfg, registration.NewClient(cfg, log), store, log)
	poller.Clock = clock.New()

	return &testEnv{
		agent: &Agent{
			Identity: &identity.Resolver{CPUInfoPath: cfg.CPUInfoPath},
			Poller:   poller,
			Fetcher:  deployment.NewFetcher(cfg, log),
			Installer: &deployment.Installer{
				InstallRoot: cfg.InstallRoot,
				EntryPoint:  cfg.EntryPoint,
				Log:         log,
			},
			Status: NewStatus(),
			Log:    log,
		},
		backend:    backend,
		recordPath: cfg.DeviceRecordPath,
		stagingDir: cfg.StagingDir,
		installDir: cfg.InstallRoot,
	}
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("entry point execution requires a unix shell")
	}
}

func TestRunEndToEnd(t *testing.T) {
	requireUnix(t)

	backend := &testBackend{
		grantOnAttempt: 2,
		deploymentCode: http.StatusOK,
	}
	env := newTestEnv(t, backend, 360)
	backend.deploymentBody = makeBundle(t, map[string]string{
		"install.sh": "#!/bin/sh\necho installing edge software\ntouch provisioned.marker\nexit 0\n",
	})

	outcome := env.agent.Run(context.Background())
	assert.Equal(t, Success, outcome)
	assert.Equal(t, 0, outcome.ExitCode())

	// The grant arrived on attempt 2 and polling stopped there.
	assert.Equal(t, 2, backend.heartbeatCount())
	assert.Equal(t, "CS-SHAKA-V1-A1B2", backend.lastSerial)

	// The device record reflects the granted token.
	store := &config.Store{Path: env.recordPath, Log: testLogger()}
	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "CS-SHAKA-V1-A1B2", rec.DeviceSerial)
	assert.Equal(t, "tok123", rec.DeviceToken)

	// The installer actually ran in the install root.
	_, err = os.Stat(filepath.Join(env.installDir, "provisioned.marker"))
	assert.NoError(t, err)

	assert.Equal(t, StageDone, env.agent.Status.Stage())
	assert.True(t, env.agent.Status.Registered())
}

func TestRunDownloadFailed(t *testing.T) {
	backend := &testBackend{
		grantOnAttempt: 1,
		deploymentCode: http.StatusServiceUnavailable,
	}
	env := newTestEnv(t, backend, 360)

	outcome := env.agent.Run(context.Background())
	assert.Equal(t, DownloadFailed, outcome)
	assert.Equal(t, 1, outcome.ExitCode())

	// No staged bundle may be left behind claiming completeness.
	_, err := os.Stat(filepath.Join(env.stagingDir, deployment.BundleName))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, StageFailed, env.agent.Status.Stage())
}

func TestRunInstallFailedMissingEntryPoint(t *testing.T) {
	backend := &testBackend{
		grantOnAttempt: 1,
		deploymentCode: http.StatusOK,
	}
	env := newTestEnv(t, backend, 360)
	backend.deploymentBody = makeBundle(t, map[string]string{
		"payload/app.bin": "no installer here",
	})

	outcome := env.agent.Run(context.Background())
	assert.Equal(t, InstallFailed, outcome)
	assert.Equal(t, 1, outcome.ExitCode())
}

func TestRunInstallFailedNonZeroExit(t *testing.T) {
	requireUnix(t)

	backend := &testBackend{
		grantOnAttempt: 1,
		deploymentCode: http.StatusOK,
	}
	env := newTestEnv(t, backend, 360)
	backend.deploymentBody = makeBundle(t, map[string]string{
		"install.sh": "#!/bin/sh\nexit 3\n",
	})

	outcome := env.agent.Run(context.Background())
	assert.Equal(t, InstallFailed, outcome)
	assert.Equal(t, 1, outcome.ExitCode())
}

func TestRunNotAuthorized(t *testing.T) {
	backend := &testBackend{deploymentCode: http.StatusOK}
	env := newTestEnv(t, backend, 3)

	outcome := env.agent.Run(context.Background())
	assert.Equal(t, NotAuthorized, outcome)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Equal(t, 3, backend.heartbeatCount())

	// Never authorized: no record, no deployment call.
	_, err := os.Stat(env.recordPath)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, backend.deploymentCalls)
}
