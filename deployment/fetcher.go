// Package deployment downloads and installs the proprietary edge
// software released to an authorized Shaka device: a gzip-compressed
// tar bundle fetched with the device's bearer token, unpacked into the
// install root, and driven by the installation entry point embedded in
// the bundle.
package deployment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/crowdsurfer/shaka-bootstrap/api"
	"github.com/crowdsurfer/shaka-bootstrap/config"
	"github.com/crowdsurfer/shaka-bootstrap/metrics"
)

// BundleName is the staged bundle's file name inside the staging
// directory. The ".partial" suffix marks an in-progress download; a
// file under BundleName is always a completely written stream.
const BundleName = "bundle.tar.gz"

const downloadChunkSize = 32 * 1024

// StatusError reports a non-200 response from the deployment endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deployment endpoint returned status %d", e.Code)
}

// Fetcher downloads the deployment bundle to local staging.
type Fetcher struct {
	BackendURL string
	StagingDir string
	HTTPClient *http.Client
	Log        *slog.Logger
}

// NewFetcher builds a bundle fetcher with the configured download
// timeout.
func NewFetcher(cfg *config.Agent, log *slog.Logger) *Fetcher {
	return &Fetcher{
		BackendURL: cfg.BackendURL,
		StagingDir: cfg.StagingDir,
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		Log:        log,
	}
}

// Fetch downloads the bundle authorized by token and returns the path
// of the fully staged file. The response body is streamed to disk in
// fixed-size chunks; bundles may well exceed device memory. On any
// failure the partial file is removed and no bundle path is produced.
func (f *Fetcher) Fetch(ctx context.Context, token string) (string, error) {
	if err := os.MkdirAll(f.StagingDir, 0700); err != nil {
		return "", fmt.Errorf("could not create staging directory: %w", err)
	}

	url := f.BackendURL + api.DeploymentPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	f.Log.Info("Downloading deployment bundle", slog.String("url", url))

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not request deployment endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	partial := filepath.Join(f.StagingDir, BundleName+".partial")
	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("could not create staging file: %w", err)
	}

	// Hide the file's ReadFrom so the copy actually goes through the
	// fixed-size buffer.
	written, err := io.CopyBuffer(struct{ io.Writer }{out}, resp.Body, make([]byte, downloadChunkSize))
	if err != nil {
		out.Close()
		os.Remove(partial)
		return "", fmt.Errorf("bundle download interrupted: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partial)
		return "", fmt.Errorf("could not sync staged bundle: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("could not close staged bundle: %w", err)
	}

	staged := filepath.Join(f.StagingDir, BundleName)
	if err := os.Rename(partial, staged); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("could not finalize staged bundle: %w", err)
	}

	metrics.BundleBytesDownloaded.Set(float64(written))
	f.Log.Info("Deployment bundle downloaded",
		slog.String("path", staged),
		slog.Int64("bytes", written))
	return staged, nil
}
