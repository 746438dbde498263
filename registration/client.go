package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/crowdsurfer/shaka-bootstrap/api"
	"github.com/crowdsurfer/shaka-bootstrap/config"
)

// RegistrationProvider abstracts the backend registration exchange so
// the poller can be tested against scripted responses.
type RegistrationProvider interface {
	// Register sends one heartbeat for the given device serial.
	// It returns the authorization token when the backend granted
	// one, an empty token while authorization is still pending, and
	// an error for transport failures, unexpected statuses, or
	// malformed bodies. Callers on the polling path treat every
	// error as transient.
	Register(ctx context.Context, serial string) (string, error)
}

// Client talks to the backend heartbeat endpoint over HTTPS.
type Client struct {
	BackendURL      string
	FirmwareVersion string
	HTTPClient      *http.Client
	Log             *slog.Logger
}

// NewClient builds a heartbeat client with the configured bounded
// timeout.
func NewClient(cfg *config.Agent, log *slog.Logger) *Client {
	return &Client{
		BackendURL:      cfg.BackendURL,
		FirmwareVersion: cfg.FirmwareVersion(),
		HTTPClient:      &http.Client{Timeout: cfg.HeartbeatTimeout},
		Log:             log,
	}
}

// Register implements RegistrationProvider against the real backend.
// The bootstrap stage has no telemetry collectors yet, so the
// heartbeat carries a static zero telemetry block.
func (c *Client) Register(ctx context.Context, serial string) (string, error) {
	payload := api.HeartbeatRequest{
		SerialNumber:    serial,
		FirmwareVersion: c.FirmwareVersion,
		Telemetry:       api.Telemetry{},
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not marshal heartbeat: %w", err)
	}

	url := c.BackendURL + api.HeartbeatPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not request heartbeat endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("heartbeat endpoint returned non-200 response: %d", resp.StatusCode)
		}
		return "", fmt.Errorf("heartbeat endpoint returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed api.HeartbeatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("could not parse heartbeat response: %w", err)
	}

	switch {
	case parsed.DeviceToken != "":
		return parsed.DeviceToken, nil
	case parsed.Status == api.StatusUnauthorized:
		c.Log.Info("Device not yet authorized",
			slog.String("deviceSerial", serial),
			slog.String("message", parsed.Message))
		return "", nil
	default:
		return "", fmt.Errorf("heartbeat response carried neither token nor status")
	}
}
