// Package config holds the agent's explicit runtime configuration and
// the persisted device record. All settings are resolved once at
// process start and passed into components; no component reads the
// environment or global state directly.
package config

import (
	"os"
	"strings"
	"time"
)

// Default values for agent settings. The backend URL default may be
// overridden through the CLI flag or its environment variable.
const (
	DefaultBackendURL = "https://crowdsurfer.politiquera.com"

	DefaultCPUInfoPath         = "/proc/cpuinfo"
	DefaultDeviceRecordPath    = "/etc/crowdsurfer/device.conf"
	DefaultFirmwareVersionPath = "/etc/crowdsurfer/firmware-version"
	DefaultStagingDir          = "/var/cache/crowdsurfer/deployment"
	DefaultInstallRoot         = "/opt/crowdsurfer"
	DefaultEntryPoint          = "install.sh"
	DefaultLogFile             = "/var/log/crowdsurfer/bootstrap.log"

	DefaultPollInterval    = 10 * time.Second
	DefaultMaxPollAttempts = 360

	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultFetchTimeout     = 60 * time.Second

	// FallbackFirmwareVersion is reported when the firmware version
	// file is absent or empty.
	FallbackFirmwareVersion = "1.0.0"
)

// Agent is the full configuration of one bootstrap run.
type Agent struct {
	// BackendURL is the base URL of the CrowdSurfer backend.
	BackendURL string

	// CPUInfoPath is the hardware metadata source for the identity
	// resolver.
	CPUInfoPath string

	// DeviceRecordPath is where the identity/token record is
	// persisted once authorization is granted.
	DeviceRecordPath string

	// FirmwareVersionPath is the file holding the installed firmware
	// version reported in heartbeats.
	FirmwareVersionPath string

	// StagingDir receives the downloaded deployment bundle.
	StagingDir string

	// InstallRoot is where the bundle is unpacked and installed.
	InstallRoot string

	// EntryPoint is the name of the installation executable expected
	// at the root of the unpacked bundle.
	EntryPoint string

	// PollInterval is the pause between registration attempts.
	PollInterval time.Duration

	// MaxPollAttempts bounds the authorization wait; at the default
	// cadence 360 attempts give a one-hour ceiling.
	MaxPollAttempts int

	// HeartbeatTimeout bounds each registration call.
	HeartbeatTimeout time.Duration

	// FetchTimeout bounds the bundle download.
	FetchTimeout time.Duration
}

// FirmwareVersion reads the firmware version file. A missing or empty
// file yields FallbackFirmwareVersion; version reporting must never
// block registration.
func (c *Agent) FirmwareVersion() string {
	data, err := os.ReadFile(c.FirmwareVersionPath)
	if err != nil {
		return FallbackFirmwareVersion
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return FallbackFirmwareVersion
	}
	return version
}
