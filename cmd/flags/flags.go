// Package flags defines the shared CLI flag set of the bootstrap
// agent and helpers that turn parsed flags into component
// configuration.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/crowdsurfer/shaka-bootstrap/common"
	"github.com/crowdsurfer/shaka-bootstrap/config"
	"github.com/crowdsurfer/shaka-bootstrap/httpserver"
)

var BackendURLFlag = &cli.StringFlag{
	Name:    "backend-url",
	Value:   config.DefaultBackendURL,
	Usage:   "base URL of the CrowdSurfer backend",
	EnvVars: []string{"CROWDSURFER_BACKEND_URL"},
}

var CPUInfoPathFlag = &cli.StringFlag{
	Name:  "cpuinfo-path",
	Value: config.DefaultCPUInfoPath,
	Usage: "hardware metadata source for device identity",
}

var DeviceRecordFlag = &cli.StringFlag{
	Name:  "device-record",
	Value: config.DefaultDeviceRecordPath,
	Usage: "path of the persisted device identity/token record",
}

var FirmwareVersionFileFlag = &cli.StringFlag{
	Name:  "firmware-version-file",
	Value: config.DefaultFirmwareVersionPath,
	Usage: "file holding the firmware version reported in heartbeats",
}

var StagingDirFlag = &cli.StringFlag{
	Name:  "staging-dir",
	Value: config.DefaultStagingDir,
	Usage: "directory the deployment bundle is downloaded into",
}

var InstallRootFlag = &cli.StringFlag{
	Name:  "install-root",
	Value: config.DefaultInstallRoot,
	Usage: "directory the deployment bundle is unpacked and installed in",
}

var EntryPointFlag = &cli.StringFlag{
	Name:  "entry-point",
	Value: config.DefaultEntryPoint,
	Usage: "name of the installation entry point inside the bundle",
}

var PollIntervalFlag = &cli.DurationFlag{
	Name:  "poll-interval",
	Value: config.DefaultPollInterval,
	Usage: "pause between authorization polling attempts",
}

var PollMaxAttemptsFlag = &cli.IntFlag{
	Name:  "poll-max-attempts",
	Value: config.DefaultMaxPollAttempts,
	Usage: "number of polling attempts before giving up",
}

var StatusAddrFlag = &cli.StringFlag{
	Name:  "status-addr",
	Value: "127.0.0.1:8080",
	Usage: "listen address of the local status API, empty to disable",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics, empty to disable",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var LogFileFlag = &cli.StringFlag{
	Name:  "log-file",
	Value: config.DefaultLogFile,
	Usage: "durable log file, empty to log to stdout only",
}

var CommonFlags = []cli.Flag{
	BackendURLFlag,
	CPUInfoPathFlag,
	DeviceRecordFlag,
	FirmwareVersionFileFlag,
	StagingDirFlag,
	InstallRootFlag,
	EntryPointFlag,
	PollIntervalFlag,
	PollMaxAttemptsFlag,
	StatusAddrFlag,
	MetricsAddrFlag,
	PprofFlag,
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
	LogFileFlag,
}

// SetupLogger builds the process logger from the parsed log flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJSONFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
		LogFile: cCtx.String(LogFileFlag.Name),
	})

	if cCtx.Bool(LogUIDFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// AgentConfig resolves the parsed flags into the explicit agent
// configuration passed into every component.
func AgentConfig(cCtx *cli.Context) *config.Agent {
	return &config.Agent{
		BackendURL:          cCtx.String(BackendURLFlag.Name),
		CPUInfoPath:         cCtx.String(CPUInfoPathFlag.Name),
		DeviceRecordPath:    cCtx.String(DeviceRecordFlag.Name),
		FirmwareVersionPath: cCtx.String(FirmwareVersionFileFlag.Name),
		StagingDir:          cCtx.String(StagingDirFlag.Name),
		InstallRoot:         cCtx.String(InstallRootFlag.Name),
		EntryPoint:          cCtx.String(EntryPointFlag.Name),
		PollInterval:        cCtx.Duration(PollIntervalFlag.Name),
		MaxPollAttempts:     cCtx.Int(PollMaxAttemptsFlag.Name),
		HeartbeatTimeout:    config.DefaultHeartbeatTimeout,
		FetchTimeout:        config.DefaultFetchTimeout,
	}
}

// ConfigureServer builds the status server configuration from the
// parsed flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(StatusAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		Log:                      logger,
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}
}
