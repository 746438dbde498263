package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/crowdsurfer/shaka-bootstrap/bootstrap"
	"github.com/crowdsurfer/shaka-bootstrap/cmd/flags"
	"github.com/crowdsurfer/shaka-bootstrap/config"
	"github.com/crowdsurfer/shaka-bootstrap/deployment"
	"github.com/crowdsurfer/shaka-bootstrap/httpserver"
	"github.com/crowdsurfer/shaka-bootstrap/identity"
	"github.com/crowdsurfer/shaka-bootstrap/registration"
)

const usage string = `Shaka device bootstrap agent
Registers the device with the CrowdSurfer backend under its hardware
serial, polls until an operator authorizes it, then downloads and
installs the edge software bundle. Exits 0 once the device is fully
provisioned and 1 on any stage failure; the service supervisor decides
whether to retry.`

func main() {
	app := &cli.App{
		Name:  "bootstrap-agent",
		Usage: usage,
		Flags: flags.CommonFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			cfg := flags.AgentConfig(cCtx)

			status := bootstrap.NewStatus()

			var srv *httpserver.Server
			if cCtx.String(flags.StatusAddrFlag.Name) != "" || cCtx.String(flags.MetricsAddrFlag.Name) != "" {
				srv = httpserver.New(flags.ConfigureServer(cCtx, logger), status, cfg.BackendURL)
				srv.RunInBackground()
			}

			store := &config.Store{Path: cfg.DeviceRecordPath, Log: logger}
			agent := &bootstrap.Agent{
				Identity: &identity.Resolver{CPUInfoPath: cfg.CPUInfoPath},
				Poller: registration.NewPoller(cfg,
					registration.NewClient(cfg, logger), store, logger),
				Fetcher: deployment.NewFetcher(cfg, logger),
				Installer: &deployment.Installer{
					InstallRoot: cfg.InstallRoot,
					EntryPoint:  cfg.EntryPoint,
					Log:         logger,
				},
				Status: status,
				Log:    logger,
			}

			outcome := agent.Run(context.Background())

			if srv != nil {
				srv.Shutdown()
			}

			if outcome != bootstrap.Success {
				return cli.Exit("bootstrap failed: "+outcome.String(), outcome.ExitCode())
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
