// Package bootstrap sequences the end-to-end provisioning flow of a
// Shaka device: resolve the hardware identity, wait for operator
// authorization, fetch the deployment bundle, and run its installer.
// Each stage failure short-circuits the rest of the flow; the outcome
// maps to the process exit status.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crowdsurfer/shaka-bootstrap/deployment"
	"github.com/crowdsurfer/shaka-bootstrap/identity"
	"github.com/crowdsurfer/shaka-bootstrap/registration"
)

// Agent owns one bootstrap run over its collaborators.
type Agent struct {
	Identity  *identity.Resolver
	Poller    *registration.Poller
	Fetcher   *deployment.Fetcher
	Installer *deployment.Installer
	Status    *Status
	Log       *slog.Logger
}

// Run drives the bootstrap sequence to a terminal outcome. It never
// panics on stage failures; every path ends in an outcome the caller
// turns into an exit code.
func (a *Agent) Run(ctx context.Context) Outcome {
	a.Log.Info("=== Shaka bootstrap agent starting ===")

	serial := a.Identity.Resolve()
	a.Status.SetSerial(serial)
	a.Log.Info("Resolved device identity", slog.String("deviceSerial", serial))

	a.Status.SetStage(StageAwaitingAuthorization)
	token, err := a.Poller.Wait(ctx, serial)
	if err != nil {
		if errors.Is(err, registration.ErrNotAuthorized) {
			a.Log.Error("Device was not authorized within the polling ceiling",
				slog.String("deviceSerial", serial))
		} else {
			a.Log.Error("Authorization wait failed", slog.Any("err", err))
		}
		return a.fail(NotAuthorized)
	}
	a.Status.SetRegistered()

	a.Status.SetStage(StageDownloading)
	bundlePath, err := a.Fetcher.Fetch(ctx, token)
	if err != nil {
		a.Log.Error("Deployment bundle download failed", slog.Any("err", err))
		return a.fail(DownloadFailed)
	}

	a.Status.SetStage(StageInstalling)
	if err := a.Installer.Install(ctx, bundlePath); err != nil {
		var exitErr *deployment.ExitError
		switch {
		case errors.Is(err, deployment.ErrEntryPointMissing):
			a.Log.Error("Deployment bundle is missing its installation entry point")
		case errors.As(err, &exitErr):
			a.Log.Error("Installation entry point failed",
				slog.Int("exitCode", exitErr.Code))
		default:
			a.Log.Error("Installation failed", slog.Any("err", err))
		}
		return a.fail(InstallFailed)
	}

	a.Status.SetStage(StageDone)
	a.Log.Info("=== Shaka bootstrap agent finished: device provisioned ===")
	return Success
}

func (a *Agent) fail(outcome Outcome) Outcome {
	a.Status.SetStage(StageFailed)
	a.Log.Error("=== Shaka bootstrap agent failed ===",
		slog.String("outcome", outcome.String()))
	return outcome
}
