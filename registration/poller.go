package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/crowdsurfer/shaka-bootstrap/config"
	"github.com/crowdsurfer/shaka-bootstrap/metrics"
)

// ErrNotAuthorized is returned when the polling ceiling is reached
// without the backend granting a token.
var ErrNotAuthorized = errors.New("device was not authorized before the polling deadline")

// Poller drives the registration client on a fixed cadence until the
// backend grants a token or the attempt ceiling is reached. Transient
// registration failures are absorbed here and never escape; the only
// error surfaced besides cancellation is ErrNotAuthorized.
//
// Every tick performs a full registration heartbeat rather than a
// lighter status check. That matches the backend's current contract;
// see DESIGN.md before changing the cadence semantics.
type Poller struct {
	Client      RegistrationProvider
	Store       *config.Store
	BackendURL  string
	Interval    time.Duration
	MaxAttempts int
	Clock       clock.Clock
	Log         *slog.Logger
}

// NewPoller builds a poller over the given client using the configured
// interval and ceiling, persisting grants through store.
func NewPoller(cfg *config.Agent, client RegistrationProvider, store *config.Store, log *slog.Logger) *Poller {
	return &Poller{
		Client:      client,
		Store:       store,
		BackendURL:  cfg.BackendURL,
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.MaxPollAttempts,
		Clock:       clock.New(),
		Log:         log,
	}
}

// Wait blocks until authorization is granted, the attempt ceiling is
// reached, or ctx is canceled. On grant the device record is persisted
// before the token is returned, so a granted token is never observed
// without its durable record.
func (p *Poller) Wait(ctx context.Context, serial string) (string, error) {
	p.Log.Info("Waiting for device authorization",
		slog.String("deviceSerial", serial),
		slog.Duration("interval", p.Interval),
		slog.Int("maxAttempts", p.MaxAttempts))

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		token, err := p.Client.Register(ctx, serial)
		switch {
		case err != nil:
			// Transient by policy: backend hiccups delay
			// bootstrap, they do not abort it.
			metrics.RegistrationAttempts.WithLabelValues("error").Inc()
			p.Log.Warn("Registration attempt failed",
				slog.Int("attempt", attempt),
				slog.Any("err", err))
		case token != "":
			metrics.RegistrationAttempts.WithLabelValues("granted").Inc()
			p.Log.Info("Device authorization granted",
				slog.String("deviceSerial", serial),
				slog.Int("attempt", attempt))

			rec := config.DeviceRecord{
				DeviceSerial: serial,
				DeviceToken:  token,
				BackendURL:   p.BackendURL,
			}
			if err := p.Store.Save(rec); err != nil {
				return "", fmt.Errorf("could not persist device record: %w", err)
			}
			return token, nil
		default:
			metrics.RegistrationAttempts.WithLabelValues("pending").Inc()
			p.Log.Debug("Authorization pending", slog.Int("attempt", attempt))
		}

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-p.Clock.After(p.Interval):
		}
	}

	return "", ErrNotAuthorized
}
