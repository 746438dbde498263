/*
Package registration implements the public bootstrap exchange between a
Shaka edge device and the CrowdSurfer backend.

A device announces itself by posting heartbeats to the backend under
its hardware-derived serial. Until a human operator approves the
device, the backend answers each heartbeat with an "unauthorized"
status; after approval it answers with a device token, the bearer
credential for every subsequent authenticated call.

The package has two layers:

  - Client performs a single heartbeat exchange. It distinguishes a
    grant (token present), a pending answer (explicit unauthorized
    status), and everything else, which it reports as an error.
  - Poller drives the Client on a fixed cadence with a bounded number
    of attempts. Errors from individual attempts are treated as
    transient and absorbed: a flaky backend delays bootstrap, it never
    aborts it. The poller's only failure mode besides cancellation is
    ErrNotAuthorized when the ceiling is reached.

On the first grant the poller persists the device record (serial,
token, backend URL) through config.Store before returning, so a
process crash after authorization never loses the token.

The poller's clock is injected (benbjohnson/clock) so the full
one-hour ceiling is exercised in tests without real sleeps.
*/
package registration
