// Package main (cmd/bootstrap-agent) implements the first-boot
// provisioning agent for Shaka edge Wi-Fi hotspot devices.
//
// The agent realizes a two-stage trust model. In the public bootstrap
// stage the device announces itself to the CrowdSurfer backend under a
// serial derived from its hardware identity, then polls on a fixed
// cadence until a human operator authorizes it (default 10 seconds
// between attempts with a one-hour ceiling). Once a token is granted,
// the private deployment stage downloads the proprietary edge software
// bundle over authenticated HTTPS, unpacks it, and runs the
// installation entry point embedded in the bundle, relaying the
// installer's output to the agent's log as it is produced.
//
// The process is designed to run as a oneshot service under a
// supervisor:
//
//   - exit code 0: the device is authorized and fully provisioned
//   - exit code 1: not authorized in time, download failed, or the
//     installer failed
//
// The backend base URL comes from --backend-url or the
// CROWDSURFER_BACKEND_URL environment variable. While the agent runs,
// a local status API (--status-addr) reports the current bootstrap
// stage for operators on the management network, alongside a
// Prometheus metrics endpoint (--metrics-addr).
package main
