// Package common holds identity constants and logger setup shared by
// every binary in this repository.
package common

// PackageName tags logs and metrics emitted by the bootstrap agent.
const PackageName = "shaka-bootstrap"

// Version is set at build time via -ldflags.
var Version = "dev"
