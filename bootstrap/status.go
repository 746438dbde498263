package bootstrap

import (
	"go.uber.org/atomic"

	"github.com/crowdsurfer/shaka-bootstrap/metrics"
)

// Stage names reported by the status tracker and the stage metric.
const (
	StageStarting              = "starting"
	StageAwaitingAuthorization = "awaiting-authorization"
	StageDownloading           = "downloading"
	StageInstalling            = "installing"
	StageDone                  = "done"
	StageFailed                = "failed"
)

// Status tracks the live state of a bootstrap run for the local status
// server. It is written by the orchestrator and read concurrently by
// HTTP handlers.
type Status struct {
	serial     atomic.String
	stage      atomic.String
	registered atomic.Bool
}

// NewStatus returns a tracker in the starting stage.
func NewStatus() *Status {
	s := &Status{}
	s.stage.Store(StageStarting)
	return s
}

func (s *Status) SetSerial(serial string) { s.serial.Store(serial) }

func (s *Status) SetStage(stage string) {
	s.stage.Store(stage)
	metrics.SetStage(stage)
}

func (s *Status) SetRegistered() { s.registered.Store(true) }

func (s *Status) Serial() string   { return s.serial.Load() }
func (s *Status) Stage() string    { return s.stage.Load() }
func (s *Status) Registered() bool { return s.registered.Load() }
