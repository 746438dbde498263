package bootstrap

// Outcome is the terminal status of a bootstrap run, mapped to the
// process exit code observed by the service supervisor.
type Outcome int

const (
	// Success: the device is authorized and the edge software is
	// installed.
	Success Outcome = iota

	// NotAuthorized: the polling ceiling was reached without a grant.
	NotAuthorized

	// DownloadFailed: authorization was granted but the bundle could
	// not be fetched. There is no automatic retry; an operator
	// re-runs the agent.
	DownloadFailed

	// InstallFailed: the bundle was fetched but unpacking or the
	// installation entry point failed.
	InstallFailed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotAuthorized:
		return "not-authorized"
	case DownloadFailed:
		return "download-failed"
	case InstallFailed:
		return "install-failed"
	default:
		return "unknown"
	}
}

// ExitCode maps the outcome to the process exit status: 0 on full
// success, 1 on any stage failure.
func (o Outcome) ExitCode() int {
	if o == Success {
		return 0
	}
	return 1
}
