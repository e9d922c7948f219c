package orchestrator

// Phase is the orchestrator's single current state.
type Phase int32

const (
	Idle Phase = iota
	InvalidLink
	ProvisioningPrerequisites
	CheckingUpdate
	DownloadRunning
	DownloadSucceeded
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InvalidLink:
		return "invalid_link"
	case ProvisioningPrerequisites:
		return "provisioning_prerequisites"
	case CheckingUpdate:
		return "checking_update"
	case DownloadRunning:
		return "download_running"
	case DownloadSucceeded:
		return "download_succeeded"
	default:
		return "unknown"
	}
}

// Busy reports whether a background task is outstanding in this phase.
func (p Phase) Busy() bool {
	return p == ProvisioningPrerequisites || p == CheckingUpdate || p == DownloadRunning
}

// NoticeKind classifies what the presentation layer is told.
type NoticeKind int

const (
	// NoticePhase reports a phase change
	NoticePhase NoticeKind = iota
	// NoticeNoDestination reports a start without a selected drive
	NoticeNoDestination
	// NoticeError reports a failed chain or rejected input
	NoticeError
	// NoticeProgress carries download progress
	NoticeProgress
)

// Notice is one message for the presentation layer.
type Notice struct {
	Kind    NoticeKind
	Phase   Phase
	Percent float64
	Err     error
}
