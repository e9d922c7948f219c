package fsm

// ProvisionRequest is the FSM input
type ProvisionRequest struct {
	RunID   string
	LibsDir string
}

// ProvisionResponse is the FSM output (accumulated across transitions)
type ProvisionResponse struct {
	// From FetchDownloader
	DownloaderSHA256 string
	DownloaderSize   int64

	// From FetchArchive
	ArchivePath string
	ArchiveSize int64

	// From ExtractTranscoder
	TranscoderSHA256 string
	TranscoderSize   int64

	// From Complete
	Status string
}

// State names match the provisioning steps
const (
	StatePrepareDir        = "prepare_dir"
	StateFetchDownloader   = "fetch_downloader"
	StateFetchArchive      = "fetch_archive"
	StateExtractTranscoder = "extract_transcoder"
	StateCleanup           = "cleanup"
	StateComplete          = "complete"
	StateFailed            = "failed"
)
