package provision

import "fmt"

// Step names one fail-fast point of the provisioning sequence.
type Step string

const (
	StepPrepareDir        Step = "prepare_dir"
	StepFetchDownloader   Step = "fetch_downloader"
	StepFetchArchive      Step = "fetch_archive"
	StepExtractTranscoder Step = "extract_transcoder"
	StepCleanup           Step = "cleanup"
	StepVerify            Step = "verify"
)

// Error reports which provisioning step failed.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stepError(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Step: step, Err: err}
}
