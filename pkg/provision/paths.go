package provision

import "os"

// Paths are the absolute locations of the two tools. Both live in Dir.
type Paths struct {
	Dir        string
	Downloader string
	Transcoder string
}

// Present reports whether both tools exist on disk. Absence is an answer,
// not an error.
func Present(paths Paths) bool {
	return exists(paths.Downloader) && exists(paths.Transcoder)
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
