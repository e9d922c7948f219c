//go:build windows
// +build windows

package provision

// Executability on windows follows the file extension.
func markExecutable(path string) error {
	return nil
}
