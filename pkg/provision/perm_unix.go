//go:build !windows
// +build !windows

package provision

import "os"

func markExecutable(path string) error {
	return os.Chmod(path, 0755)
}
