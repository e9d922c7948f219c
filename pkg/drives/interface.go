// Package drives lists the removable volumes a finished download can be
// written to.
package drives

import "context"

// Target is one candidate destination: a display label and the directory
// the volume is mounted at.
type Target struct {
	Label     string
	MountPath string
}

// Registry supplies the ordered list of destinations.
type Registry interface {
	// List returns the currently known destinations
	List(ctx context.Context) ([]Target, error)
}

// Find returns the target with the given label or mount path.
func Find(targets []Target, key string) (Target, bool) {
	for _, t := range targets {
		if t.Label == key || t.MountPath == key {
			return t, true
		}
	}
	return Target{}, false
}
