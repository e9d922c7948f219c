package drives

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// StaticRegistry serves a fixed list, typically taken from configuration.
type StaticRegistry struct {
	targets []Target
}

// NewStaticRegistry builds a registry from "label=path" or bare "path"
// entries. A bare path is labelled with its last element.
func NewStaticRegistry(entries []string) (*StaticRegistry, error) {
	r := &StaticRegistry{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		label, mount, ok := strings.Cut(entry, "=")
		if !ok {
			mount = label
			label = ""
		}
		mount = strings.TrimSpace(mount)
		if mount == "" {
			return nil, fmt.Errorf("drive entry %q has no mount path", entry)
		}
		if label = strings.TrimSpace(label); label == "" {
			label = labelFor(mount)
		}

		r.targets = append(r.targets, Target{Label: label, MountPath: filepath.Clean(mount)})
	}
	return r, nil
}

func (r *StaticRegistry) List(ctx context.Context) ([]Target, error) {
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out, nil
}

func labelFor(mount string) string {
	base := filepath.Base(filepath.Clean(mount))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return mount
	}
	return base
}
