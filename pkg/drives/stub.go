//go:build !linux
// +build !linux

package drives

import (
	"context"
	"log/slog"
	"runtime"
)

// StubRegistry reports no removable volumes on platforms without a
// discovery backend. Destinations come from configuration there.
type StubRegistry struct{}

// NewRegistry creates the platform registry.
func NewRegistry() Registry {
	return &StubRegistry{}
}

func (r *StubRegistry) List(ctx context.Context) ([]Target, error) {
	slog.Debug("drives_discovery_unsupported", "platform", runtime.GOOS)
	return nil, nil
}
