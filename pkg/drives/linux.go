//go:build linux
// +build linux

package drives

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gamermine/convertisseur/pkg/errors"
)

// LinuxRegistry reports mounted partitions of block devices the kernel
// flags as removable.
type LinuxRegistry struct {
	mountsPath   string
	sysBlockPath string
}

// NewRegistry creates the platform registry.
func NewRegistry() Registry {
	return &LinuxRegistry{
		mountsPath:   DefaultMountsPath,
		sysBlockPath: DefaultSysBlockPath,
	}
}

func (r *LinuxRegistry) List(ctx context.Context) ([]Target, error) {
	f, err := os.Open(r.mountsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mount table")
	}
	defer f.Close()

	mounts, err := parseMounts(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse mount table")
	}

	var targets []Target
	seen := make(map[string]bool)
	for _, m := range mounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dev := blockDevice(m.device)
		if dev == "" || seen[m.mountPath] {
			continue
		}
		if !r.removable(dev) {
			continue
		}

		seen[m.mountPath] = true
		targets = append(targets, Target{Label: labelFor(m.mountPath), MountPath: m.mountPath})
	}

	slog.Debug("drives_listed", "count", len(targets), "platform", "linux")
	return targets, nil
}

func (r *LinuxRegistry) removable(dev string) bool {
	data, err := os.ReadFile(filepath.Join(r.sysBlockPath, dev, "removable"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

type mountEntry struct {
	device    string
	mountPath string
}

func parseMounts(rd io.Reader) ([]mountEntry, error) {
	var out []mountEntry
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		out = append(out, mountEntry{
			device:    fields[0],
			mountPath: unescapeMount(fields[1]),
		})
	}
	return out, sc.Err()
}

// unescapeMount decodes the octal escapes the kernel uses for whitespace
// and backslashes in mount paths.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// blockDevice maps a partition node to its parent disk name:
// /dev/sdb1 -> sdb, /dev/mmcblk0p1 -> mmcblk0. Non-device sources yield "".
func blockDevice(device string) string {
	if !strings.HasPrefix(device, "/dev/") {
		return ""
	}
	name := strings.TrimPrefix(device, "/dev/")
	if strings.Contains(name, "/") {
		return ""
	}

	switch {
	case strings.HasPrefix(name, "mmcblk"), strings.HasPrefix(name, "nvme"):
		if i := strings.LastIndex(name, "p"); i > 0 && isDigits(name[i+1:]) {
			return name[:i]
		}
		return name
	default:
		return strings.TrimRight(name, "0123456789")
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
