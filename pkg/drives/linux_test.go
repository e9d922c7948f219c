//go:build linux
// +build linux

package drives

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlockDevice(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"/dev/sdb1", "sdb"},
		{"/dev/sdc", "sdc"},
		{"/dev/mmcblk0p1", "mmcblk0"},
		{"/dev/nvme0n1p2", "nvme0n1"},
		{"/dev/mapper/root", ""},
		{"tmpfs", ""},
	}

	for _, tt := range tests {
		if got := blockDevice(tt.device); got != tt.want {
			t.Errorf("blockDevice(%q) = %q, want %q", tt.device, got, tt.want)
		}
	}
}

func TestParseMounts_Unescapes(t *testing.T) {
	table := "/dev/sdb1 /media/user/MY\\040KEY vfat rw 0 0\nproc /proc proc rw 0 0\n"

	mounts, err := parseMounts(strings.NewReader(table))
	if err != nil {
		t.Fatalf("parseMounts failed: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(mounts))
	}
	if mounts[0].mountPath != "/media/user/MY KEY" {
		t.Errorf("mount path = %q, want %q", mounts[0].mountPath, "/media/user/MY KEY")
	}
}

func TestLinuxRegistry_ListsOnlyRemovable(t *testing.T) {
	dir := t.TempDir()
	sysBlock := filepath.Join(dir, "block")

	for dev, flag := range map[string]string{"sda": "0\n", "sdb": "1\n"} {
		if err := os.MkdirAll(filepath.Join(sysBlock, dev), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(sysBlock, dev, "removable"), []byte(flag), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	mounts := filepath.Join(dir, "mounts")
	table := strings.Join([]string{
		"/dev/sda2 / ext4 rw 0 0",
		"/dev/sdb1 /media/user/USBKEY vfat rw 0 0",
		"/dev/sdb1 /media/user/USBKEY vfat rw 0 0",
		"tmpfs /tmp tmpfs rw 0 0",
	}, "\n")
	if err := os.WriteFile(mounts, []byte(table), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	r := &LinuxRegistry{mountsPath: mounts, sysBlockPath: sysBlock}
	targets, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d: %+v", len(targets), targets)
	}
	if targets[0].Label != "USBKEY" || targets[0].MountPath != "/media/user/USBKEY" {
		t.Errorf("unexpected target: %+v", targets[0])
	}
}
