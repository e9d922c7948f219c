package drives

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewStaticRegistry(t *testing.T) {
	usb := filepath.Join("media", "USBKEY")
	r, err := NewStaticRegistry([]string{"Music=" + filepath.Join("mnt", "music"), usb, " "})
	if err != nil {
		t.Fatalf("NewStaticRegistry failed: %v", err)
	}

	targets, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Label != "Music" {
		t.Errorf("expected label Music, got %q", targets[0].Label)
	}
	if targets[1].Label != "USBKEY" || targets[1].MountPath != usb {
		t.Errorf("unexpected target: %+v", targets[1])
	}
}

func TestNewStaticRegistry_EmptyPath(t *testing.T) {
	if _, err := NewStaticRegistry([]string{"Label="}); err == nil {
		t.Error("expected error for entry without mount path")
	}
}

func TestFind(t *testing.T) {
	targets := []Target{{Label: "A", MountPath: "/a"}, {Label: "B", MountPath: "/b"}}

	if got, ok := Find(targets, "B"); !ok || got.MountPath != "/b" {
		t.Errorf("Find by label = %+v, %v", got, ok)
	}
	if got, ok := Find(targets, "/a"); !ok || got.Label != "A" {
		t.Errorf("Find by path = %+v, %v", got, ok)
	}
	if _, ok := Find(targets, "C"); ok {
		t.Error("expected no match for unknown key")
	}
}
