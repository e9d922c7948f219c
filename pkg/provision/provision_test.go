package provision

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/gamermine/convertisseur/pkg/errors"
	"github.com/gamermine/convertisseur/pkg/security"
	"github.com/ulikunitz/xz"
)

func newValidator() *security.Validator {
	return security.NewValidator(10*1024*1024, 20*1024*1024, 100.0)
}

func buildTarXz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func testPlatform(base string) Platform {
	return Platform{
		OS:              "test",
		Downloader:      Asset{URL: base + "/yt-dlp", FileName: "yt-dlp"},
		Archive:         Asset{URL: base + "/ffmpeg.tar.xz", FileName: "ffmpeg.tar.xz"},
		Format:          FormatTarXz,
		TranscoderEntry: "ffmpeg",
	}
}

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		goos   string
		format Format
		entry  string
	}{
		{"linux", FormatTarXz, "ffmpeg"},
		{"windows", Format7z, "ffmpeg.exe"},
		{"darwin", FormatZip, "ffmpeg"},
	}

	for _, tt := range tests {
		p, err := PlatformFor(tt.goos)
		if err != nil {
			t.Fatalf("PlatformFor(%s) failed: %v", tt.goos, err)
		}
		if p.Format != tt.format || p.TranscoderEntry != tt.entry {
			t.Errorf("PlatformFor(%s) = %s/%s, want %s/%s", tt.goos, p.Format, p.TranscoderEntry, tt.format, tt.entry)
		}
	}

	if _, err := PlatformFor("plan9"); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

func TestPlatformPaths_Windows(t *testing.T) {
	p, _ := PlatformFor("windows")
	paths, err := p.Paths("libs")
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if !filepath.IsAbs(paths.Dir) {
		t.Errorf("expected absolute dir, got %s", paths.Dir)
	}
	if filepath.Base(paths.Downloader) != "yt-dlp.exe" || filepath.Base(paths.Transcoder) != "ffmpeg.exe" {
		t.Errorf("unexpected tool names: %+v", paths)
	}
}

func TestPlatformPaths_ResolvesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	base := t.TempDir()
	realDir := filepath.Join(base, "real-libs")
	if err := os.Mkdir(realDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(base, "libs")
	if err := os.Symlink(realDir, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	want, err := filepath.EvalSymlinks(realDir)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	platform, _ := PlatformFor("linux")
	paths, err := platform.Paths(link)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if paths.Dir != want {
		t.Errorf("Dir = %q, want %q", paths.Dir, want)
	}
	if paths.Transcoder != filepath.Join(want, "ffmpeg") {
		t.Errorf("Transcoder = %q", paths.Transcoder)
	}

	// a missing dir is kept as given, it is created on first fetch
	missing := filepath.Join(base, "not-yet")
	paths, err = platform.Paths(missing)
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if paths.Dir != missing {
		t.Errorf("Dir = %q, want %q", paths.Dir, missing)
	}
}

func TestWithOverrides(t *testing.T) {
	p, _ := PlatformFor("linux")
	p = p.WithOverrides("", "https://mirror.example/ffmpeg.tar.xz")
	if p.Downloader.URL != LinuxDownloaderURL {
		t.Errorf("empty override changed downloader URL to %s", p.Downloader.URL)
	}
	if p.Archive.URL != "https://mirror.example/ffmpeg.tar.xz" {
		t.Errorf("archive URL not overridden: %s", p.Archive.URL)
	}
}

func TestPresent(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{Dir: dir, Downloader: filepath.Join(dir, "yt-dlp"), Transcoder: filepath.Join(dir, "ffmpeg")}

	if Present(paths) {
		t.Error("expected tools absent in empty dir")
	}
	os.WriteFile(paths.Downloader, []byte("x"), 0755)
	if Present(paths) {
		t.Error("expected false with only the downloader present")
	}
	os.WriteFile(paths.Transcoder, []byte("x"), 0755)
	if !Present(paths) {
		t.Error("expected true with both tools present")
	}
}

func TestFetch_InstallsBothTools(t *testing.T) {
	archive := buildTarXz(t, map[string]string{
		"ffmpeg-7.0-amd64-static/readme.txt": "readme",
		"ffmpeg-7.0-amd64-static/ffprobe":    "probe",
		"ffmpeg-7.0-amd64-static/ffmpeg":     "transcoder-binary",
	})

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/yt-dlp":
			w.Write([]byte("downloader-binary"))
		case "/ffmpeg.tar.xz":
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	platform := testPlatform(srv.URL)
	paths, err := platform.Paths(filepath.Join(t.TempDir(), "libs"))
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}

	p := New(platform, paths, NewHTTPSource(0), newValidator())
	if p.Present() {
		t.Fatal("tools should be absent before Fetch")
	}

	for i := 0; i < 2; i++ {
		if err := p.Fetch(context.Background()); err != nil {
			t.Fatalf("Fetch run %d failed: %v", i+1, err)
		}
	}

	if err := p.Verify(); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	got, _ := os.ReadFile(paths.Transcoder)
	if string(got) != "transcoder-binary" {
		t.Errorf("transcoder content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(paths.Dir, "ffprobe")); !os.IsNotExist(err) {
		t.Error("non-matching entries must not be written")
	}
	if _, err := os.Stat(p.ArchivePath()); !os.IsNotExist(err) {
		t.Error("archive should be removed after provisioning")
	}

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(paths.Downloader)
		if err != nil {
			t.Fatalf("stat downloader: %v", err)
		}
		if fi.Mode().Perm()&0111 == 0 {
			t.Errorf("downloader not executable: %v", fi.Mode())
		}
	}

	if n := atomic.LoadInt32(&hits); n != 4 {
		t.Errorf("expected 4 requests over two runs, got %d", n)
	}
}

func TestFetch_ReportsFailingStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/yt-dlp" {
			w.Write([]byte("downloader-binary"))
			return
		}
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	platform := testPlatform(srv.URL)
	paths, _ := platform.Paths(t.TempDir())
	p := New(platform, paths, NewHTTPSource(0), newValidator())

	err := p.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error when archive download fails")
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if perr.Step != StepFetchArchive {
		t.Errorf("failing step = %s, want %s", perr.Step, StepFetchArchive)
	}
	if _, err := os.Stat(paths.Downloader); err != nil {
		t.Error("downloader from the successful step should remain")
	}
}

type failingSource struct{}

func (failingSource) Fetch(ctx context.Context, asset Asset, destPath string) (*Download, error) {
	return nil, fmt.Errorf("network down")
}

func TestFetch_StopsAtFirstStep(t *testing.T) {
	platform := testPlatform("http://unused")
	paths, _ := platform.Paths(t.TempDir())
	p := New(platform, paths, failingSource{}, newValidator())

	var perr *Error
	if err := p.Fetch(context.Background()); !errors.As(err, &perr) || perr.Step != StepFetchDownloader {
		t.Fatalf("expected failure at %s, got %v", StepFetchDownloader, err)
	}
}

func TestExtractEntry_Zip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "ffmpeg.zip")
	os.WriteFile(archivePath, buildZip(t, map[string]string{"ffmpeg": "mac-binary", "LICENSE": "gpl"}), 0644)

	dest := filepath.Join(dir, "out", "ffmpeg")
	dl, err := ExtractEntry(archivePath, FormatZip, "ffmpeg", dest, newValidator())
	if err != nil {
		t.Fatalf("ExtractEntry failed: %v", err)
	}
	if dl.Size != int64(len("mac-binary")) {
		t.Errorf("size = %d", dl.Size)
	}
}

func TestExtractEntry_7z(t *testing.T) {
	// built on windows: backslash separators, and a sibling binary sharing the folder
	archivePath := filepath.Join("testdata", "ffmpeg-essentials.7z")

	dir := t.TempDir()
	dest := filepath.Join(dir, "ffmpeg.exe")
	dl, err := ExtractEntry(archivePath, Format7z, "ffmpeg.exe", dest, newValidator())
	if err != nil {
		t.Fatalf("ExtractEntry failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if string(got) != "MZ fake transcoder build\n" {
		t.Errorf("extracted %q, want the transcoder entry", got)
	}
	if dl.Size != int64(len(got)) {
		t.Errorf("size = %d, want %d", dl.Size, len(got))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the transcoder on disk, found %d entries", len(entries))
	}
}

func TestExtractEntry_7zNotFound(t *testing.T) {
	archivePath := filepath.Join("testdata", "ffmpeg-essentials.7z")

	_, err := ExtractEntry(archivePath, Format7z, "ffplay.exe", filepath.Join(t.TempDir(), "ffplay.exe"), newValidator())
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestExtractEntry_NotFound(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "ffmpeg.zip")
	os.WriteFile(archivePath, buildZip(t, map[string]string{"bin/ffmpeg-static": "x"}), 0644)

	_, err := ExtractEntry(archivePath, FormatZip, "ffmpeg", filepath.Join(dir, "ffmpeg"), newValidator())
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestExtractEntry_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.xz")
	os.WriteFile(archivePath, buildTarXz(t, map[string]string{"../../ffmpeg": "evil"}), 0644)

	if _, err := ExtractEntry(archivePath, FormatTarXz, "ffmpeg", filepath.Join(dir, "ffmpeg"), newValidator()); err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
}

func TestExtractEntry_EntryTooLarge(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "big.zip")
	os.WriteFile(archivePath, buildZip(t, map[string]string{"ffmpeg": string(make([]byte, 2048))}), 0644)

	v := security.NewValidator(1024, 1024*1024, 1000.0)
	if _, err := ExtractEntry(archivePath, FormatZip, "ffmpeg", filepath.Join(dir, "ffmpeg"), v); err == nil {
		t.Fatal("expected oversize entry to be rejected")
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"ffmpeg":                               "ffmpeg",
		"ffmpeg-7.0/ffmpeg":                    "ffmpeg",
		`ffmpeg-git-essentials\bin\ffmpeg.exe`: "ffmpeg.exe",
		"dir/":                                 "dir",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}
