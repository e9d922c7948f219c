package provision

import (
	"fmt"
	"os"
	"path/filepath"
)

// Release asset locations per platform.
const (
	LinuxDownloaderURL   = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp"
	LinuxTranscoderURL   = "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz"
	WindowsDownloaderURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp.exe"
	WindowsTranscoderURL = "https://www.gyan.dev/ffmpeg/builds/ffmpeg-git-essentials.7z"
	DarwinDownloaderURL  = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_macos"
	DarwinTranscoderURL  = "https://evermeet.cx/ffmpeg/getrelease/zip"
)

// Format is the container the transcoder ships in.
type Format string

const (
	FormatTarXz Format = "tar.xz"
	FormatZip   Format = "zip"
	Format7z    Format = "7z"
)

// Asset is a downloadable release file and the name it is stored under.
type Asset struct {
	URL      string
	FileName string
}

// Platform holds the asset coordinates for one operating system.
type Platform struct {
	OS         string
	Downloader Asset
	Archive    Asset
	Format     Format
	// TranscoderEntry is the base name of the executable inside Archive
	TranscoderEntry string
}

// PlatformFor returns the coordinates for goos.
func PlatformFor(goos string) (Platform, error) {
	switch goos {
	case "linux":
		return Platform{
			OS:              goos,
			Downloader:      Asset{URL: LinuxDownloaderURL, FileName: "yt-dlp"},
			Archive:         Asset{URL: LinuxTranscoderURL, FileName: "ffmpeg-release-amd64-static.tar.xz"},
			Format:          FormatTarXz,
			TranscoderEntry: "ffmpeg",
		}, nil
	case "windows":
		return Platform{
			OS:              goos,
			Downloader:      Asset{URL: WindowsDownloaderURL, FileName: "yt-dlp.exe"},
			Archive:         Asset{URL: WindowsTranscoderURL, FileName: "ffmpeg-git-essentials.7z"},
			Format:          Format7z,
			TranscoderEntry: "ffmpeg.exe",
		}, nil
	case "darwin":
		return Platform{
			OS:              goos,
			Downloader:      Asset{URL: DarwinDownloaderURL, FileName: "yt-dlp"},
			Archive:         Asset{URL: DarwinTranscoderURL, FileName: "ffmpeg-macos.zip"},
			Format:          FormatZip,
			TranscoderEntry: "ffmpeg",
		}, nil
	default:
		return Platform{}, fmt.Errorf("no release assets for platform %s", goos)
	}
}

// WithOverrides replaces the asset URLs when the overrides are non-empty.
func (p Platform) WithOverrides(downloaderURL, transcoderURL string) Platform {
	if downloaderURL != "" {
		p.Downloader.URL = downloaderURL
	}
	if transcoderURL != "" {
		p.Archive.URL = transcoderURL
	}
	return p
}

// Paths resolves the tool locations inside dir. The folder is made
// absolute, and symlinks are resolved when it already exists.
func (p Platform) Paths(dir string) (Paths, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve libs dir %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if !os.IsNotExist(err) {
		return Paths{}, fmt.Errorf("resolve libs dir %s: %w", dir, err)
	}

	return Paths{
		Dir:        abs,
		Downloader: filepath.Join(abs, p.Downloader.FileName),
		Transcoder: filepath.Join(abs, p.TranscoderEntry),
	}, nil
}
