package tools

import (
	"fmt"
	"runtime"
)

const (
	extractorReleaseBase  = "https://github.com/yt-dlp/yt-dlp/releases/download"
	transcoderReleaseBase = "https://github.com/yt-dlp/FFmpeg-Builds/releases/download/latest"
)

type archiveFormat string

const (
	formatZip   archiveFormat = "zip"
	formatTarXz archiveFormat = "tar.xz"
)

// executableName appends .exe on Windows.
func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}

	return base
}

// extractorAssetURL picks the extractor release asset for the running
// platform at the pinned version.
func extractorAssetURL(version string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("%s/%s/yt-dlp.exe", extractorReleaseBase, version)
	case "darwin":
		return fmt.Sprintf("%s/%s/yt-dlp_macos", extractorReleaseBase, version)
	default:
		return fmt.Sprintf("%s/%s/yt-dlp", extractorReleaseBase, version)
	}
}

// transcoderAssetURL picks the transcoder archive for the running
// os/arch pair. Windows and macOS ship zips, Linux tar.xz.
func transcoderAssetURL() (string, archiveFormat, error) {
	switch runtime.GOOS {
	case "windows":
		return transcoderReleaseBase + "/ffmpeg-master-latest-win64-gpl.zip", formatZip, nil
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return transcoderReleaseBase + "/ffmpeg-master-latest-macos-arm64-gpl.zip", formatZip, nil
		}

		return transcoderReleaseBase + "/ffmpeg-master-latest-macos-amd64-gpl.zip", formatZip, nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return transcoderReleaseBase + "/ffmpeg-master-latest-linuxarm64-gpl.tar.xz", formatTarXz, nil
		}

		return transcoderReleaseBase + "/ffmpeg-master-latest-linux64-gpl.tar.xz", formatTarXz, nil
	default:
		return "", "", fmt.Errorf("no transcoder build available for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}
