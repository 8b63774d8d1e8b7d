package nats

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/ahrdadan/uicheck/internal/fetch"
)

// NATSVersion is the nats-server release fetched on demand.
const NATSVersion = "2.10.24"

var (
	supportedOS   = map[string]bool{"linux": true, "darwin": true, "windows": true}
	supportedArch = map[string]bool{"amd64": true, "arm64": true}
)

// GetDownloadURL returns the release archive URL for goos/goarch.
func GetDownloadURL(goos, goarch string) (string, error) {
	if !supportedOS[goos] {
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
	if !supportedArch[goarch] {
		return "", fmt.Errorf("unsupported architecture: %s", goarch)
	}
	name := fmt.Sprintf("nats-server-v%s-%s-%s.zip", NATSVersion, goos, goarch)
	return "https://github.com/nats-io/nats-server/releases/download/v" + NATSVersion + "/" + name, nil
}

// EnsureNATSBinary returns binPath, installing the release for this
// platform there first when it is missing and autoDL is set.
func EnsureNATSBinary(ctx context.Context, binPath string, autoDL bool) (string, error) {
	if _, err := os.Stat(binPath); err == nil {
		return binPath, nil
	}
	if !autoDL {
		return "", fmt.Errorf("NATS server binary not found at %s and auto-download is disabled", binPath)
	}

	archiveURL, err := GetDownloadURL(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "nats-server-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archive := filepath.Join(tmpDir, "release.zip")
	err = fetch.File(ctx, archiveURL, archive, fetch.Options{
		Label:    "NATS server",
		Progress: fetch.StderrIfTerminal(),
	})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", binPath, err)
	}
	if err := extractNATSBinary(archive, binPath, binaryName(runtime.GOOS)); err != nil {
		return "", fmt.Errorf("failed to extract NATS server: %w", err)
	}

	log.Printf("NATS server installed at %s", binPath)
	return binPath, nil
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "nats-server.exe"
	}
	return "nats-server"
}

// extractNATSBinary writes the archive entry called name to destPath.
func extractNATSBinary(zipPath, destPath, name string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	var entry *zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && path.Base(f.Name) == name {
			entry = f
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%s not found in zip", name)
	}

	part := destPath + ".part"
	if err := writeEntry(entry, part); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, destPath)
}

func writeEntry(f *zip.File, dest string) (err error) {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in zip: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, src)
	return err
}
