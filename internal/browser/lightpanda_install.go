package browser

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ahrdadan/uicheck/internal/fetch"
)

const (
	// LightpandaDownloadURL points at the nightly linux build.
	LightpandaDownloadURL = "https://github.com/lightpanda-io/browser/releases/download/nightly/lightpanda-x86_64-linux"

	lightpandaBinary = "lightpanda-x86_64-linux"
)

// lightpandaCandidates lists where an installed binary may live: dir first,
// then beside the running executable.
func lightpandaCandidates(dir string) []string {
	dirs := []string{dir}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		dirs = append(dirs, base, filepath.Join(base, "browser"))
	}

	var out []string
	for _, d := range dirs {
		out = append(out, filepath.Join(d, lightpandaBinary), filepath.Join(d, "lightpanda"))
	}
	return out
}

// EnsureLightpandaBinary returns the path of a usable Lightpanda binary,
// downloading it into dir when none is installed and autoDL is set.
func EnsureLightpandaBinary(ctx context.Context, dir string, autoDL bool) (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("Lightpanda browser only supports Linux, current OS: %s", runtime.GOOS)
	}

	for _, candidate := range lightpandaCandidates(dir) {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := markExecutable(candidate, info.Mode()); err != nil {
			log.Printf("Warning: %v", err)
		}
		log.Printf("Using Lightpanda at %s", candidate)
		return candidate, nil
	}

	if !autoDL {
		return "", fmt.Errorf("lightpanda binary not found in %s and auto-download is disabled", dir)
	}

	dest := filepath.Join(dir, lightpandaBinary)
	err := fetch.File(ctx, LightpandaDownloadURL, dest, fetch.Options{
		Mode:     0755,
		Label:    "Lightpanda",
		Progress: fetch.StderrIfTerminal(),
	})
	if err != nil {
		return "", err
	}
	log.Printf("Lightpanda installed at %s", dest)
	return dest, nil
}

func markExecutable(path string, mode os.FileMode) error {
	if mode&0111 != 0 {
		return nil
	}
	if err := os.Chmod(path, mode|0755); err != nil {
		return fmt.Errorf("cannot make %s executable: %w", path, err)
	}
	return nil
}
