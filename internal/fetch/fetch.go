// Package fetch downloads release binaries to disk.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Options tune a download.
type Options struct {
	Mode   os.FileMode
	Label  string
	Client *http.Client
	// Progress receives a byte progress bar; nil downloads silently.
	Progress io.Writer
}

// StderrIfTerminal returns os.Stderr when it is a terminal, nil otherwise,
// so progress bars stay out of log files.
func StderrIfTerminal() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return os.Stderr
	}
	return nil
}

// File downloads url to dest. The body lands in dest+".part" first and is
// renamed into place, so dest never holds a partial file.
func File(ctx context.Context, url, dest string, opts Options) error {
	if opts.Mode == 0 {
		opts.Mode = 0644
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	log.Printf("Downloading %s from %s", opts.Label, url)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", opts.Label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: HTTP %d", opts.Label, resp.StatusCode)
	}

	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, opts.Mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}

	var w io.Writer = out
	if opts.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(opts.Label),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(out, bar)
	}

	_, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()
	if err := firstErr(copyErr, closeErr); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to save %s: %w", opts.Label, err)
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to install %s: %w", opts.Label, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
