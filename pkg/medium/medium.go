// Package medium resolves installation media and classifies whether a
// medium can boot on its own. Classification is behavioral: the emulator is
// the authority on what it will boot, so the primary probe just asks it.
package medium

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Classification is the tri-state outcome of a bootability probe.
type Classification int

const (
	Inconclusive Classification = iota
	Bootable
	NotBootable
)

func (c Classification) String() string {
	switch c {
	case Bootable:
		return "bootable"
	case NotBootable:
		return "not-bootable"
	default:
		return "inconclusive"
	}
}

// NoBootRecordSignature is the emulator's message when it cannot boot an
// optical medium. Its presence in a probe transcript classifies the medium
// as not self-booting.
const NoBootRecordSignature = "No boot record found on the optical medium"

// Probe classifies the bootability of an optical image.
type Probe interface {
	Classify(ctx context.Context, path string) (Classification, error)
}

var (
	// ErrMediumNotFound means the install medium is neither at its
	// canonical location nor fetchable from a configured remote source.
	ErrMediumNotFound = errors.Base("install medium not found")

	// ErrBootFloppyNotFound means the guest's auxiliary boot floppy image
	// is absent from the boot directory.
	ErrBootFloppyNotFound = errors.Base("boot floppy image not found")
)

// Resolve locates the canonical install medium. When the local copy is
// absent and a remote source is configured for the canonical name, the
// medium is fetched into place; otherwise the error names the exact path
// the operator must populate.
func Resolve(ctx context.Context, isosDir string, mediaURLs map[string]string, canonicalName string) (string, error) {
	logger := zerolog.Ctx(ctx)

	path := filepath.Join(isosDir, canonicalName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	url, ok := mediaURLs[canonicalName]
	if !ok {
		return "", errors.Errorf("%w: expected at %s (or set a remote source for %q)",
			ErrMediumNotFound, path, canonicalName)
	}

	logger.Info().Str("name", canonicalName).Str("url", url).Msg("Fetching install medium")
	if err := download(ctx, url, path); err != nil {
		return "", errors.Errorf("fetching %s from %s: %w", canonicalName, url, err)
	}
	return path, nil
}

// ResolveFloppy locates a guest's auxiliary boot floppy image.
func ResolveFloppy(bootDir, name string) (string, error) {
	path := filepath.Join(bootDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Errorf("%w: expected at %s", ErrBootFloppyNotFound, path)
	}
	return path, nil
}

// download fetches url into path through a temporary file, so an
// interrupted fetch never leaves a half-written medium at the canonical
// location.
func download(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Errorf("creating isos directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Errorf("building request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Errorf("downloading medium: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status code downloading medium: %d", resp.StatusCode)
	}

	tmpPath := fmt.Sprintf("%s.download", path)
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Errorf("creating temporary file: %w", err)
	}

	_, err = io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("saving medium: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("renaming medium file: %w", err)
	}
	return nil
}

// Attach copies a local medium into the canonical location for a guest.
// The copy is validated as ISO9660 beforehand, but only best-effort: odd
// hybrid images that the reader cannot parse are still attached, with a
// warning.
func Attach(ctx context.Context, isosDir, canonicalName, srcPath string) (string, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := os.Stat(srcPath); err != nil {
		return "", errors.Errorf("medium source not found: %s: %w", srcPath, err)
	}

	if err := validateISO(srcPath); err != nil {
		logger.Warn().Err(err).Str("path", srcPath).
			Msg("Medium does not parse as ISO9660, attaching anyway")
	}

	if err := os.MkdirAll(isosDir, 0755); err != nil {
		return "", errors.Errorf("creating isos directory: %w", err)
	}

	dst := filepath.Join(isosDir, canonicalName)
	if err := copyFile(srcPath, dst); err != nil {
		return "", errors.Errorf("attaching medium: %w", err)
	}

	logger.Info().Str("src", srcPath).Str("dst", dst).Msg("Medium attached")
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmpPath := dst + ".attach"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Errorf("creating %s: %w", tmpPath, err)
	}

	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("copying to %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("renaming to %s: %w", dst, err)
	}
	return nil
}
