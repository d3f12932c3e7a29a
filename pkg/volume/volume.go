// Package volume creates and memoizes per-VM virtual disk images. The
// actual image creation is delegated to the emulator itself via a scripted
// IMGMAKE session, since DOSBox-X is the authority on the on-disk geometry
// the guests expect.
package volume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/retrolab/retrolab/pkg/emulator"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// DiskName is the backing file name, one per VM directory.
	DiskName = "hdd.img"

	// TranscriptName captures the most recent emulator session for a VM.
	TranscriptName = "last-dosbox-x.log"

	// fat16MaxMB is the inclusive upper bound for the legacy 16-bit file
	// allocation table. Win95 cannot install onto FAT32 below this size
	// and later guests cannot use FAT16 above it, so both the synthesizer
	// and the guest installers depend on this exact threshold.
	fat16MaxMB = 2048
)

// Symbolic size templates accepted in place of a literal megabyte count.
const (
	SizeSmallMB  = 2048
	SizeMediumMB = 4096
	SizeLargeMB  = 8192
)

var (
	// ErrDirectoryNotWritable means the write probe on the VM directory
	// failed before image creation was attempted.
	ErrDirectoryNotWritable = errors.Base("vm directory is not writable")

	// ErrVolumeCreationFailed means the emulator session exited without
	// producing the expected image file.
	ErrVolumeCreationFailed = errors.Base("volume creation failed")
)

// NormalizeSizeMB resolves a size specification to a megabyte count. A
// literal positive integer is used verbatim, the symbolic templates map to
// fixed values, and an empty spec falls back to def. An unrecognized
// symbolic template leniently maps to the medium value; that masks typos,
// so it is logged loudly.
func NormalizeSizeMB(ctx context.Context, spec string, def int) int {
	if spec == "" {
		return def
	}
	if n, err := strconv.Atoi(spec); err == nil && n > 0 {
		return n
	}
	switch spec {
	case "small":
		return SizeSmallMB
	case "medium":
		return SizeMediumMB
	case "large":
		return SizeLargeMB
	default:
		zerolog.Ctx(ctx).Warn().
			Str("size", spec).
			Int("fallback_mb", SizeMediumMB).
			Msg("Unrecognized size template, falling back to medium")
		return SizeMediumMB
	}
}

// FilesystemFor selects the file allocation table width for a disk size.
// The threshold is inclusive on the legacy side: 2048 MB is still FAT16.
func FilesystemFor(sizeMB int) int {
	if sizeMB <= fat16MaxMB {
		return 16
	}
	return 32
}

// Manager creates virtual volumes through an emulator runner.
type Manager struct {
	Runner emulator.Runner
}

func NewManager(runner emulator.Runner) *Manager {
	return &Manager{Runner: runner}
}

// EnsureVolume guarantees that vmDir contains the VM's backing image at the
// given size. Creation is idempotent: an existing image is returned
// untouched, whatever its size, because recreating it would discard guest
// data and costs a full emulator session besides.
func (m *Manager) EnsureVolume(ctx context.Context, vmDir string, sizeMB int) (string, error) {
	logger := zerolog.Ctx(ctx)

	diskPath := filepath.Join(vmDir, DiskName)
	if _, err := os.Stat(diskPath); err == nil {
		logger.Debug().Str("disk", diskPath).Msg("Volume already exists")
		return diskPath, nil
	}

	if err := probeWritable(vmDir); err != nil {
		return "", err
	}

	fat := FilesystemFor(sizeMB)
	transcript := filepath.Join(vmDir, TranscriptName)

	logger.Info().
		Str("disk", diskPath).
		Int("size_mb", sizeMB).
		Int("fat", fat).
		Msg("Creating volume")

	args := []string{
		"-silent",
		"-c", fmt.Sprintf(`IMGMAKE "%s" -t hd -size %d -fat %d`, diskPath, sizeMB, fat),
		"-c", "EXIT",
	}
	if err := m.Runner.Run(ctx, transcript, args...); err != nil {
		return "", errors.Errorf("%w: %s: %w", ErrVolumeCreationFailed, diskPath, err)
	}

	// The emulator reports IMGMAKE failures on its own stream, not via the
	// exit status, so the image file is the only trustworthy signal.
	if _, err := os.Stat(diskPath); err != nil {
		return "", errors.Errorf("%w: %s not present after emulator session, see %s",
			ErrVolumeCreationFailed, diskPath, transcript)
	}

	logger.Info().Str("disk", diskPath).Msg("Volume created")
	return diskPath, nil
}

// probeWritable verifies the directory accepts writes with a scoped
// create-and-delete probe file.
func probeWritable(dir string) error {
	probe := filepath.Join(dir, ".retrolab-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return errors.Errorf("%w: %s: %w", ErrDirectoryNotWritable, dir, err)
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		return errors.Errorf("%w: removing probe file in %s: %w", ErrDirectoryNotWritable, dir, err)
	}
	return nil
}
