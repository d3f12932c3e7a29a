package medium

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/retrolab/retrolab/pkg/emulator"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// EmulatorProbe classifies a medium by asking the emulator to boot it in a
// disposable scratch environment and reading the transcript. File headers
// alone misclassify enough real-world media that the consumer of the boot
// record stays the authority.
type EmulatorProbe struct {
	Runner emulator.Runner
}

func NewEmulatorProbe(runner emulator.Runner) *EmulatorProbe {
	return &EmulatorProbe{Runner: runner}
}

// Classify mounts path as an optical device in a scratch VM, attempts to
// boot it, and scans the session transcript for the no-boot-record
// signature. Scratch state is discarded afterwards; callers wanting to
// avoid repeat emulator launches memoize the result themselves.
func (p *EmulatorProbe) Classify(ctx context.Context, path string) (Classification, error) {
	logger := zerolog.Ctx(ctx)

	scratch := filepath.Join(os.TempDir(), "retrolab-probe-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return Inconclusive, errors.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	transcript := filepath.Join(scratch, "last-dosbox-x.log")
	args := []string{
		"-silent",
		"-c", fmt.Sprintf(`IMGMOUNT D "%s" -t iso`, path),
		"-c", "BOOT D:",
		"-c", "EXIT",
	}

	// A medium that refuses to boot often makes the session exit nonzero;
	// the transcript is still the signal, so the run error only matters
	// when there is nothing to scan.
	runErr := p.Runner.Run(ctx, transcript, args...)

	found, scanErr := emulator.ScanTranscript(transcript, NoBootRecordSignature)
	if scanErr != nil {
		if runErr != nil {
			return Inconclusive, errors.Errorf("probe session failed: %w", runErr)
		}
		return Inconclusive, scanErr
	}

	c := Bootable
	if found {
		c = NotBootable
	}
	logger.Debug().Str("medium", path).Stringer("classification", c).Msg("Probed medium")
	return c, nil
}
