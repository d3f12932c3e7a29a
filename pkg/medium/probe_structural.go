package medium

import (
	"bytes"
	"context"
	"os"

	"github.com/kdomanski/iso9660"
	"gitlab.com/tozd/go/errors"
)

const (
	sectorSize = 2048

	// Volume descriptors start at sector 16 (ECMA-119).
	descriptorStartSector = 16

	descriptorTypeBootRecord = 0
	descriptorTypeTerminator = 255
)

var elToritoID = []byte("EL TORITO SPECIFICATION")

// StructuralProbe classifies a medium by its El Torito boot record instead
// of launching the emulator. Cheaper than EmulatorProbe but deliberately
// conservative: anything it cannot read with confidence is Inconclusive and
// left to the behavioral probe.
type StructuralProbe struct{}

func NewStructuralProbe() *StructuralProbe {
	return &StructuralProbe{}
}

func (p *StructuralProbe) Classify(ctx context.Context, path string) (Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return Inconclusive, errors.Errorf("opening medium %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, sectorSize)
	for sector := descriptorStartSector; ; sector++ {
		// A well-formed image terminates the descriptor set explicitly, so
		// any read failure (EOF included) means we cannot classify.
		if _, err := f.ReadAt(buf, int64(sector)*sectorSize); err != nil {
			return Inconclusive, nil
		}

		if string(buf[1:6]) != "CD001" {
			// Not ISO9660 where a descriptor should be.
			return Inconclusive, nil
		}

		switch buf[0] {
		case descriptorTypeBootRecord:
			if bytes.Contains(buf[7:39], elToritoID) {
				return Bootable, nil
			}
		case descriptorTypeTerminator:
			return NotBootable, nil
		}
	}
}

// validateISO is the best-effort check used when attaching media.
func validateISO(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := iso9660.OpenImage(f); err != nil {
		return errors.Errorf("parsing %s as ISO9660: %w", path, err)
	}
	return nil
}
