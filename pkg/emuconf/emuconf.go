// Package emuconf synthesizes DOSBox-X configuration artifacts. The output
// grammar (sectioned key = value groups plus an [autoexec] command block)
// belongs to the emulator and is reproduced exactly; retrolab only decides
// what goes in it.
//
// Synthesis is deterministic: identical inputs produce byte-identical text.
// The orchestrator leans on that to make re-provisioning safe.
package emuconf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/retrolab/retrolab/pkg/osprofile"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gitlab.com/tozd/go/errors"
)

// Mode is the lifecycle phase a configuration targets.
type Mode int

const (
	Install Mode = iota
	Run
)

func (m Mode) String() string {
	if m == Install {
		return "install"
	}
	return "run"
}

var (
	// ErrMissingMedium means install-mode synthesis was attempted without
	// a resolved install medium.
	ErrMissingMedium = errors.Base("install mode requires a medium")

	// ErrMissingBootFloppy means a floppy-boot guest was asked to install
	// without its boot floppy image.
	ErrMissingBootFloppy = errors.Base("install mode requires a boot floppy for this guest")
)

// Input carries everything synthesis depends on. No ambient state is read;
// byte-identical Inputs yield byte-identical artifacts.
type Input struct {
	Profile    osprofile.Profile
	Mode       Mode
	VolumePath string

	// MediumPath is required for install mode, ignored for run mode.
	MediumPath string

	// FloppyPath is required for install mode on FloppyBoot guests.
	FloppyPath string

	// Bootable is the medium's bootability classification. Only consulted
	// for LegacyCopyInstall guests; false is the safe default when the
	// classification is unknown.
	Bootable bool

	// AutoCopy selects copy-then-invoke over printed manual instructions
	// on the non-bootable legacy path.
	AutoCopy bool

	// InstallCore/RunCore override the profile's execution core when set.
	InstallCore string
	RunCore     string

	// NetworkBackend selects the NE2000 back-end.
	NetworkBackend string
}

func (in Input) core() string {
	if in.Mode == Install {
		if in.InstallCore != "" {
			return in.InstallCore
		}
		return in.Profile.InstallCore
	}
	if in.RunCore != "" {
		return in.RunCore
	}
	return in.Profile.RunCore
}

// Synthesize produces the full configuration artifact text for one
// (guest, mode) pair.
func Synthesize(in Input) (string, error) {
	if in.VolumePath == "" {
		return "", errors.New("volume path is required")
	}

	autoexec, err := autoexecLines(in)
	if err != nil {
		return "", err
	}

	sections := orderedmap.New[string, *orderedmap.OrderedMap[string, string]]()

	addSection := func(name string, pairs ...[2]string) {
		section := orderedmap.New[string, string]()
		for _, p := range pairs {
			section.Set(p[0], p[1])
		}
		sections.Set(name, section)
	}

	addSection("sdl",
		[2]string{"autolock", "true"},
	)
	addSection("dosbox",
		[2]string{"title", in.Profile.Title},
		[2]string{"machine", in.Profile.Machine},
		[2]string{"memsize", strconv.Itoa(in.Profile.MemMB)},
	)
	addSection("dos",
		[2]string{"ver", in.Profile.DOSVer},
	)
	addSection("cpu",
		[2]string{"cputype", in.Profile.CPUType},
		[2]string{"core", in.core()},
	)
	addSection("voodoo",
		[2]string{"voodoo", strconv.FormatBool(in.Profile.Voodoo)},
	)
	addSection("ne2000",
		[2]string{"ne2000", "true"},
		[2]string{"backend", in.NetworkBackend},
	)

	var b strings.Builder
	for pair := sections.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(&b, "[%s]\n", pair.Key)
		for kv := pair.Value.Oldest(); kv != nil; kv = kv.Next() {
			fmt.Fprintf(&b, "%s = %s\n", kv.Key, kv.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("[autoexec]\n")
	for _, line := range autoexec {
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// autoexecLines builds the guest-side boot block for the requested mode.
func autoexecLines(in Input) ([]string, error) {
	mountVolume := fmt.Sprintf(`IMGMOUNT C "%s" -t hdd`, in.VolumePath)

	if in.Mode == Run {
		// The empty removable mounts are a stability contract: the guest
		// learned its drive letters during install and must see the same
		// arrangement at every boot, media present or not.
		return []string{
			mountVolume,
			"IMGMOUNT A -t floppy",
			"IMGMOUNT D -t iso",
			"BOOT C:",
		}, nil
	}

	if in.MediumPath == "" {
		return nil, errors.Errorf("%w: %s", ErrMissingMedium, in.Profile.Key)
	}
	mountMedium := fmt.Sprintf(`IMGMOUNT D "%s" -t iso`, in.MediumPath)

	switch in.Profile.Family {
	case osprofile.CDNativeBoot:
		return []string{mountVolume, mountMedium, "BOOT D:"}, nil

	case osprofile.FloppyBoot:
		if in.FloppyPath == "" {
			return nil, errors.Errorf("%w: %s", ErrMissingBootFloppy, in.Profile.Key)
		}
		return []string{
			mountVolume,
			mountMedium,
			fmt.Sprintf(`IMGMOUNT A "%s" -t floppy`, in.FloppyPath),
			"BOOT A:",
		}, nil

	case osprofile.LegacyCopyInstall:
		if in.Bootable {
			return []string{mountVolume, mountMedium, "BOOT D:"}, nil
		}
		return legacyCopyLines(in, mountVolume, mountMedium), nil

	default:
		return nil, errors.Errorf("no install strategy for family %s", in.Profile.Family)
	}
}

// legacyCopyLines handles the non-bootable legacy path: the installer tree
// is copied from the medium onto the volume and invoked from there, either
// automatically or as printed operator instructions.
func legacyCopyLines(in Input, mountVolume, mountMedium string) []string {
	setupDir := in.Profile.SetupDir
	setupSrc := fmt.Sprintf(`D:\%s`, setupDir)
	setupDst := fmt.Sprintf(`C:\%s`, setupDir)
	setupExe := fmt.Sprintf(`%s\%s`, setupSrc, in.Profile.SetupProgram)

	if !in.AutoCopy {
		return []string{
			mountVolume,
			mountMedium,
			"ECHO The install medium is not self-booting.",
			"ECHO Copy the installer onto the volume and run it:",
			fmt.Sprintf("ECHO   XCOPY %s %s /I /E", setupSrc, setupDst),
			fmt.Sprintf(`ECHO   %s\%s`, setupDst, in.Profile.SetupProgram),
			"PAUSE",
		}
	}

	return []string{
		mountVolume,
		mountMedium,
		// Media layouts vary between pressings; a missing installer is
		// reported but the copy still runs.
		fmt.Sprintf("IF NOT EXIST %s ECHO WARNING: installer not found at %s", setupExe, setupExe),
		fmt.Sprintf("XCOPY %s %s /I /E", setupSrc, setupDst),
		"C:",
		fmt.Sprintf(`CD \%s`, setupDir),
		in.Profile.SetupProgram,
	}
}
