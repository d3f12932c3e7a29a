// Package osprofile maps supported guest OS identifiers to the fixed
// hardware profile DOSBox-X needs to install and run them.
package osprofile

import (
	"gitlab.com/tozd/go/errors"
)

// OSKey identifies a supported legacy Windows guest.
type OSKey string

const (
	Win95   OSKey = "win95"
	Win98   OSKey = "win98"
	WinNT4  OSKey = "winnt4"
	Win2000 OSKey = "win2000"
)

// Keys lists every supported guest identifier.
func Keys() []OSKey {
	return []OSKey{Win95, Win98, WinNT4, Win2000}
}

// Family determines the install-mode boot strategy for a guest.
type Family int

const (
	// LegacyCopyInstall guests (Win95/Win98) have no CD-native boot path;
	// unless the medium happens to be self-booting, the installer tree is
	// copied onto the volume and invoked from there.
	LegacyCopyInstall Family = iota
	// FloppyBoot guests boot their installer from an auxiliary floppy image.
	FloppyBoot
	// CDNativeBoot guests boot the installer straight off the medium.
	CDNativeBoot
)

func (f Family) String() string {
	switch f {
	case LegacyCopyInstall:
		return "legacy-copy-install"
	case FloppyBoot:
		return "floppy-boot"
	case CDNativeBoot:
		return "cd-native-boot"
	default:
		return "unknown"
	}
}

// Profile is the immutable hardware/firmware description for one guest OS.
type Profile struct {
	Key     OSKey
	Title   string
	Family  Family
	Machine string // DOSBox-X machine type
	MemMB   int
	CPUType string
	DOSVer  string // reported DOS version for the [dos] section

	// Execution core per lifecycle phase. Installers tend to trip the
	// dynamic recompiler, so installs default to the normal core.
	InstallCore string
	RunCore     string

	Voodoo bool // 3dfx passthrough section enabled

	DefaultDiskMB int

	// CanonicalMedium is the filename the install medium is expected
	// under in the isos directory.
	CanonicalMedium string

	// SetupDir/SetupProgram locate the guest installer on the medium for
	// the copy-install path. Empty for families that never copy.
	SetupDir     string
	SetupProgram string

	// BootFloppy is the canonical boot floppy image filename, set only
	// for the FloppyBoot family.
	BootFloppy string
}

// ErrUnknownOS is returned for identifiers outside the supported set.
var ErrUnknownOS = errors.Base("unknown guest OS identifier")

var profiles = map[OSKey]Profile{
	Win95: {
		Key:             Win95,
		Title:           "Windows 95",
		Family:          LegacyCopyInstall,
		Machine:         "svga_s3",
		MemMB:           32,
		CPUType:         "pentium",
		DOSVer:          "7.0",
		InstallCore:     "normal",
		RunCore:         "dynamic_x86",
		Voodoo:          false,
		DefaultDiskMB:   2048,
		CanonicalMedium: "Win95.iso",
		SetupDir:        "WIN95",
		SetupProgram:    "SETUP.EXE",
	},
	Win98: {
		Key:             Win98,
		Title:           "Windows 98 SE",
		Family:          LegacyCopyInstall,
		Machine:         "svga_s3virge",
		MemMB:           64,
		CPUType:         "pentium_mmx",
		DOSVer:          "7.1",
		InstallCore:     "normal",
		RunCore:         "dynamic_x86",
		Voodoo:          true,
		DefaultDiskMB:   4096,
		CanonicalMedium: "Win98.iso",
		SetupDir:        "WIN98",
		SetupProgram:    "SETUP.EXE",
	},
	WinNT4: {
		Key:             WinNT4,
		Title:           "Windows NT 4.0",
		Family:          FloppyBoot,
		Machine:         "svga_s3",
		MemMB:           64,
		CPUType:         "pentium",
		DOSVer:          "7.1",
		InstallCore:     "normal",
		RunCore:         "normal",
		Voodoo:          false,
		DefaultDiskMB:   4096,
		CanonicalMedium: "WinNT4.iso",
		BootFloppy:      "WinNT4-boot.img",
	},
	Win2000: {
		Key:             Win2000,
		Title:           "Windows 2000",
		Family:          CDNativeBoot,
		Machine:         "svga_s3trio64",
		MemMB:           128,
		CPUType:         "pentium_pro",
		DOSVer:          "7.1",
		InstallCore:     "normal",
		RunCore:         "normal",
		Voodoo:          true,
		DefaultDiskMB:   8192,
		CanonicalMedium: "Win2000.iso",
	},
}

// Resolve returns the profile for key. The key set is closed; anything
// else is a configuration error and fails immediately.
func Resolve(key OSKey) (Profile, error) {
	p, ok := profiles[key]
	if !ok {
		return Profile{}, errors.Errorf("%w: %q", ErrUnknownOS, key)
	}
	return p, nil
}
