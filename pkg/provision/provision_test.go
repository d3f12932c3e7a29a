package provision_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retrolab/retrolab/pkg/config"
	"github.com/retrolab/retrolab/pkg/medium"
	"github.com/retrolab/retrolab/pkg/provision"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

// fakeRunner simulates DOSBox-X: scripted IMGMAKE sessions create the named
// image file, -conf handoffs are recorded.
type fakeRunner struct {
	imgmakeCalls int
	confRuns     []string
	lastImgmake  string
}

func (f *fakeRunner) Run(ctx context.Context, transcriptPath string, args ...string) error {
	if err := os.WriteFile(transcriptPath, []byte("session\n=== dosbox-x exit status 0 ===\n"), 0o644); err != nil {
		return err
	}
	for i, arg := range args {
		if strings.HasPrefix(arg, "IMGMAKE") {
			f.imgmakeCalls++
			f.lastImgmake = arg
			start := strings.Index(arg, `"`)
			end := strings.LastIndex(arg, `"`)
			return os.WriteFile(arg[start+1:end], []byte("fresh disk"), 0o644)
		}
		if arg == "-conf" {
			f.confRuns = append(f.confRuns, args[i+1])
			return nil
		}
	}
	return nil
}

func (f *fakeRunner) Binary() string { return "/usr/bin/dosbox-x" }

// fixedProbe returns a canned classification and counts invocations.
type fixedProbe struct {
	result medium.Classification
	calls  int
}

func (p *fixedProbe) Classify(ctx context.Context, path string) (medium.Classification, error) {
	p.calls++
	return p.result, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	return cfg
}

func placeMedium(t *testing.T, cfg config.Config, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.ISOsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ISOsDir(), name), []byte("iso"), 0o644))
}

func TestNewWin95Defaults(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	o := provision.NewOrchestrator(cfg, runner, &fixedProbe{})

	require.NoError(t, o.New(context.Background(), "win95", ""))

	// 2048 MB legacy-variant volume.
	require.Contains(t, runner.lastImgmake, "-size 2048")
	require.Contains(t, runner.lastImgmake, "-fat 16")
	require.FileExists(t, filepath.Join(cfg.VMDir("win95"), "hdd.img"))

	// Run artifact boots from the volume with placeholder removable mounts.
	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win95"), "win95-run.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "BOOT C:")
	require.Contains(t, string(text), "IMGMOUNT A -t floppy")
	require.Contains(t, string(text), "IMGMOUNT D -t iso")

	// Launcher regenerated alongside the artifact.
	stub, err := os.ReadFile(filepath.Join(cfg.BinDir(), "win95-start"))
	require.NoError(t, err)
	require.Contains(t, string(stub), "#!/bin/sh")
	require.Contains(t, string(stub), "win95-run.conf")
}

func TestNewHonorsSizeArgument(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	o := provision.NewOrchestrator(cfg, runner, &fixedProbe{})

	require.NoError(t, o.New(context.Background(), "win95", "large"))
	require.Contains(t, runner.lastImgmake, "-size 8192")
	require.Contains(t, runner.lastImgmake, "-fat 32")
}

func TestNewUnknownOS(t *testing.T) {
	o := provision.NewOrchestrator(testConfig(t), &fakeRunner{}, &fixedProbe{})
	err := o.New(context.Background(), "win31", "")
	require.Error(t, err)
}

func TestInstallWin98NonBootable(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	o := provision.NewOrchestrator(cfg, runner, &fixedProbe{result: medium.NotBootable})
	placeMedium(t, cfg, "Win98.iso")

	require.NoError(t, o.Install(context.Background(), "win98"))

	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win98"), "win98-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), `IMGMOUNT D "`+filepath.Join(cfg.ISOsDir(), "Win98.iso"))
	require.Contains(t, string(text), `XCOPY D:\WIN98 C:\WIN98 /I /E`)

	// Both launchers exist after install.
	require.FileExists(t, filepath.Join(cfg.BinDir(), "win98-install"))
	require.FileExists(t, filepath.Join(cfg.BinDir(), "win98-start"))

	// Control was handed to the emulator with the install config.
	require.Equal(t, []string{filepath.Join(cfg.VMDir("win98"), "win98-install.conf")}, runner.confRuns)
}

func TestInstallWin98Bootable(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{result: medium.Bootable})
	placeMedium(t, cfg, "Win98.iso")

	require.NoError(t, o.Install(context.Background(), "win98"))

	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win98"), "win98-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "BOOT D:")
	require.NotContains(t, string(text), "XCOPY")
}

func TestInstallMissingMediumNamesExpectedPath(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{})

	err := o.Install(context.Background(), "win95")
	require.Error(t, err)
	require.True(t, errors.Is(err, medium.ErrMediumNotFound))
	require.Contains(t, err.Error(), filepath.Join(cfg.ISOsDir(), "Win95.iso"))
}

func TestInstallNT4RequiresBootFloppy(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{})
	placeMedium(t, cfg, "WinNT4.iso")

	err := o.Install(context.Background(), "winnt4")
	require.Error(t, err)
	require.True(t, errors.Is(err, medium.ErrBootFloppyNotFound))

	require.NoError(t, os.MkdirAll(cfg.BootDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BootDir(), "WinNT4-boot.img"), []byte("floppy"), 0o644))

	require.NoError(t, o.Install(context.Background(), "winnt4"))
	text, err := os.ReadFile(filepath.Join(cfg.VMDir("winnt4"), "winnt4-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "BOOT A:")
}

func TestInstallWin2000BootsFromCD(t *testing.T) {
	cfg := testConfig(t)
	probe := &fixedProbe{result: medium.NotBootable}
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, probe)
	placeMedium(t, cfg, "Win2000.iso")

	require.NoError(t, o.Install(context.Background(), "win2000"))

	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win2000"), "win2000-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "BOOT D:")

	// CD-native guests never need the probe.
	require.Zero(t, probe.calls)
}

func TestReinstallPreservesVolume(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	o := provision.NewOrchestrator(cfg, runner, &fixedProbe{result: medium.NotBootable})
	placeMedium(t, cfg, "Win98.iso")

	require.NoError(t, o.Install(context.Background(), "win98"))

	diskPath := filepath.Join(cfg.VMDir("win98"), "hdd.img")
	require.NoError(t, os.WriteFile(diskPath, []byte("guest installed data"), 0o644))

	require.NoError(t, o.Install(context.Background(), "win98"))
	require.Equal(t, 1, runner.imgmakeCalls)

	data, err := os.ReadFile(diskPath)
	require.NoError(t, err)
	require.Equal(t, "guest installed data", string(data))
}

func TestBootabilityMemoizedPerRun(t *testing.T) {
	cfg := testConfig(t)
	probe := &fixedProbe{result: medium.NotBootable}
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, probe)
	placeMedium(t, cfg, "Win95.iso")

	require.NoError(t, o.Install(context.Background(), "win95"))
	require.NoError(t, o.Install(context.Background(), "win95"))
	require.Equal(t, 1, probe.calls)
}

func TestInconclusiveDefaultsToCopyInstall(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{result: medium.Inconclusive})
	placeMedium(t, cfg, "Win95.iso")

	require.NoError(t, o.Install(context.Background(), "win95"))
	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win95"), "win95-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "XCOPY")
}

func TestStartRequiresProvisioning(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	o := provision.NewOrchestrator(cfg, runner, &fixedProbe{})

	err := o.Start(context.Background(), "win95")
	require.Error(t, err)
	require.True(t, errors.Is(err, provision.ErrNotProvisioned))

	require.NoError(t, o.New(context.Background(), "win95", ""))
	require.NoError(t, o.Start(context.Background(), "win95"))
	require.Equal(t, []string{filepath.Join(cfg.VMDir("win95"), "win95-run.conf")}, runner.confRuns)
}

func TestRegeneratedArtifactsAreByteIdentical(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{})

	require.NoError(t, o.New(context.Background(), "win95", ""))
	first, err := os.ReadFile(filepath.Join(cfg.VMDir("win95"), "win95-run.conf"))
	require.NoError(t, err)

	require.NoError(t, o.New(context.Background(), "win95", ""))
	second, err := os.ReadFile(filepath.Join(cfg.VMDir("win95"), "win95-run.conf"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAttachMedium(t *testing.T) {
	cfg := testConfig(t)
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{})

	src := filepath.Join(t.TempDir(), "rip.iso")
	require.NoError(t, os.WriteFile(src, []byte("iso"), 0o644))

	dst, err := o.AttachMedium(context.Background(), "win95", src)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cfg.ISOsDir(), "Win95.iso"), dst)
}

func TestManualCopyModeRespectedInInstallArtifact(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoCopy = false
	o := provision.NewOrchestrator(cfg, &fakeRunner{}, &fixedProbe{result: medium.NotBootable})
	placeMedium(t, cfg, "Win95.iso")

	require.NoError(t, o.Install(context.Background(), "win95"))
	text, err := os.ReadFile(filepath.Join(cfg.VMDir("win95"), "win95-install.conf"))
	require.NoError(t, err)
	require.Contains(t, string(text), "PAUSE")
	// Every copy step is echoed instructions, never an executed command.
	for _, line := range strings.Split(string(text), "\n") {
		require.False(t, strings.HasPrefix(line, "XCOPY"), "unexpected executed copy line %q", line)
	}
}
