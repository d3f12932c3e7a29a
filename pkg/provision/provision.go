// Package provision drives a guest OS through its lifecycle:
// uninitialized, installing, installed/bootable. Each state is externally
// observable through the artifacts it leaves behind (volume, install
// config, run config, launchers), which is what makes every command safe to
// re-run.
//
// One operator, one invocation per VM directory: concurrent invocations
// against the same VM are undefined behavior and deliberately unguarded.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retrolab/retrolab/pkg/config"
	"github.com/retrolab/retrolab/pkg/emuconf"
	"github.com/retrolab/retrolab/pkg/emulator"
	"github.com/retrolab/retrolab/pkg/medium"
	"github.com/retrolab/retrolab/pkg/osprofile"
	"github.com/retrolab/retrolab/pkg/volume"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrNotProvisioned means start was requested before new or install ever
// produced a run configuration for the guest.
var ErrNotProvisioned = errors.Base("vm is not provisioned")

// Orchestrator wires the volume manager, medium probe and synthesizer into
// the provisioning workflow. Construct one per invocation.
type Orchestrator struct {
	cfg     config.Config
	runner  emulator.Runner
	volumes *volume.Manager
	probe   medium.Probe

	// bootability memoizes probe results per medium path for this run
	// only; a probe costs a disposable emulator launch.
	bootability map[string]medium.Classification
}

func NewOrchestrator(cfg config.Config, runner emulator.Runner, probe medium.Probe) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		runner:      runner,
		volumes:     volume.NewManager(runner),
		probe:       probe,
		bootability: map[string]medium.Classification{},
	}
}

// New provisions the volume and steady-state artifacts for a guest. It is
// reachable without any install medium and is idempotent.
func (o *Orchestrator) New(ctx context.Context, osKey string, sizeSpec string) error {
	logger := zerolog.Ctx(ctx)

	profile, err := osprofile.Resolve(osprofile.OSKey(osKey))
	if err != nil {
		return err
	}
	if err := o.ensureDirs(profile); err != nil {
		return err
	}

	sizeMB := volume.NormalizeSizeMB(ctx, sizeSpec, profile.DefaultDiskMB)
	volPath, err := o.volumes.EnsureVolume(ctx, o.cfg.VMDir(osKey), sizeMB)
	if err != nil {
		return err
	}

	if err := o.writeRunArtifacts(profile, volPath); err != nil {
		return err
	}

	logger.Info().Str("os", osKey).Int("size_mb", sizeMB).Msg("VM provisioned")
	return nil
}

// Install provisions everything New does, resolves the install medium (and
// boot floppy where the guest needs one), writes both lifecycle configs,
// and hands control to the emulator with the install config. Whether the
// guest installer succeeds inside the emulator is not observable here.
func (o *Orchestrator) Install(ctx context.Context, osKey string) error {
	logger := zerolog.Ctx(ctx)

	profile, err := osprofile.Resolve(osprofile.OSKey(osKey))
	if err != nil {
		return err
	}
	if err := o.ensureDirs(profile); err != nil {
		return err
	}

	volPath, err := o.volumes.EnsureVolume(ctx, o.cfg.VMDir(osKey), profile.DefaultDiskMB)
	if err != nil {
		return err
	}

	mediumPath, err := medium.Resolve(ctx, o.cfg.ISOsDir(), o.cfg.MediaURLs, profile.CanonicalMedium)
	if err != nil {
		return err
	}

	var floppyPath string
	if profile.Family == osprofile.FloppyBoot {
		floppyPath, err = medium.ResolveFloppy(o.cfg.BootDir(), profile.BootFloppy)
		if err != nil {
			return err
		}
	}

	bootable := false
	if profile.Family == osprofile.LegacyCopyInstall {
		bootable, err = o.classify(ctx, mediumPath)
		if err != nil {
			return err
		}
	}

	in := o.baseInput(profile, volPath)
	in.Mode = emuconf.Install
	in.MediumPath = mediumPath
	in.FloppyPath = floppyPath
	in.Bootable = bootable

	installText, err := emuconf.Synthesize(in)
	if err != nil {
		return err
	}
	installConf := o.installConfPath(profile.Key)
	if err := os.WriteFile(installConf, []byte(installText), 0644); err != nil {
		return errors.Errorf("writing install config: %w", err)
	}
	if err := o.writeLauncher(profile.Key, "install", installConf); err != nil {
		return err
	}

	if err := o.writeRunArtifacts(profile, volPath); err != nil {
		return err
	}

	transcript := filepath.Join(o.cfg.VMDir(osKey), volume.TranscriptName)
	logger.Info().
		Str("os", osKey).
		Str("config", installConf).
		Str("transcript", transcript).
		Msg("Handing off to emulator for guest installation")

	return o.runner.Run(ctx, transcript, "-conf", installConf)
}

// Start launches a previously provisioned guest with its run config.
func (o *Orchestrator) Start(ctx context.Context, osKey string) error {
	profile, err := osprofile.Resolve(osprofile.OSKey(osKey))
	if err != nil {
		return err
	}

	runConf := o.runConfPath(profile.Key)
	if _, err := os.Stat(runConf); err != nil {
		return errors.Errorf("%w: %s missing, run `retrolab new %s` or `retrolab install %s` first",
			ErrNotProvisioned, runConf, osKey, osKey)
	}

	transcript := filepath.Join(o.cfg.VMDir(osKey), volume.TranscriptName)
	return o.runner.Run(ctx, transcript, "-conf", runConf)
}

// AttachMedium copies a local optical image into the canonical location
// for the guest's install medium.
func (o *Orchestrator) AttachMedium(ctx context.Context, osKey string, srcPath string) (string, error) {
	profile, err := osprofile.Resolve(osprofile.OSKey(osKey))
	if err != nil {
		return "", err
	}
	return medium.Attach(ctx, o.cfg.ISOsDir(), profile.CanonicalMedium, srcPath)
}

// Setup creates the directory tree. Installing the emulator binary itself
// is the operator's job; its presence is checked where runners are built.
func (o *Orchestrator) Setup() error {
	for _, dir := range []string{o.cfg.VMsDir(), o.cfg.ISOsDir(), o.cfg.BootDir(), o.cfg.BinDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// classify returns the memoized bootability of a medium, probing on first
// use. Inconclusive results default to not bootable, which only costs the
// copy-install path an unnecessary (harmless) file copy.
func (o *Orchestrator) classify(ctx context.Context, mediumPath string) (bool, error) {
	logger := zerolog.Ctx(ctx)

	c, ok := o.bootability[mediumPath]
	if !ok {
		var err error
		c, err = o.probe.Classify(ctx, mediumPath)
		if err != nil {
			return false, errors.Errorf("classifying medium %s: %w", mediumPath, err)
		}
		if c == medium.Inconclusive {
			logger.Warn().Str("medium", mediumPath).
				Msg("Bootability inconclusive, assuming not bootable")
		}
		o.bootability[mediumPath] = c
	}

	logger.Debug().Str("medium", mediumPath).Stringer("classification", c).Msg("Medium classified")
	return c == medium.Bootable, nil
}

func (o *Orchestrator) baseInput(profile osprofile.Profile, volPath string) emuconf.Input {
	return emuconf.Input{
		Profile:        profile,
		VolumePath:     volPath,
		AutoCopy:       o.cfg.AutoCopy,
		InstallCore:    o.cfg.InstallCore,
		RunCore:        o.cfg.RunCore,
		NetworkBackend: o.cfg.NetworkBackend,
	}
}

// writeRunArtifacts regenerates the run config and its launcher together so
// the two can never drift apart.
func (o *Orchestrator) writeRunArtifacts(profile osprofile.Profile, volPath string) error {
	in := o.baseInput(profile, volPath)
	in.Mode = emuconf.Run

	text, err := emuconf.Synthesize(in)
	if err != nil {
		return err
	}
	runConf := o.runConfPath(profile.Key)
	if err := os.WriteFile(runConf, []byte(text), 0644); err != nil {
		return errors.Errorf("writing run config: %w", err)
	}
	return o.writeLauncher(profile.Key, "start", runConf)
}

// writeLauncher emits the executable stub for one (guest, mode) pair.
func (o *Orchestrator) writeLauncher(key osprofile.OSKey, mode string, confPath string) error {
	stub := fmt.Sprintf("#!/bin/sh\n# Generated by retrolab. Regenerated on every provisioning run.\nexec \"%s\" -conf \"%s\"\n",
		o.runner.Binary(), confPath)

	path := filepath.Join(o.cfg.BinDir(), fmt.Sprintf("%s-%s", key, mode))
	if err := os.WriteFile(path, []byte(stub), 0755); err != nil {
		return errors.Errorf("writing launcher %s: %w", path, err)
	}
	return nil
}

func (o *Orchestrator) ensureDirs(profile osprofile.Profile) error {
	if err := o.Setup(); err != nil {
		return err
	}
	if err := os.MkdirAll(o.cfg.VMDir(string(profile.Key)), 0755); err != nil {
		return errors.Errorf("creating VM directory: %w", err)
	}
	return nil
}

func (o *Orchestrator) installConfPath(key osprofile.OSKey) string {
	return filepath.Join(o.cfg.VMDir(string(key)), fmt.Sprintf("%s-install.conf", key))
}

func (o *Orchestrator) runConfPath(key osprofile.OSKey) string {
	return filepath.Join(o.cfg.VMDir(string(key)), fmt.Sprintf("%s-run.conf", key))
}
