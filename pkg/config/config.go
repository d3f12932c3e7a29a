// Package config holds the explicit runtime configuration for retrolab.
// Every recognized knob is a named field with a documented default; nothing
// reads the environment after Load returns.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is shared by every recognized environment variable.
	EnvPrefix = "RETROLAB_"

	// mediaURLEnvPrefix introduces per-medium remote source overrides,
	// keyed by the canonical medium filename without its extension,
	// upper-cased: RETROLAB_MEDIA_URL_WIN95=https://...
	mediaURLEnvPrefix = EnvPrefix + "MEDIA_URL_"

	configFileName = "config.yaml"

	// DefaultEmulatorBinary is the DOSBox-X executable looked up on PATH
	// unless overridden.
	DefaultEmulatorBinary = "dosbox-x"
)

// Config is threaded into the orchestrator and synthesizer at construction
// time. Zero ambient globals: commands build exactly one of these.
type Config struct {
	// BaseDir is the root under which vms/, bin/ and the iso library live.
	// Default: ~/.retrolab. Override: RETROLAB_HOME.
	BaseDir string `yaml:"base_dir"`

	// EmulatorBinary names (or paths to) the DOSBox-X executable.
	EmulatorBinary string `yaml:"emulator_binary"`

	// Verbose mirrors emulator transcripts to the terminal in addition to
	// the per-VM log file. Override: RETROLAB_VERBOSE.
	Verbose bool `yaml:"verbose"`

	// AutoCopy selects the automatic copy-then-invoke path for
	// non-bootable legacy install media. When false the generated config
	// prints manual instructions and stops at a prompt instead.
	// Default true. Override: RETROLAB_AUTO_COPY.
	AutoCopy bool `yaml:"auto_copy"`

	// InstallCore / RunCore override the profile's CPU execution core per
	// lifecycle phase. Empty means use the profile value.
	InstallCore string `yaml:"install_core"`
	RunCore     string `yaml:"run_core"`

	// NetworkBackend selects the NE2000 back-end. Default "slirp".
	NetworkBackend string `yaml:"network_backend"`

	// MediaURLs maps canonical medium filenames to remote sources used
	// when the medium is absent from the local iso library.
	MediaURLs map[string]string `yaml:"media_urls"`
}

// Default returns the built-in configuration, before any file or
// environment overrides.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		BaseDir:        filepath.Join(home, ".retrolab"),
		EmulatorBinary: DefaultEmulatorBinary,
		AutoCopy:       true,
		NetworkBackend: "slirp",
		MediaURLs:      map[string]string{},
	}
}

// Load builds the effective configuration: defaults, then the optional
// config.yaml in the base directory, then environment overrides. The
// RETROLAB_HOME override is applied first so the config file is read from
// the overridden base directory.
func Load() (Config, error) {
	cfg := Default()

	if home := os.Getenv(EnvPrefix + "HOME"); home != "" {
		cfg.BaseDir = home
	}

	path := filepath.Join(cfg.BaseDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// optional file
	default:
		return Config{}, errors.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv(os.Environ())
	return cfg, nil
}

// applyEnv overlays recognized RETROLAB_* variables onto cfg.
func (cfg *Config) applyEnv(environ []string) {
	get := func(name string) (string, bool) {
		prefix := EnvPrefix + name + "="
		for _, kv := range environ {
			if strings.HasPrefix(kv, prefix) {
				return kv[len(prefix):], true
			}
		}
		return "", false
	}

	if v, ok := get("HOME"); ok && v != "" {
		cfg.BaseDir = v
	}
	if v, ok := get("EMULATOR"); ok && v != "" {
		cfg.EmulatorBinary = v
	}
	if v, ok := get("VERBOSE"); ok {
		cfg.Verbose = isTruthy(v)
	}
	if v, ok := get("AUTO_COPY"); ok {
		cfg.AutoCopy = isTruthy(v)
	}
	if v, ok := get("INSTALL_CORE"); ok && v != "" {
		cfg.InstallCore = v
	}
	if v, ok := get("RUN_CORE"); ok && v != "" {
		cfg.RunCore = v
	}
	if v, ok := get("NETWORK_BACKEND"); ok && v != "" {
		cfg.NetworkBackend = v
	}

	for _, kv := range environ {
		if !strings.HasPrefix(kv, mediaURLEnvPrefix) {
			continue
		}
		rest := kv[len(mediaURLEnvPrefix):]
		name, url, ok := strings.Cut(rest, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		if cfg.MediaURLs == nil {
			cfg.MediaURLs = map[string]string{}
		}
		cfg.MediaURLs[canonicalFromEnvKey(name)] = url
	}
}

// canonicalFromEnvKey turns WIN95 back into Win95.iso. Media filenames are
// canonical and case-sensitive on disk; the env key is a case-folded alias.
func canonicalFromEnvKey(key string) string {
	known := map[string]string{
		"WIN95":   "Win95.iso",
		"WIN98":   "Win98.iso",
		"WINNT4":  "WinNT4.iso",
		"WIN2000": "Win2000.iso",
	}
	if name, ok := known[strings.ToUpper(key)]; ok {
		return name
	}
	return key + ".iso"
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// VMsDir is the parent of all per-VM directories.
func (cfg Config) VMsDir() string {
	return filepath.Join(cfg.BaseDir, "vms")
}

// VMDir is the per-guest working directory.
func (cfg Config) VMDir(osKey string) string {
	return filepath.Join(cfg.VMsDir(), osKey)
}

// ISOsDir is the local iso library holding canonical install media.
func (cfg Config) ISOsDir() string {
	return filepath.Join(cfg.VMsDir(), "isos")
}

// BootDir holds auxiliary boot floppy images.
func (cfg Config) BootDir() string {
	return filepath.Join(cfg.VMsDir(), "boot")
}

// BinDir holds the generated launcher stubs.
func (cfg Config) BinDir() string {
	return filepath.Join(cfg.BaseDir, "bin")
}
