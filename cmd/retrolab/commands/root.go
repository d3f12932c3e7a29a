package commands

import (
	"github.com/retrolab/retrolab/pkg/config"
	"github.com/retrolab/retrolab/pkg/emulator"
	"github.com/retrolab/retrolab/pkg/medium"
	"github.com/retrolab/retrolab/pkg/provision"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	// Debug enables verbose logging.
	Debug bool

	// Cfg is the effective configuration for this invocation.
	Cfg config.Config

	// Orch is the provisioning orchestrator, built in PersistentPreRunE.
	Orch *provision.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "retrolab",
	Short: "Provision and launch legacy Windows guests on DOSBox-X",
	Long: `retrolab provisions persistent virtual machines for legacy Windows
guests (95/98/NT4/2000) on top of DOSBox-X: it creates sized virtual disk
volumes, classifies install media, generates install- and run-mode emulator
configurations, and emits launcher stubs for each guest.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if Debug {
			level = zerolog.DebugLevel
		}

		var err error
		Cfg, err = config.Load()
		if err != nil {
			return errors.Errorf("loading configuration: %w", err)
		}
		if Cfg.Verbose {
			level = zerolog.DebugLevel
		}

		ctx := zerolog.Ctx(cmd.Context()).With().Str("command", cmd.Name()).Logger().Level(level).WithContext(cmd.Context())
		cmd.SetContext(ctx)

		// Only the commands that launch the emulator require the binary;
		// setup and attach-medium must work before DOSBox-X is installed.
		if !needsEmulator[cmd.Name()] {
			Orch = provision.NewOrchestrator(Cfg, nil, nil)
			return nil
		}

		runner, err := emulator.NewLocalRunner(Cfg.EmulatorBinary, Cfg.Verbose)
		if err != nil {
			return errors.Errorf("creating emulator runner: %w", err)
		}
		Orch = provision.NewOrchestrator(Cfg, runner, medium.NewEmulatorProbe(runner))
		return nil
	},
}

var needsEmulator = map[string]bool{
	"new":     true,
	"install": true,
	"start":   true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&Debug, "debug", "d", false, "Enable debug logging")
}

func RootCmd() *cobra.Command {
	return rootCmd
}
