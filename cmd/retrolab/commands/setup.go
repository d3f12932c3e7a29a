package commands

import (
	"fmt"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupCmd bootstraps the directory layout. Installing DOSBox-X itself is
// left to the host's package manager.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the base directory layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := Orch.Setup(); err != nil {
			return errors.Errorf("creating directory layout: %w", err)
		}
		fmt.Printf("%s directory layout ready under %s\n", color.GreenString("OK:"), Cfg.BaseDir)

		if _, err := exec.LookPath(Cfg.EmulatorBinary); err != nil {
			fmt.Printf("%s %s not found on PATH, install it before running install/start\n",
				color.YellowString("WARNING:"), Cfg.EmulatorBinary)
		}
		return nil
	},
}
