package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/retrolab/retrolab/pkg/osprofile"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var vmGroup = &cobra.Group{
	ID:    "vm",
	Title: "Guest Provisioning",
}

func init() {
	rootCmd.AddGroup(vmGroup)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(startCmd)
}

func osKeysHelp() string {
	keys := make([]string, 0, 4)
	for _, k := range osprofile.Keys() {
		keys = append(keys, string(k))
	}
	return strings.Join(keys, "|")
}

// newCmd provisions a guest's volume and run config without any medium.
var newCmd = &cobra.Command{
	Use:   "new <" + osKeysHelp() + "> [size]",
	Short: "Create a guest's disk volume and run configuration",
	Long: `Create the per-guest directory, its virtual disk volume (idempotent:
an existing volume is never touched), the run-mode configuration and the
start launcher. Size is a megabyte count or one of small|medium|large;
omitted, the guest's default is used.`,
	Args:    cobra.RangeArgs(1, 2),
	GroupID: vmGroup.ID,
	RunE: func(cmd *cobra.Command, args []string) error {
		size := ""
		if len(args) > 1 {
			size = args[1]
		}
		if err := Orch.New(cmd.Context(), args[0], size); err != nil {
			return errors.Errorf("provisioning %s: %w", args[0], err)
		}
		fmt.Printf("%s %s provisioned, launch with %s\n",
			color.GreenString("OK:"), args[0], color.CyanString("retrolab start %s", args[0]))
		return nil
	},
}

// installCmd provisions everything and hands off to the emulator with the
// install configuration.
var installCmd = &cobra.Command{
	Use:   "install <" + osKeysHelp() + ">",
	Short: "Install a guest OS from its canonical medium",
	Long: `Provision the guest, resolve its install medium (fetching it from a
configured remote source when absent), classify the medium's bootability,
generate install- and run-mode configurations, and hand control to DOSBox-X
to run the guest installer. Safe to re-run; the existing volume is kept.`,
	Args:    cobra.ExactArgs(1),
	GroupID: vmGroup.ID,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := Orch.Install(cmd.Context(), args[0]); err != nil {
			return errors.Errorf("installing %s: %w", args[0], err)
		}
		fmt.Printf("%s installer session for %s finished, start the guest with %s\n",
			color.GreenString("OK:"), args[0], color.CyanString("retrolab start %s", args[0]))
		return nil
	},
}

// startCmd launches a previously provisioned guest.
var startCmd = &cobra.Command{
	Use:     "start <" + osKeysHelp() + ">",
	Short:   "Start a provisioned guest",
	Args:    cobra.ExactArgs(1),
	GroupID: vmGroup.ID,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := Orch.Start(cmd.Context(), args[0]); err != nil {
			return errors.Errorf("starting %s: %w", args[0], err)
		}
		return nil
	},
}
