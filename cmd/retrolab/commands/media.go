package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var mediaGroup = &cobra.Group{
	ID:    "media",
	Title: "Install Media",
}

func init() {
	rootCmd.AddGroup(mediaGroup)
	rootCmd.AddCommand(attachMediumCmd)
}

// attachMediumCmd copies a local optical image into the canonical location
// for a guest's install medium.
var attachMediumCmd = &cobra.Command{
	Use:   "attach-medium <" + osKeysHelp() + "> <path>",
	Short: "Copy a local install medium into the iso library",
	Long: `Copy a local optical image into the iso library under the guest's
canonical medium name, so install can find it. The image is checked as
ISO9660 first; unparseable images are attached anyway with a warning.`,
	Args:    cobra.ExactArgs(2),
	GroupID: mediaGroup.ID,
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, err := Orch.AttachMedium(cmd.Context(), args[0], args[1])
		if err != nil {
			return errors.Errorf("attaching medium for %s: %w", args[0], err)
		}
		fmt.Printf("%s medium attached at %s\n", color.GreenString("OK:"), dst)
		return nil
	},
}
