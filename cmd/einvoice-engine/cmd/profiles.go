package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the supported compliance profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(profile.All())
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
