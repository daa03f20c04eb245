package commands

import (
	"github.com/chestsvc/chest/internal/version"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chestd",
		Short:         "Ephemeral file sharing daemon",
		Version:       version.FullVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())

	return cmd
}
