package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vimarsh",
		Short: "Vimarsh multi-personality guidance service",
	}
	root.AddCommand(
		ServeCmd(),
		IngestCmd(),
	)
	return root
}
