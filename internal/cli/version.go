package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the basket release, overridden at link time with
// -ldflags "-X github.com/mesh-intelligence/basket/internal/cli.Version=...".
var Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/basket"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the basket version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "basket v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
