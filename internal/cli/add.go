package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/basket/pkg/types"
)

func newAddCmd(a *app) *cobra.Command {
	var category, storeName string
	cmd := &cobra.Command{
		Use:   "add <name>...",
		Short: "Add an item to the list",
		Long:  "Add an item. Words after the command are joined into the item name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, nil)
			if err != nil {
				return err
			}
			it, err := s.list.Add(ctx, strings.Join(args, " "), category, storeName)
			if errors.Is(err, types.ErrInvalidName) {
				_ = s.close(ctx)
				return userError(err)
			}
			if cerr := s.close(ctx); err == nil {
				err = cerr
			}
			if err != nil {
				return sysError(err)
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), it)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s / %s) %s\n", it.Name, it.Store, it.Category, it.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "item category (default: "+types.DefaultCategory+")")
	cmd.Flags().StringVarP(&storeName, "store", "s", "", "store to buy it at (default: "+types.DefaultStore+")")
	return cmd
}
