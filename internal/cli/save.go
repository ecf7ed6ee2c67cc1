package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/basket/pkg/types"
)

func newSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Rewrite the store from the current list",
		Long: "Load the list and write it back. A sheet without an identifier column\n" +
			"is rewritten with the canonical header and its identifiers.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, nil)
			if err != nil {
				return err
			}
			err = s.list.Save(ctx)
			st := s.list.Status()
			if cerr := s.close(ctx); err == nil {
				err = cerr
			}
			if err != nil {
				return sysError(err)
			}
			if st.Degraded {
				return sysError(fmt.Errorf("the store could not be read; nothing was saved: %w", types.ErrDegraded))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d items\n", st.Items)
			return nil
		},
	}
}
