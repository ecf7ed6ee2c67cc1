package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/basket/internal/basket"
	"github.com/mesh-intelligence/basket/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the shopping list grouped by store and category",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, nil)
			if err != nil {
				return err
			}
			items, err := s.list.Items(ctx)
			if err != nil {
				_ = s.close(ctx)
				return sysError(err)
			}
			st := s.list.Status()
			if err := s.close(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return writeJSON(out, listOutput{Items: items, Groups: basket.Group(items), Status: st})
			}
			if st.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: the store could not be read; showing an empty list")
			}
			printGroups(out, basket.Group(items))
			return nil
		},
	}
}

type listOutput struct {
	Items  []types.Item        `json:"items"`
	Groups []basket.StoreGroup `json:"groups"`
	Status basket.Status       `json:"status"`
}

// printGroups writes one block per store, one heading per category and one
// line per item.
func printGroups(w io.Writer, groups []basket.StoreGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "The list is empty.")
		return
	}
	for i, sg := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, sg.Store)
		for _, cg := range sg.Categories {
			fmt.Fprintf(w, "  %s\n", cg.Category)
			for _, it := range cg.Items {
				mark := " "
				if it.Purchased {
					mark = "x"
				}
				fmt.Fprintf(w, "    [%s] %s  (%s)\n", mark, it.Name, it.ID)
			}
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
