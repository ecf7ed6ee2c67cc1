package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/basket/internal/resolve"
	"github.com/mesh-intelligence/basket/pkg/types"
)

// newActionCmd builds the toggle and delete commands. Both go through the
// same resolution as the page links.
func newActionCmd(a *app, kind types.ActionKind) *cobra.Command {
	short := "Mark an item as purchased, or back"
	if kind == types.ActionDelete {
		short = "Remove an item from the list"
	}
	return &cobra.Command{
		Use:   string(kind) + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := resolve.ParseAction(string(kind), args[0])
			if err != nil {
				return userError(err)
			}
			ctx := cmd.Context()
			s, err := a.openSession(ctx, nil)
			if err != nil {
				return err
			}
			oc, err := s.list.Apply(ctx, action)
			if cerr := s.close(ctx); err == nil {
				err = cerr
			}
			if err != nil {
				return sysError(err)
			}

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return writeJSON(out, actionOutput{
					Kind:    string(kind),
					ID:      oc.ID,
					Applied: oc.Applied,
					Changed: oc.Changed,
					Removed: oc.Removed,
				})
			}
			if !oc.Applied {
				fmt.Fprintf(out, "no item matches %q\n", oc.ID)
				return nil
			}
			for _, it := range oc.Changed {
				state := "not purchased"
				if it.Purchased {
					state = "purchased"
				}
				fmt.Fprintf(out, "%s: %s\n", it.Name, state)
			}
			for _, it := range oc.Removed {
				fmt.Fprintf(out, "removed %s\n", it.Name)
			}
			return nil
		},
	}
}

type actionOutput struct {
	Kind    string       `json:"kind"`
	ID      string       `json:"id"`
	Applied bool         `json:"applied"`
	Changed []types.Item `json:"changed,omitempty"`
	Removed []types.Item `json:"removed,omitempty"`
}
