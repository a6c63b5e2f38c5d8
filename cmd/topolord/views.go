package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			docs, err := st.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tUPDATED")
			for _, d := range docs {
				updated := "-"
				if !d.UpdatedAt.IsZero() {
					updated = d.UpdatedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Type, updated)
			}
			return tw.Flush()
		},
	}
}

// levelArgs parses "<level> [id]".
func levelArgs(args []string) (hierarchy.Level, string, error) {
	level, err := hierarchy.ParseLevel(args[0])
	if err != nil {
		return "", "", err
	}
	id := ""
	if len(args) > 1 {
		id = args[1]
	}
	return level, id, nil
}

func loadView(cmd *cobra.Command, a *app, args []string, rackFilter string) (*navigator.View, error) {
	level, id, err := levelArgs(args)
	if err != nil {
		return nil, err
	}
	views, closeViews, err := a.views()
	if err != nil {
		return nil, err
	}
	defer closeViews()

	if level == hierarchy.LevelSites && rackFilter != "" {
		return views.SiteView(cmd.Context(), id, rackFilter)
	}
	return views.View(cmd.Context(), level, id)
}

func dotCmd(a *app) *cobra.Command {
	var rack string
	cmd := &cobra.Command{
		Use:   "dot <level> [id]",
		Short: "Render a hierarchy level as Graphviz DOT",
		Long: "Render a hierarchy level as Graphviz DOT.\n\n" +
			"Levels: all, sites, racks, equipment, server-details. Every level but\n" +
			"'all' needs the id of the selected site, rack, equipment or server.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadView(cmd, a, args, rack)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), v.Graph.Text)
			printWarnings(cmd.ErrOrStderr(), v.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&rack, "rack", "", "Limit a sites view to one rack")
	return cmd
}

func layoutCmd(a *app) *cobra.Command {
	var rack string
	cmd := &cobra.Command{
		Use:   "layout <level> [id]",
		Short: "Print the 3D scene of a hierarchy level as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadView(cmd, a, args, rack)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(v.Scene); err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), v.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&rack, "rack", "", "Limit a sites view to one rack")
	return cmd
}

func resolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <level> <id>",
		Short: "Show the site and rack trail leading to an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, id, err := levelArgs(args)
			if err != nil {
				return err
			}
			views, closeViews, err := a.views()
			if err != nil {
				return err
			}
			defer closeViews()

			entries, err := views.Ancestors(cmd.Context(), level, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTrail(entries))
			if len(entries) == 1 && level.Rank() > hierarchy.LevelSites.Rank() {
				warn.Fprintf(cmd.ErrOrStderr(), "warning: %s %s has no resolvable parent\n", level, id)
			}
			return nil
		},
	}
}

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Report broken parent references and unparseable documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views, closeViews, err := a.views()
			if err != nil {
				return err
			}
			defer closeViews()

			issues, skipped, err := views.Validate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range skipped {
				warn.Fprintf(out, "skipped  %s: %s\n", s.DocumentID, s.Reason)
			}
			for _, is := range issues {
				bad.Fprintf(out, "%-17s", is.Kind)
				fmt.Fprintf(out, " %s %s\n", is.DocumentID, subtle.Sprintf("(%s %s=%q) %s", is.SourceType, is.Field, is.Value, is.Message))
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d reference issue(s)", len(issues))
			}
			good.Fprintf(out, "ok: all references resolve (%d skipped)\n", len(skipped))
			return nil
		},
	}
}
