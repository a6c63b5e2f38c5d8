package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/topolord/pkg/blob"
	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

func exportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the DOT and JSON view of every entity to a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.apiURL != "" {
				return fmt.Errorf("export reads the local store; drop --api")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			loader := navigator.NewLoader(st, cache.NewMemory(time.Minute))
			sum, err := loader.Export(cmd.Context(), blob.NewLocalBlobStore(out))
			if err != nil {
				return err
			}
			for _, f := range sum.Failed {
				warn.Fprintf(cmd.ErrOrStderr(), "skipped %s\n", f)
			}
			good.Fprintf(cmd.OutOrStdout(), "exported %d views to %s\n", sum.Written, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "topolord-export", "Output directory")
	return cmd
}
