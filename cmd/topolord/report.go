package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/reports"
)

func reportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:       "report <rack_capacity|references>",
		Short:     "Write a CSV or JSON report of rack usage or broken references",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(reports.ReportTypeRackCapacity), string(reports.ReportTypeReferences)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.apiURL != "" {
				return fmt.Errorf("report reads the local store; drop --api")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			gen, err := reports.NewReportGenerator(reports.ReportType(args[0]), navigator.NewLoader(st, cache.NewMemory(time.Minute)))
			if err != nil {
				return err
			}
			body, err := gen.Generate(cmd.Context(), reports.ReportFormat(format))
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), body)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Output format (csv, json)")
	return cmd
}
