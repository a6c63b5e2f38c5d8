package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/client"
	"github.com/rmax-ai/topolord/pkg/mcp"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

func mcpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the navigator as Model Context Protocol tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.apiURL != "" {
				log.WithField("api", a.apiURL).Info("mcp_server_started")
				return mcp.NewServer(client.NewClient(a.apiURL), nil, Version).Serve()
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			loader := navigator.NewLoader(st, cache.NewMemory(5*time.Minute))
			watcher := navigator.NewWatcher(st, loader.Cache(), navigator.DefaultPollInterval)
			go watcher.Start(cmd.Context())

			log.WithField("path", a.dbPath).Info("mcp_server_started")
			return mcp.NewServer(loader, st, Version).Serve()
		},
	}
}
