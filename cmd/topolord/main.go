// Command topolord imports hierarchy documents into the local store and
// renders, lays out, resolves and validates them from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/topolord/pkg/api"
	"github.com/rmax-ai/topolord/pkg/cache"
	"github.com/rmax-ai/topolord/pkg/client"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/store"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const defaultDBPath = "./topolord.db"

// fileConfig is the subset of the TOML config file the CLI reads.
type fileConfig struct {
	DB       string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	API      string `toml:"api_url"`
}

type app struct {
	dbPath     string
	configPath string
	logLevel   string
	apiURL     string
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("TOPOLORD_CONFIG")
	}
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		flags := cmd.Flags()
		if fc.DB != "" && !flags.Changed("db") {
			a.dbPath = fc.DB
		}
		if fc.LogLevel != "" && !flags.Changed("log-level") {
			a.logLevel = fc.LogLevel
		}
		if fc.API != "" && !flags.Changed("api") {
			a.apiURL = fc.API
		}
	}
	if v := os.Getenv("TOPOLORD_DB_PATH"); v != "" && !cmd.Flags().Changed("db") {
		a.dbPath = v
	}

	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	lvl, err := log.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q", a.logLevel)
	}
	log.SetLevel(lvl)
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.NewStore(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.dbPath, err)
	}
	log.WithField("path", a.dbPath).Debug("store_opened")
	return st, nil
}

// views returns the navigator the read commands use: the daemon when --api
// is set, otherwise a loader over the local store.
func (a *app) views() (api.ViewService, func(), error) {
	if a.apiURL != "" {
		log.WithField("api", a.apiURL).Debug("using_daemon")
		return client.NewClient(a.apiURL), func() {}, nil
	}
	st, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	return navigator.NewLoader(st, cache.NewMemory(time.Minute)), func() { _ = st.Close() }, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "topolord",
		Short:         "Navigate data center topology documents",
		Version:       fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDBPath, "Path to the SQLite document store")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (env TOPOLORD_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.apiURL, "api", "", "Read through a topolord-d endpoint instead of the local store")

	root.AddCommand(
		importCmd(a),
		listCmd(a),
		deleteCmd(a),
		dotCmd(a),
		layoutCmd(a),
		resolveCmd(a),
		validateCmd(a),
		reportCmd(a),
		exportCmd(a),
		mcpCmd(a),
	)
	return root
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		bad.Fprintf(os.Stderr, "topolord: %v\n", err)
		os.Exit(1)
	}
}
