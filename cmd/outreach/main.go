package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trevor-commits/proactive-outreach-crm/internal/config"
	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/store"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "outreach",
		Short: "Proactive outreach CRM",
		Long: `Outreach imports your message, call, mail and calendar history,
matches it to your customers and ranks who to contact next.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("outreach %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	// init command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize outreach config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				ConfigDir string `json:"config_dir,omitempty"`
				DataDir   string `json:"data_dir,omitempty"`
				DBPath    string `json:"db_path,omitempty"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				fail("Failed to get config directory: %v", err)
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				fail("Failed to get data directory: %v", err)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				fail("Failed to create config directory: %v", err)
			}

			cfg, err := config.Load()
			if err != nil {
				fail("Failed to load config: %v", err)
			}
			if err := cfg.Save(); err != nil {
				fail("Failed to write config: %v", err)
			}
			if err := db.Init(); err != nil {
				fail("Failed to initialize database: %v", err)
			}
			dbPath, err := db.GetPath()
			if err != nil {
				fail("Failed to get database path: %v", err)
			}

			result := Result{
				OK:        true,
				Message:   "Outreach initialized successfully",
				ConfigDir: configDir,
				DataDir:   dataDir,
				DBPath:    dbPath,
			}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
				fmt.Println("\nOutreach initialized successfully!")
			}
		},
	})

	rootCmd.AddCommand(customersCmd(), servicesCmd(), outreachCmd(), interactionsCmd())
	rootCmd.AddCommand(importCmd(), watchCmd())
	rootCmd.AddCommand(googleCmd(), syncCmd())
	rootCmd.AddCommand(recommendCmd(), statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the per-invocation wiring shared by commands that touch the database.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	stores store.Stores
	ctx    context.Context
	stop   context.CancelFunc
}

func openApp() *app {
	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, os.Stderr)
	logging.SetDefault(logger)

	database, err := db.Open()
	if err != nil {
		fail("Failed to open database: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &app{
		cfg:    cfg,
		db:     database,
		stores: store.New(database),
		ctx:    logging.With(ctx, logger),
		stop:   stop,
	}
}

func (a *app) Close() {
	a.stop()
	a.db.Close()
}

type basicResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// fail reports a command error in the selected output format and exits.
func fail(format string, args ...any) {
	result := basicResult{OK: false, Message: fmt.Sprintf(format, args...)}
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Message)
	}
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
