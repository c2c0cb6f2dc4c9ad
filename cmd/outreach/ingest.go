package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/trevor-commits/proactive-outreach-crm/internal/adapters"
	"github.com/trevor-commits/proactive-outreach-crm/internal/config"
	"github.com/trevor-commits/proactive-outreach-crm/internal/ingest"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
	"github.com/trevor-commits/proactive-outreach-crm/internal/state"
	"github.com/trevor-commits/proactive-outreach-crm/internal/watch"
)

func (a *app) importer() *ingest.Importer {
	pipeline := ingest.NewPipeline(a.stores.Customers, a.stores.Interactions)
	return ingest.NewImporter(adapters.NewBackupExtractor(), pipeline, a.stores.DataSources)
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [sms.db]",
		Short: "Import messages and calls from a device backup",
		Long: `Import reads a message store (sms.db) and, optionally, a call history
store and records every message and call from a known customer.

Pass the extracted sms.db directly, or point --backup-dir at an unencrypted
device backup folder to locate both files automatically.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK      bool   `json:"ok"`
				Message string `json:"message,omitempty"`
				ingest.ImportResult
			}

			calls, _ := cmd.Flags().GetString("calls")
			backupDir, _ := cmd.Flags().GetString("backup-dir")

			a := openApp()
			defer a.Close()

			var primary string
			switch {
			case backupDir != "":
				files, err := adapters.LocateBackupFiles(a.ctx, backupDir)
				if err != nil {
					fail("Failed to read backup: %v", err)
				}
				primary = files.Messages
				if calls == "" {
					calls = files.Calls
				}
			case len(args) == 1:
				primary = args[0]
			default:
				fail("Give the path to sms.db or --backup-dir")
			}

			res, err := a.importer().Import(a.ctx, a.cfg.Owner.ID, primary, calls)
			if err != nil {
				if errors.Is(err, model.ErrExtraction) {
					fail("Could not read the backup: %v", err)
				}
				fail("Import failed: %v", err)
			}

			result := Result{OK: true, Message: "Import complete", ImportResult: res}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Read %d messages and %d calls in %s\n", res.Messages, res.Calls, res.Duration.Round(time.Millisecond))
				fmt.Printf("  Matched: %d\n", res.Matched)
				fmt.Printf("  Unmatched: %d\n", res.Unmatched)
				if len(res.Failures) > 0 {
					fmt.Printf("  Skipped: %d\n", len(res.Failures))
				}
			}
		},
	}
	cmd.Flags().String("calls", "", "Path to the call history store (CallHistory.storedata)")
	cmd.Flags().String("backup-dir", "", "Unencrypted device backup directory")
	return cmd
}

func watchDir(cfg *config.Config) string {
	if cfg.Watch.Dir != "" {
		return cfg.Watch.Dir
	}
	dataDir, err := config.GetDataDir()
	if err != nil {
		fail("Failed to get data directory: %v", err)
	}
	return filepath.Join(dataDir, "drop")
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import device backups dropped into a directory",
		Long: `Watch monitors the drop directory (watch.dir, default <data dir>/drop).
When sms.db (and optionally CallHistory.storedata) appears it is imported for
the configured owner and then deleted.`,
		Run: func(cmd *cobra.Command, args []string) {
			a := openApp()
			defer a.Close()

			dir := watchDir(a.cfg)
			w := watch.New(dir, a.cfg.Owner.ID, a.importer(), watch.NewStatus(state.NewTracker(a.db, "watch")),
				watch.Options{Debounce: a.cfg.Watch.Debounce()})

			if !jsonOutput {
				fmt.Printf("Watching %s (Ctrl+C to stop)\n", dir)
			}
			if err := w.Run(a.ctx); err != nil {
				fail("Watcher failed: %v", err)
			}
			if jsonOutput {
				printJSON(basicResult{OK: true, Message: "Watcher stopped"})
			}
		},
	}
	return cmd
}
