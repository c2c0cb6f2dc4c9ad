package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/trevor-commits/proactive-outreach-crm/internal/adapters"
	"github.com/trevor-commits/proactive-outreach-crm/internal/ingest"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
	"github.com/trevor-commits/proactive-outreach-crm/internal/state"
	"github.com/trevor-commits/proactive-outreach-crm/internal/sync"
)

const (
	googleStateAdapter = "google"
	oauthStateKey      = "oauth_state"
)

func (a *app) googleAuth() *adapters.GoogleAuth {
	g := a.cfg.Google
	if g.ClientID == "" || g.ClientSecret == "" {
		fail("Google client is not configured. Set google.client_id and google.client_secret in config.yaml " +
			"or OUTREACH_GOOGLE_CLIENT_ID / OUTREACH_GOOGLE_CLIENT_SECRET")
	}
	return adapters.NewGoogleAuth(g.ClientID, g.ClientSecret, g.RedirectURL, a.stores.Credentials)
}

func googleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "google",
		Short: "Connect Gmail and Google Calendar",
	}

	authURLCmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK    bool   `json:"ok"`
				URL   string `json:"url"`
				State string `json:"state"`
			}

			a := openApp()
			defer a.Close()

			nonce := uuid.New().String()
			if err := state.NewTracker(a.db, googleStateAdapter).Set(a.ctx, oauthStateKey, nonce); err != nil {
				fail("Failed to store OAuth state: %v", err)
			}
			result := Result{OK: true, URL: a.googleAuth().AuthCodeURL(nonce), State: nonce}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("Open this URL, approve access, then run:")
				fmt.Printf("  outreach google connect --code <code> --state %s\n\n", nonce)
				fmt.Println(result.URL)
			}
		},
	}

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Finish connecting with the authorization code",
		Run: func(cmd *cobra.Command, args []string) {
			code, _ := cmd.Flags().GetString("code")
			stateParam, _ := cmd.Flags().GetString("state")
			if strings.TrimSpace(code) == "" {
				fail("--code is required")
			}

			a := openApp()
			defer a.Close()

			tracker := state.NewTracker(a.db, googleStateAdapter)
			want, ok, err := tracker.Get(a.ctx, oauthStateKey)
			if err != nil {
				fail("Failed to read OAuth state: %v", err)
			}
			if ok && stateParam != want {
				fail("OAuth state does not match the last auth-url request")
			}
			if err := a.googleAuth().Exchange(a.ctx, a.cfg.Owner.ID, code); err != nil {
				fail("Failed to connect Google: %v", err)
			}
			if err := tracker.Delete(a.ctx, oauthStateKey); err != nil {
				fail("Failed to clear OAuth state: %v", err)
			}

			if jsonOutput {
				printJSON(basicResult{OK: true, Message: "Google connected"})
			} else {
				fmt.Println("✓ Google connected")
			}
		},
	}
	connectCmd.Flags().String("code", "", "Authorization code from the consent page")
	connectCmd.Flags().String("state", "", "State value printed by auth-url")

	cmd.AddCommand(authURLCmd, connectCmd)
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull Gmail and Calendar history for every customer with an email",
		Run: func(cmd *cobra.Command, args []string) {
			lookback, _ := cmd.Flags().GetInt("lookback")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			a := openApp()
			defer a.Close()
			if lookback <= 0 {
				lookback = a.cfg.Sync.LookbackDays
			}

			ctx := a.ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			connector := &adapters.GoogleConnector{
				Auth:     a.googleAuth(),
				Gmail:    adapters.GmailOptions{QPS: a.cfg.Sync.QPS},
				Calendar: adapters.CalendarOptions{QPS: a.cfg.Sync.QPS},
			}
			syncer := sync.NewSyncer(
				connector,
				a.stores.Customers,
				ingest.NewPipeline(a.stores.Customers, a.stores.Interactions),
				a.stores.DataSources,
				state.NewTracker(a.db, googleStateAdapter),
				sync.Options{Workers: a.cfg.Sync.Workers},
			)

			result, err := syncer.SyncRemoteForAllCustomers(ctx, a.cfg.Owner.ID, lookback)
			if err != nil {
				switch {
				case errors.Is(err, model.ErrAuthExpired):
					result.Message = "Google access expired. Run 'outreach google auth-url' to reconnect."
				case errors.Is(err, context.DeadlineExceeded):
					result.Message = fmt.Sprintf("Sync timed out after %s; partial results kept", timeout)
				default:
					result.Message = fmt.Sprintf("Sync failed: %v", err)
				}
			}

			if jsonOutput {
				printJSON(result)
			} else {
				if err != nil {
					fmt.Printf("✗ %s\n", result.Message)
				} else {
					fmt.Println("✓ Sync complete")
				}
				fmt.Printf("  Customers: %d\n", result.CustomersProcessed)
				fmt.Printf("  Emails: %d\n", result.TotalEmails)
				fmt.Printf("  Calendar events: %d\n", result.TotalEvents)
				for _, f := range result.Failures {
					fmt.Printf("  Failed %s: %s\n", f.Key, f.Reason)
				}
				fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
			}
			if err != nil {
				a.Close()
				os.Exit(1)
			}
		},
	}
	cmd.Flags().Int("lookback", 0, "Days of history to pull (default sync.lookback_days)")
	cmd.Flags().Duration("timeout", 0, "Stop after this long and keep partial results (e.g. 10m)")
	return cmd
}
