package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
	"github.com/trevor-commits/proactive-outreach-crm/internal/recommend"
	"github.com/trevor-commits/proactive-outreach-crm/internal/state"
	"github.com/trevor-commits/proactive-outreach-crm/internal/sync"
	"github.com/trevor-commits/proactive-outreach-crm/internal/watch"
)

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank customers to contact now",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK              bool                    `json:"ok"`
				Keyword         string                  `json:"keyword,omitempty"`
				Recommendations []model.ScoredCandidate `json:"recommendations"`
			}

			keyword, _ := cmd.Flags().GetString("keyword")
			limit, _ := cmd.Flags().GetInt("limit")

			a := openApp()
			defer a.Close()
			if limit <= 0 {
				limit = a.cfg.Recommend.Limit
			}

			s := a.stores
			engine := recommend.NewEngine(s.Customers, s.Services, s.Outreach, s.Interactions)
			ranked, err := engine.Recommend(a.ctx, a.cfg.Owner.ID, recommend.Query{Keyword: keyword, Limit: limit})
			if err != nil {
				fail("Failed to compute recommendations: %v", err)
			}

			if jsonOutput {
				if ranked == nil {
					ranked = []model.ScoredCandidate{}
				}
				printJSON(Result{OK: true, Keyword: keyword, Recommendations: ranked})
				return
			}
			if len(ranked) == 0 {
				fmt.Println("No customers to contact right now.")
				return
			}
			for i, c := range ranked {
				last := "never"
				if c.DaysSinceInteraction != recommend.NoInteractionDays {
					last = fmt.Sprintf("%dd ago", c.DaysSinceInteraction)
				}
				fmt.Printf("%2d. %-24s score %-3d last contact %s\n", i+1, c.Customer.Name, c.Score, last)
				if len(c.MatchingServices) > 0 {
					names := make([]string, 0, len(c.MatchingServices))
					for _, svc := range c.MatchingServices {
						names = append(names, fmt.Sprintf("%s (%s)", svc.ServiceName, svc.ServiceDate.Format("Jan 2006")))
					}
					fmt.Printf("    %s\n", strings.Join(names, ", "))
				}
			}
		},
	}
	cmd.Flags().String("keyword", "", "Only customers who had a service containing this word")
	cmd.Flags().Int("limit", 0, "Maximum results (default recommend.limit)")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database, connection and watcher status",
		Run: func(cmd *cobra.Command, args []string) {
			type GoogleStatus struct {
				Connected bool       `json:"connected"`
				Expiry    *time.Time `json:"expiry,omitempty"`
				LastSync  *time.Time `json:"last_sync,omitempty"`
			}
			type Result struct {
				OK           bool                    `json:"ok"`
				DBPath       string                  `json:"db_path"`
				Owner        string                  `json:"owner"`
				Customers    int                     `json:"customers"`
				Interactions map[model.EventType]int `json:"interactions"`
				Google       GoogleStatus            `json:"google"`
				Watch        watch.Report            `json:"watch"`
				RecentRuns   []model.DataSource      `json:"recent_runs,omitempty"`
			}

			a := openApp()
			defer a.Close()

			dbPath, err := db.GetPath()
			if err != nil {
				fail("Failed to get database path: %v", err)
			}
			owner := a.cfg.Owner.ID
			customers, err := a.stores.Customers.ListAll(a.ctx, owner)
			if err != nil {
				fail("Failed to count customers: %v", err)
			}
			counts, err := a.stores.Interactions.CountByOwner(a.ctx, owner)
			if err != nil {
				fail("Failed to count interactions: %v", err)
			}
			runs, err := a.stores.DataSources.List(a.ctx, owner, 5)
			if err != nil {
				fail("Failed to list recent runs: %v", err)
			}

			result := Result{
				OK:           true,
				DBPath:       dbPath,
				Owner:        owner,
				Customers:    len(customers),
				Interactions: counts,
				RecentRuns:   runs,
			}
			if cred, ok, err := a.stores.Credentials.Get(a.ctx, owner); err == nil && ok {
				result.Google.Connected = true
				result.Google.Expiry = &cred.Expiry
			}
			if last, ok, err := state.NewTracker(a.db, googleStateAdapter).Time(a.ctx, sync.LastSyncKey); err == nil && ok {
				result.Google.LastSync = &last
			}
			result.Watch = watch.NewStatus(state.NewTracker(a.db, "watch")).Read(a.ctx)

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Database: %s\n", result.DBPath)
			fmt.Printf("Owner: %s\n", result.Owner)
			fmt.Printf("Customers: %d\n", result.Customers)
			fmt.Println("Interactions:")
			for _, t := range []model.EventType{model.TypeMessage, model.TypeCall, model.TypeEmail, model.TypeCalendarEvent, model.TypeNote} {
				fmt.Printf("  %-15s %d\n", t, counts[t])
			}
			if result.Google.Connected {
				fmt.Print("Google: connected")
				if result.Google.LastSync != nil {
					fmt.Printf(", last sync %s", result.Google.LastSync.Local().Format(time.DateTime))
				}
				fmt.Println()
			} else {
				fmt.Println("Google: not connected")
			}
			if result.Watch.Status != "" {
				fmt.Printf("Watcher: %s (%d imports)\n", result.Watch.Status, result.Watch.Imports)
				if result.Watch.LastError != "" {
					fmt.Printf("  Last error: %s\n", result.Watch.LastError)
				}
			}
			if len(runs) > 0 {
				fmt.Println("Recent runs:")
				for _, r := range runs {
					line := fmt.Sprintf("  %s  %-15s %s", r.CreatedAt.Local().Format(time.DateTime), r.SourceType, r.Status)
					if r.ErrorMessage != "" {
						line += " (" + r.ErrorMessage + ")"
					}
					fmt.Println(line)
				}
			}
		},
	}
	return cmd
}
