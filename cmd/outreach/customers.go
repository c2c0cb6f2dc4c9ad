package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/trevor-commits/proactive-outreach-crm/internal/ingest"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

const dateLayout = time.DateOnly

func parseDate(flag, value string) time.Time {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		fail("Invalid --%s %q (want YYYY-MM-DD)", flag, value)
	}
	return t
}

func parseCustomerID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		fail("Invalid customer id %q", arg)
	}
	return id
}

// requireCustomer exits unless id is one of the owner's customers.
func (a *app) requireCustomer(id int64) {
	if _, ok, err := a.stores.Customers.Get(a.ctx, a.cfg.Owner.ID, id); err != nil {
		fail("Failed to look up customer: %v", err)
	} else if !ok {
		fail("Customer #%d not found", id)
	}
}

func customersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Manage the customer address book",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a customer",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK       bool                   `json:"ok"`
				Message  string                 `json:"message,omitempty"`
				Customer model.CustomerIdentity `json:"customer"`
			}

			name, _ := cmd.Flags().GetString("name")
			phone, _ := cmd.Flags().GetString("phone")
			email, _ := cmd.Flags().GetString("email")
			address, _ := cmd.Flags().GetString("address")
			notes, _ := cmd.Flags().GetString("notes")
			if strings.TrimSpace(name) == "" {
				fail("--name is required")
			}

			a := openApp()
			defer a.Close()

			c := model.CustomerIdentity{
				OwnerID: a.cfg.Owner.ID,
				Name:    name,
				Phone:   phone,
				Email:   email,
				Address: address,
				Notes:   notes,
			}
			if err := a.stores.Customers.Create(a.ctx, &c); err != nil {
				if errors.Is(err, model.ErrDuplicateIdentity) {
					fail("Another customer already uses that phone or email")
				}
				fail("Failed to add customer: %v", err)
			}

			result := Result{OK: true, Message: "Customer added", Customer: c}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Added customer #%d %s\n", c.ID, c.Name)
				if c.Phone != "" {
					fmt.Printf("  Phone: %s\n", c.Phone)
				}
				if c.Email != "" {
					fmt.Printf("  Email: %s\n", c.Email)
				}
			}
		},
	}
	addCmd.Flags().String("name", "", "Customer name")
	addCmd.Flags().String("phone", "", "Phone number")
	addCmd.Flags().String("email", "", "Email address")
	addCmd.Flags().String("address", "", "Street address")
	addCmd.Flags().String("notes", "", "Free-form notes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List customers",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool                     `json:"ok"`
				Customers []model.CustomerIdentity `json:"customers"`
			}

			a := openApp()
			defer a.Close()

			customers, err := a.stores.Customers.ListAll(a.ctx, a.cfg.Owner.ID)
			if err != nil {
				fail("Failed to list customers: %v", err)
			}
			if jsonOutput {
				printJSON(Result{OK: true, Customers: customers})
				return
			}
			if len(customers) == 0 {
				fmt.Println("No customers yet. Add one with 'outreach customers add --name ...'")
				return
			}
			for _, c := range customers {
				fmt.Printf("#%-4d %-24s %-14s %s\n", c.ID, c.Name, c.Phone, c.Email)
			}
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func servicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Record services performed for customers",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a service",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK      bool                `json:"ok"`
				Message string              `json:"message,omitempty"`
				Service model.ServiceRecord `json:"service"`
			}

			customerID, _ := cmd.Flags().GetInt64("customer")
			name, _ := cmd.Flags().GetString("name")
			date, _ := cmd.Flags().GetString("date")
			notes, _ := cmd.Flags().GetString("notes")
			if customerID <= 0 || strings.TrimSpace(name) == "" || date == "" {
				fail("--customer, --name and --date are required")
			}
			serviceDate := parseDate("date", date)

			a := openApp()
			defer a.Close()

			a.requireCustomer(customerID)

			rec := model.ServiceRecord{
				OwnerID:     a.cfg.Owner.ID,
				CustomerID:  customerID,
				ServiceName: name,
				ServiceDate: serviceDate,
				Notes:       notes,
			}
			if err := a.stores.Services.Create(a.ctx, &rec); err != nil {
				fail("Failed to record service: %v", err)
			}

			result := Result{OK: true, Message: "Service recorded", Service: rec}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Recorded %s for customer #%d on %s\n", rec.ServiceName, customerID, rec.ServiceDate.Format(dateLayout))
			}
		},
	}
	addCmd.Flags().Int64("customer", 0, "Customer ID")
	addCmd.Flags().String("name", "", "Service name (e.g. \"Lawn mowing\")")
	addCmd.Flags().String("date", "", "Service date (YYYY-MM-DD)")
	addCmd.Flags().String("notes", "", "Free-form notes")

	listCmd := &cobra.Command{
		Use:   "list <customer-id>",
		Short: "List a customer's services, newest first",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK       bool                  `json:"ok"`
				Services []model.ServiceRecord `json:"services"`
			}

			customerID := parseCustomerID(args[0])
			a := openApp()
			defer a.Close()
			a.requireCustomer(customerID)

			services, err := a.stores.Services.ListByCustomer(a.ctx, customerID)
			if err != nil {
				fail("Failed to list services: %v", err)
			}
			if jsonOutput {
				if services == nil {
					services = []model.ServiceRecord{}
				}
				printJSON(Result{OK: true, Services: services})
				return
			}
			if len(services) == 0 {
				fmt.Printf("No services recorded for customer #%d\n", customerID)
				return
			}
			for _, svc := range services {
				fmt.Printf("%s  %s\n", svc.ServiceDate.Format(dateLayout), svc.ServiceName)
			}
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func interactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "Show and add customer interaction history",
	}

	addCmd := &cobra.Command{
		Use:   "add <customer-id>",
		Short: "Record a note or an interaction by hand",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK          bool                   `json:"ok"`
				Message     string                 `json:"message,omitempty"`
				Interaction model.InteractionEvent `json:"interaction"`
			}

			typ, _ := cmd.Flags().GetString("type")
			direction, _ := cmd.Flags().GetString("direction")
			date, _ := cmd.Flags().GetString("date")
			subject, _ := cmd.Flags().GetString("subject")
			body, _ := cmd.Flags().GetString("body")

			entry := ingest.ManualEntry{
				CustomerID: parseCustomerID(args[0]),
				Type:       model.EventType(typ),
				Direction:  model.Direction(direction),
				Subject:    subject,
				Body:       body,
			}
			if date != "" {
				entry.At = parseDate("date", date)
			}

			a := openApp()
			defer a.Close()
			a.requireCustomer(entry.CustomerID)

			pipeline := ingest.NewPipeline(a.stores.Customers, a.stores.Interactions)
			ev, err := pipeline.LogManual(a.ctx, a.cfg.Owner.ID, entry)
			if err != nil {
				fail("Failed to record interaction: %v", err)
			}

			result := Result{OK: true, Message: "Interaction recorded", Interaction: ev}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Recorded %s for customer #%d\n", ev.Type, ev.CustomerID)
			}
		},
	}
	addCmd.Flags().String("type", string(model.TypeNote), "Interaction type (manual_note, call, sms, email, calendar_event)")
	addCmd.Flags().String("direction", "", "incoming, outgoing or bidirectional")
	addCmd.Flags().String("date", "", "Date of the interaction (YYYY-MM-DD, default now)")
	addCmd.Flags().String("subject", "", "Subject")
	addCmd.Flags().String("body", "", "Text of the note")

	listCmd := &cobra.Command{
		Use:   "list <customer-id>",
		Short: "List a customer's most recent interactions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK           bool                     `json:"ok"`
				Interactions []model.InteractionEvent `json:"interactions"`
			}

			limit, _ := cmd.Flags().GetInt("limit")
			customerID := parseCustomerID(args[0])

			a := openApp()
			defer a.Close()
			a.requireCustomer(customerID)

			events, err := a.stores.Interactions.ListRecent(a.ctx, customerID, limit)
			if err != nil {
				fail("Failed to list interactions: %v", err)
			}
			if jsonOutput {
				if events == nil {
					events = []model.InteractionEvent{}
				}
				printJSON(Result{OK: true, Interactions: events})
				return
			}
			if len(events) == 0 {
				fmt.Printf("No interactions recorded for customer #%d\n", customerID)
				return
			}
			for _, ev := range events {
				when := "unknown date"
				if ev.TimestampKnown {
					when = ev.Timestamp.Local().Format(time.DateTime)
				}
				text := ev.Subject
				if text == "" {
					text = ev.Body
				}
				fmt.Printf("%-19s  %-14s %-13s %s\n", when, ev.Type, ev.Direction, text)
			}
		},
	}
	listCmd.Flags().Int("limit", 10, "Maximum interactions to show (0 for all)")

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func outreachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outreach-log",
		Short: "Log outreach attempts",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Log that a customer was contacted",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK       bool                 `json:"ok"`
				Message  string               `json:"message,omitempty"`
				Outreach model.OutreachRecord `json:"outreach"`
			}

			customerID, _ := cmd.Flags().GetInt64("customer")
			date, _ := cmd.Flags().GetString("date")
			responded, _ := cmd.Flags().GetBool("responded")
			responseType, _ := cmd.Flags().GetString("response-type")
			notes, _ := cmd.Flags().GetString("notes")
			nextDate, _ := cmd.Flags().GetString("next-date")
			nextMonth, _ := cmd.Flags().GetInt("next-month")
			if customerID <= 0 {
				fail("--customer is required")
			}
			if nextMonth < 0 || nextMonth > 12 {
				fail("--next-month must be between 1 and 12")
			}

			rec := model.OutreachRecord{
				CustomerID:       customerID,
				ContactedDate:    time.Now(),
				ResponseReceived: responded,
				ResponseType:     responseType,
				Notes:            notes,
			}
			if date != "" {
				rec.ContactedDate = parseDate("date", date)
			}
			if nextDate != "" {
				t := parseDate("next-date", nextDate)
				rec.NextContactDate = &t
			}
			if nextMonth > 0 {
				m := time.Month(nextMonth)
				rec.NextContactMonth = &m
			}

			a := openApp()
			defer a.Close()
			rec.OwnerID = a.cfg.Owner.ID

			a.requireCustomer(customerID)
			if err := a.stores.Outreach.Create(a.ctx, &rec); err != nil {
				fail("Failed to log outreach: %v", err)
			}

			result := Result{OK: true, Message: "Outreach logged", Outreach: rec}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Logged outreach to customer #%d on %s\n", customerID, rec.ContactedDate.Format(dateLayout))
			}
		},
	}
	addCmd.Flags().Int64("customer", 0, "Customer ID")
	addCmd.Flags().String("date", "", "Contact date (YYYY-MM-DD, default today)")
	addCmd.Flags().Bool("responded", false, "The customer responded")
	addCmd.Flags().String("response-type", "", "Kind of response (e.g. booked, declined)")
	addCmd.Flags().String("notes", "", "Free-form notes")
	addCmd.Flags().String("next-date", "", "Follow up on this date (YYYY-MM-DD)")
	addCmd.Flags().Int("next-month", 0, "Follow up in this month (1-12)")

	cmd.AddCommand(addCmd)
	return cmd
}
