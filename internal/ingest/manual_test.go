package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

func TestLogManual_StoresNote(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Email: "ann@example.com"})
	p := NewPipeline(s.Customers, s.Interactions)

	ev, err := p.LogManual(ctx, "o1", ManualEntry{CustomerID: ann.ID, At: march, Subject: "Gate code", Body: " 4821 "})
	if err != nil {
		t.Fatalf("LogManual: %v", err)
	}
	if ev.ID == "" || ev.Type != model.TypeNote || ev.Source != model.EventSourceManual || ev.Direction != model.DirectionUnknown {
		t.Fatalf("event=%+v", ev)
	}

	events, err := s.Interactions.ListRecent(ctx, ann.ID, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(events) != 1 || events[0].Body != "4821" || !events[0].Timestamp.Equal(march) || !events[0].TimestampKnown {
		t.Fatalf("events=%+v", events)
	}
	last, ok, err := s.Interactions.MostRecentTimestamp(ctx, ann.ID)
	if err != nil || !ok || !last.Equal(march) {
		t.Fatalf("MostRecentTimestamp=%v ok=%v err=%v", last, ok, err)
	}
}

func TestLogManual_LoggedCall(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})
	p := NewPipeline(s.Customers, s.Interactions)

	ev, err := p.LogManual(ctx, "o1", ManualEntry{
		CustomerID: ann.ID, Type: model.TypeCall, Direction: model.DirectionOutgoing, Body: "Left voicemail",
	})
	if err != nil {
		t.Fatalf("LogManual: %v", err)
	}
	if ev.Type != model.TypeCall || ev.Direction != model.DirectionOutgoing || time.Since(ev.Timestamp) > time.Minute {
		t.Fatalf("event=%+v", ev)
	}
}

func TestLogManual_Rejects(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})
	p := NewPipeline(s.Customers, s.Interactions)

	cases := []struct {
		name  string
		entry ManualEntry
	}{
		{"no customer", ManualEntry{Body: "hi"}},
		{"unknown customer", ManualEntry{CustomerID: 999, Body: "hi"}},
		{"empty", ManualEntry{CustomerID: ann.ID, Subject: "  "}},
		{"bad type", ManualEntry{CustomerID: ann.ID, Type: "fax", Body: "hi"}},
		{"bad direction", ManualEntry{CustomerID: ann.ID, Direction: "sideways", Body: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.LogManual(ctx, "o1", tc.entry); !errors.Is(err, model.ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
	if events, _ := s.Interactions.ListByCustomer(ctx, ann.ID); len(events) != 0 {
		t.Fatalf("rejected entries were stored: %+v", events)
	}
}
