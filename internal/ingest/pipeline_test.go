package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/trevor-commits/proactive-outreach-crm/internal/adapters"
	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
	"github.com/trevor-commits/proactive-outreach-crm/internal/store"
)

func openTestStores(t *testing.T) store.Stores {
	t.Helper()
	d, err := db.OpenPath(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplySchema(d); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	return store.New(d)
}

func addCustomer(t *testing.T, s store.Stores, c model.CustomerIdentity) model.CustomerIdentity {
	t.Helper()
	if c.OwnerID == "" {
		c.OwnerID = "o1"
	}
	if err := s.Customers.Create(context.Background(), &c); err != nil {
		t.Fatalf("Create customer: %v", err)
	}
	return c
}

var march = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func TestIngestRecords_MatchesDeviceRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "+1 (555) 123-4567"})

	messages := []model.RawRecord{{
		Source: model.SourceDeviceMessage, Identity: "5551234567", Timestamp: march, TimestampKnown: true,
		Text: "hi", Direction: model.DirectionOutgoing,
	}}
	calls := []model.RawRecord{{
		Source: model.SourceDeviceCall, Identity: "+15551234567", Timestamp: march.Add(time.Hour), TimestampKnown: true,
		Direction: model.DirectionIncoming, DurationSeconds: 42,
	}}

	p := NewPipeline(s.Customers, s.Interactions)
	res, err := p.IngestRecords(ctx, "o1", messages, calls)
	if err != nil {
		t.Fatalf("IngestRecords: %v", err)
	}
	if res.Matched != 2 || res.Unmatched != 0 || len(res.Failures) != 0 {
		t.Fatalf("result=%+v", res)
	}

	events, err := s.Interactions.ListByCustomer(ctx, ann.ID)
	if err != nil {
		t.Fatalf("ListByCustomer: %v", err)
	}
	want := []model.InteractionEvent{
		{
			OwnerID: "o1", CustomerID: ann.ID, Type: model.TypeCall, Direction: model.DirectionIncoming,
			Timestamp: march.Add(time.Hour), TimestampKnown: true, Body: "Call duration: 42 seconds",
			Source: model.EventSourceDevice, Metadata: map[string]any{"duration": float64(42)},
		},
		{
			OwnerID: "o1", CustomerID: ann.ID, Type: model.TypeMessage, Direction: model.DirectionOutgoing,
			Timestamp: march, TimestampKnown: true, Body: "hi", Source: model.EventSourceDevice,
		},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(model.InteractionEvent{}, "ID", "CreatedAt"),
		cmpopts.EquateApproxTime(time.Millisecond),
	}
	if diff := cmp.Diff(want, events, opts); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestRecords_UnmatchedCreatesNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})

	records := []model.RawRecord{
		{Source: model.SourceDeviceMessage, Identity: "+15559999999", Timestamp: march, TimestampKnown: true, Text: "wrong number"},
		{Source: model.SourceDeviceMessage, Identity: "stranger@example.com", Timestamp: march, TimestampKnown: true, Text: "hello"},
		{Source: model.SourceDeviceMessage, Identity: "Shortcode", Timestamp: march, TimestampKnown: true, Text: "promo"},
	}
	res, err := NewPipeline(s.Customers, s.Interactions).IngestRecords(ctx, "o1", records, nil)
	if err != nil {
		t.Fatalf("IngestRecords: %v", err)
	}
	if res.Matched != 0 || res.Unmatched != 3 {
		t.Fatalf("result=%+v", res)
	}
	events, _ := s.Interactions.ListByCustomer(ctx, ann.ID)
	if len(events) != 0 {
		t.Fatalf("unmatched records created %d events", len(events))
	}
}

func TestResolve_EmailHandleAndOwnerScope(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	bob := addCustomer(t, s, model.CustomerIdentity{Name: "Bob", Email: "bob@example.com"})
	addCustomer(t, s, model.CustomerIdentity{OwnerID: "o2", Name: "Other Bob", Email: "bob2@example.com"})

	p := NewPipeline(s.Customers, s.Interactions)
	got, ok, err := p.Resolve(ctx, "o1", " BOB@Example.com ")
	if err != nil || !ok || got.ID != bob.ID {
		t.Fatalf("Resolve email=%+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := p.Resolve(ctx, "o1", "bob2@example.com"); ok {
		t.Fatalf("resolved another owner's customer")
	}
	if _, ok, _ := p.Resolve(ctx, "o1", ""); ok {
		t.Fatalf("empty token must not resolve")
	}
}

func TestIngestRecords_UnknownTimestampIsFlagged(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	ann := addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})

	rec := model.RawRecord{Source: model.SourceDeviceMessage, Identity: "5551234567", Timestamp: time.Unix(0, 0).UTC(), Text: "?"}
	if _, err := NewPipeline(s.Customers, s.Interactions).IngestRecords(ctx, "o1", []model.RawRecord{rec}, nil); err != nil {
		t.Fatalf("IngestRecords: %v", err)
	}
	events, _ := s.Interactions.ListByCustomer(ctx, ann.ID)
	if len(events) != 1 || events[0].TimestampKnown || events[0].Metadata["timestamp_unknown"] != true {
		t.Fatalf("events=%+v", events)
	}
	if _, ok, _ := s.Interactions.MostRecentTimestamp(ctx, ann.ID); ok {
		t.Fatalf("unknown timestamp must not count as a last interaction")
	}
}

// scriptedWriter fails the nth Create call with err.
type scriptedWriter struct {
	failAt int
	err    error
	calls  int
	stored []model.InteractionEvent
}

func (w *scriptedWriter) Create(_ context.Context, ev *model.InteractionEvent) error {
	w.calls++
	if w.calls == w.failAt {
		return w.err
	}
	w.stored = append(w.stored, *ev)
	return nil
}

func deviceMessages(n int, handle string) []model.RawRecord {
	out := make([]model.RawRecord, n)
	for i := range out {
		out[i] = model.RawRecord{
			Source: model.SourceDeviceMessage, Identity: handle, Timestamp: march.Add(time.Duration(i) * time.Minute),
			TimestampKnown: true, Text: fmt.Sprintf("msg %d", i), Direction: model.DirectionIncoming,
		}
	}
	return out
}

func TestIngestRecords_RejectedRecordIsSkipped(t *testing.T) {
	s := openTestStores(t)
	addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})
	w := &scriptedWriter{failAt: 2, err: fmt.Errorf("%w: CHECK constraint failed", model.ErrInvalidRecord)}

	res, err := NewPipeline(s.Customers, w).IngestRecords(context.Background(), "o1", deviceMessages(3, "5551234567"), nil)
	if err != nil {
		t.Fatalf("IngestRecords: %v", err)
	}
	if res.Matched != 2 || len(res.Failures) != 1 || res.Failures[0].Key != "device-message#1" {
		t.Fatalf("result=%+v", res)
	}
}

func TestIngestRecords_StorageFailureAborts(t *testing.T) {
	s := openTestStores(t)
	addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})
	w := &scriptedWriter{failAt: 2, err: fmt.Errorf("%w: disk I/O error", model.ErrStorageUnavailable)}

	res, err := NewPipeline(s.Customers, w).IngestRecords(context.Background(), "o1", deviceMessages(5, "5551234567"), nil)
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if res.Matched != 1 || w.calls != 2 {
		t.Fatalf("batch did not stop at the outage: result=%+v calls=%d", res, w.calls)
	}
}

func TestEventFromRecord_RemoteSources(t *testing.T) {
	mail, err := EventFromRecord("o1", 7, model.RawRecord{
		Source: model.SourceMailbox, Identity: "ann@example.com", Timestamp: march, TimestampKnown: true,
		Subject: "Quote", Text: "snippet", Direction: model.DirectionOutgoing, Metadata: map[string]any{"message_id": "m1"},
	})
	if err != nil {
		t.Fatalf("EventFromRecord mail: %v", err)
	}
	if mail.Type != model.TypeEmail || mail.Source != model.EventSourceGmail || mail.Subject != "Quote" || mail.Metadata["message_id"] != "m1" {
		t.Fatalf("mail event=%+v", mail)
	}

	cal, err := EventFromRecord("o1", 7, model.RawRecord{Source: model.SourceCalendar, Timestamp: march, TimestampKnown: true, Subject: "Visit"})
	if err != nil {
		t.Fatalf("EventFromRecord calendar: %v", err)
	}
	if cal.Type != model.TypeCalendarEvent || cal.Direction != model.DirectionBidirectional || cal.Metadata != nil {
		t.Fatalf("calendar event=%+v", cal)
	}

	if _, err := EventFromRecord("o1", 7, model.RawRecord{Source: "fax"}); !errors.Is(err, model.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for unknown source, got %v", err)
	}
}

type fakeExtractor struct {
	ext adapters.Extraction
	err error
}

func (f fakeExtractor) Extract(context.Context, string, string) (adapters.Extraction, error) {
	return f.ext, f.err
}

func TestImporter_RecordsRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	addCustomer(t, s, model.CustomerIdentity{Name: "Ann", Phone: "5551234567"})

	ext := adapters.Extraction{
		Messages: deviceMessages(2, "5551234567"),
		Calls:    []model.RawRecord{{Source: model.SourceDeviceCall, Identity: "+15550000000", Timestamp: march, TimestampKnown: true}},
	}
	im := NewImporter(fakeExtractor{ext: ext}, NewPipeline(s.Customers, s.Interactions), s.DataSources)
	res, err := im.Import(ctx, "o1", "sms.db", "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Messages != 2 || res.Calls != 1 || res.Matched != 2 || res.Unmatched != 1 {
		t.Fatalf("result=%+v", res)
	}

	runs, err := s.DataSources.List(ctx, "o1", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs=%+v err=%v", runs, err)
	}
	run := runs[0]
	if run.ID != res.DataSourceID || run.Status != model.StatusCompleted || run.SourceType != model.DataSourceBackup {
		t.Fatalf("run=%+v", run)
	}
	if run.LastSyncDate == nil || run.Metadata["matched"] != float64(2) {
		t.Fatalf("run bookkeeping=%+v", run)
	}
}

func TestImporter_ExtractionFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	s := openTestStores(t)
	boom := fmt.Errorf("%w: no known schema", model.ErrExtraction)

	im := NewImporter(fakeExtractor{err: boom}, NewPipeline(s.Customers, s.Interactions), s.DataSources)
	if _, err := im.Import(ctx, "o1", "junk.db", ""); !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	runs, _ := s.DataSources.List(ctx, "o1", 10)
	if len(runs) != 1 || runs[0].Status != model.StatusFailed || runs[0].ErrorMessage == "" {
		t.Fatalf("runs=%+v", runs)
	}
}
