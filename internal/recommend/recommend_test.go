package recommend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
	"github.com/trevor-commits/proactive-outreach-crm/internal/store"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type env struct {
	t      *testing.T
	stores store.Stores
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d, err := db.OpenPath(filepath.Join(t.TempDir(), "outreach.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplySchema(d); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	return &env{t: t, stores: store.New(d)}
}

func (e *env) engine() *Engine {
	s := e.stores
	return NewEngine(s.Customers, s.Services, s.Outreach, s.Interactions, WithClock(func() time.Time { return now }))
}

func (e *env) customer(name string) int64 {
	e.t.Helper()
	c := model.CustomerIdentity{OwnerID: "o1", Name: name}
	if err := e.stores.Customers.Create(context.Background(), &c); err != nil {
		e.t.Fatalf("Create customer: %v", err)
	}
	return c.ID
}

func (e *env) service(customerID int64, name string, date time.Time) {
	e.t.Helper()
	rec := model.ServiceRecord{OwnerID: "o1", CustomerID: customerID, ServiceName: name, ServiceDate: date}
	if err := e.stores.Services.Create(context.Background(), &rec); err != nil {
		e.t.Fatalf("Create service: %v", err)
	}
}

func (e *env) outreach(rec model.OutreachRecord) {
	e.t.Helper()
	rec.OwnerID = "o1"
	if err := e.stores.Outreach.Create(context.Background(), &rec); err != nil {
		e.t.Fatalf("Create outreach: %v", err)
	}
}

func (e *env) recommend(q Query) []model.ScoredCandidate {
	e.t.Helper()
	got, err := e.engine().Recommend(context.Background(), "o1", q)
	if err != nil {
		e.t.Fatalf("Recommend: %v", err)
	}
	return got
}

func scores(cands []model.ScoredCandidate) map[string]int {
	out := map[string]int{}
	for _, c := range cands {
		out[c.Customer.Name] = c.Score
	}
	return out
}

func daysAgo(n int) time.Time { return now.AddDate(0, 0, -n) }

func TestRecommend_Cooldown(t *testing.T) {
	cases := []struct {
		name      string
		contacted int
		responded bool
		present   bool
	}{
		{"unanswered 10 days ago", 10, false, false},
		{"unanswered 59 days ago", 59, false, false},
		{"unanswered 61 days ago", 61, false, true},
		{"answered 10 days ago", 10, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			id := e.customer("Ann")
			e.outreach(model.OutreachRecord{CustomerID: id, ContactedDate: daysAgo(tc.contacted), ResponseReceived: tc.responded})

			_, present := scores(e.recommend(Query{}))["Ann"]
			if present != tc.present {
				t.Fatalf("present=%v want %v", present, tc.present)
			}
		})
	}
}

func TestRecommend_OnlyMostRecentOutreachCounts(t *testing.T) {
	e := newEnv(t)
	id := e.customer("Ann")
	e.outreach(model.OutreachRecord{CustomerID: id, ContactedDate: daysAgo(5), ResponseReceived: true})
	e.outreach(model.OutreachRecord{CustomerID: id, ContactedDate: daysAgo(3)})

	if got := e.recommend(Query{}); len(got) != 0 {
		t.Fatalf("latest outreach is unanswered, got %+v", got)
	}
}

func TestRecommend_Scoring(t *testing.T) {
	e := newEnv(t)
	october := time.October

	seasonal := e.customer("Seasonal")
	e.service(seasonal, "Lawn mowing", time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC))
	e.service(seasonal, "Leaf cleanup", time.Date(2024, 10, 28, 9, 0, 0, 0, time.UTC))
	e.service(seasonal, "Snow removal", time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))

	soon := e.customer("Due soon")
	next := now.AddDate(0, 0, 3)
	e.outreach(model.OutreachRecord{CustomerID: soon, ContactedDate: daysAgo(90), ResponseReceived: true, NextContactDate: &next})

	stacked := e.customer("Stacked")
	e.outreach(model.OutreachRecord{CustomerID: stacked, ContactedDate: daysAgo(90), ResponseReceived: true,
		NextContactDate: &next, NextContactMonth: &october})

	late := e.customer("Too far out")
	far := now.AddDate(0, 0, 8)
	e.outreach(model.OutreachRecord{CustomerID: late, ContactedDate: daysAgo(90), ResponseReceived: true, NextContactDate: &far})

	past := e.customer("Overdue")
	before := now.AddDate(0, 0, -1)
	e.outreach(model.OutreachRecord{CustomerID: past, ContactedDate: daysAgo(90), ResponseReceived: true, NextContactDate: &before})

	want := map[string]int{"Seasonal": 20, "Due soon": 20, "Stacked": 35, "Too far out": 0, "Overdue": 0}
	if diff := cmp.Diff(want, scores(e.recommend(Query{}))); diff != "" {
		t.Fatalf("scores mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommend_KeywordFilter(t *testing.T) {
	e := newEnv(t)
	ann := e.customer("Ann")
	e.service(ann, "Lawn mowing", daysAgo(400))
	e.service(ann, "Gutter cleaning", daysAgo(300))
	bob := e.customer("Bob")
	e.service(bob, "Window washing", daysAgo(100))
	e.customer("No services")

	got := e.recommend(Query{Keyword: " LAWN "})
	if len(got) != 1 || got[0].Customer.ID != ann {
		t.Fatalf("got %+v", got)
	}
	if len(got[0].MatchingServices) != 1 || got[0].MatchingServices[0].ServiceName != "Lawn mowing" {
		t.Fatalf("matching services=%+v", got[0].MatchingServices)
	}

	all := e.recommend(Query{})
	if len(all) != 3 || len(all[0].MatchingServices) != 2 {
		t.Fatalf("unfiltered run=%+v", all)
	}
}

func TestRecommend_LimitAndStableOrder(t *testing.T) {
	e := newEnv(t)
	thisMonth := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	names := []string{"Tie A", "Low", "Top", "Tie B"}
	counts := []int{1, 0, 3, 1}
	for i, name := range names {
		id := e.customer(name)
		for j := 0; j < counts[i]; j++ {
			e.service(id, fmt.Sprintf("Service %d", j), thisMonth)
		}
	}

	top := e.recommend(Query{Limit: 1})
	if len(top) != 1 || top[0].Customer.Name != "Top" || top[0].Score != 30 {
		t.Fatalf("limit=1 returned %+v", top)
	}

	var order []string
	for _, c := range e.recommend(Query{}) {
		order = append(order, c.Customer.Name)
	}
	if diff := cmp.Diff([]string{"Top", "Tie A", "Tie B", "Low"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommend_DaysSinceInteraction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	quiet := e.customer("Quiet")
	chatty := e.customer("Chatty")
	ev := model.InteractionEvent{
		OwnerID: "o1", CustomerID: chatty, Type: model.TypeMessage, Direction: model.DirectionIncoming,
		Timestamp: now.Add(-36 * time.Hour), TimestampKnown: true, Source: model.EventSourceDevice,
	}
	if err := e.stores.Interactions.Create(ctx, &ev); err != nil {
		t.Fatalf("Create interaction: %v", err)
	}

	got := map[int64]model.ScoredCandidate{}
	for _, c := range e.recommend(Query{}) {
		got[c.Customer.ID] = c
	}
	if got[quiet].DaysSinceInteraction != NoInteractionDays || got[quiet].LastInteractionDate != nil {
		t.Fatalf("quiet=%+v", got[quiet])
	}
	if got[chatty].DaysSinceInteraction != 1 || got[chatty].LastInteractionDate == nil {
		t.Fatalf("chatty=%+v", got[chatty])
	}
	if got[chatty].Score != 0 {
		t.Fatalf("recency must not affect score, got %d", got[chatty].Score)
	}
}

type flakyOutreach struct {
	OutreachReader
	failFor int64
}

func (f flakyOutreach) MostRecent(ctx context.Context, customerID int64) (model.OutreachRecord, bool, error) {
	if customerID == f.failFor {
		return model.OutreachRecord{}, false, fmt.Errorf("%w: database is locked", model.ErrStorageUnavailable)
	}
	return f.OutreachReader.MostRecent(ctx, customerID)
}

func TestRecommend_CustomerFailureIsExcluded(t *testing.T) {
	e := newEnv(t)
	bad := e.customer("Broken")
	e.customer("Fine")

	s := e.stores
	engine := NewEngine(s.Customers, s.Services, flakyOutreach{OutreachReader: s.Outreach, failFor: bad}, s.Interactions,
		WithClock(func() time.Time { return now }))
	got, err := engine.Recommend(context.Background(), "o1", Query{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 1 || got[0].Customer.Name != "Fine" {
		t.Fatalf("got %+v", got)
	}
}

type failingLister struct{}

func (failingLister) ListAll(context.Context, string) ([]model.CustomerIdentity, error) {
	return nil, fmt.Errorf("%w: no such table", model.ErrStorageUnavailable)
}

func TestRecommend_StoreOutagePropagates(t *testing.T) {
	e := newEnv(t)
	s := e.stores
	_, err := NewEngine(failingLister{}, s.Services, s.Outreach, s.Interactions).Recommend(context.Background(), "o1", Query{})
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
