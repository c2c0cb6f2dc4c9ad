// Package recommend ranks customers worth contacting now from their service
// history, outreach log and interaction recency.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

const (
	// CooldownDays is how long an unanswered outreach keeps a customer out of
	// the ranking.
	CooldownDays = 60

	SeasonalServiceBonus  = 10
	NextContactDateBonus  = 20
	NextContactMonthBonus = 15

	// nextContactHorizonDays bounds the next-contact-date bonus, inclusive.
	nextContactHorizonDays = 7

	// NoInteractionDays is reported when a customer has no dated interaction.
	NoInteractionDays = 999

	DefaultLimit = 20
)

type CustomerLister interface {
	ListAll(ctx context.Context, ownerID string) ([]model.CustomerIdentity, error)
}

type ServiceLister interface {
	ListAll(ctx context.Context, ownerID string) ([]model.ServiceRecord, error)
}

type OutreachReader interface {
	MostRecent(ctx context.Context, customerID int64) (model.OutreachRecord, bool, error)
}

type InteractionReader interface {
	MostRecentTimestamp(ctx context.Context, customerID int64) (time.Time, bool, error)
}

// Query narrows a recommendation run.
type Query struct {
	// Keyword keeps customers with at least one service whose name contains
	// it, case-insensitively. Empty keeps everyone.
	Keyword string
	Limit   int
}

type Option func(*Engine)

// WithClock fixes the engine's notion of now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	customers    CustomerLister
	services     ServiceLister
	outreach     OutreachReader
	interactions InteractionReader
	now          func() time.Time
}

func NewEngine(customers CustomerLister, services ServiceLister, outreach OutreachReader, interactions InteractionReader, opts ...Option) *Engine {
	e := &Engine{
		customers:    customers,
		services:     services,
		outreach:     outreach,
		interactions: interactions,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend returns the owner's eligible customers ranked by score, highest
// first, with ties in address-book order. A customer whose lookups fail is
// logged and left out.
func (e *Engine) Recommend(ctx context.Context, ownerID string, q Query) ([]model.ScoredCandidate, error) {
	now := e.now()
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	customers, err := e.customers.ListAll(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	services, err := e.services.ListAll(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	byCustomer := make(map[int64][]model.ServiceRecord)
	for _, s := range services {
		byCustomer[s.CustomerID] = append(byCustomer[s.CustomerID], s)
	}

	log := logging.From(ctx)
	var ranked []model.ScoredCandidate
	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		history := byCustomer[c.ID]
		matching := matchServices(history, keyword)
		if keyword != "" && len(matching) == 0 {
			continue
		}
		cand, ok, err := e.score(ctx, now, c, history)
		if err != nil {
			log.Warn("excluding customer from recommendations", "customer", c.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		cand.MatchingServices = matching
		ranked = append(ranked, cand)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// score returns false when the customer is in cooldown.
func (e *Engine) score(ctx context.Context, now time.Time, c model.CustomerIdentity, history []model.ServiceRecord) (model.ScoredCandidate, bool, error) {
	cand := model.ScoredCandidate{Customer: c, DaysSinceInteraction: NoInteractionDays}

	last, hasOutreach, err := e.outreach.MostRecent(ctx, c.ID)
	if err != nil {
		return cand, false, err
	}
	if hasOutreach {
		if !last.ResponseReceived && daysBetween(last.ContactedDate, now) < CooldownDays {
			return cand, false, nil
		}
		cand.LastOutreach = &last
	}

	for _, s := range history {
		if s.ServiceDate.UTC().Month() == now.Month() {
			cand.Score += SeasonalServiceBonus
		}
	}
	if hasOutreach && last.NextContactDate != nil {
		if d := daysBetween(now, *last.NextContactDate); d >= 0 && d <= nextContactHorizonDays {
			cand.Score += NextContactDateBonus
		}
	}
	if hasOutreach && last.NextContactMonth != nil && *last.NextContactMonth == now.Month() {
		cand.Score += NextContactMonthBonus
	}

	ts, ok, err := e.interactions.MostRecentTimestamp(ctx, c.ID)
	if err != nil {
		return cand, false, err
	}
	if ok {
		cand.LastInteractionDate = &ts
		cand.DaysSinceInteraction = daysBetween(ts, now)
	}
	return cand, true, nil
}

// daysBetween is the whole number of days from a to b, rounded down.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

func matchServices(history []model.ServiceRecord, keyword string) []model.ServiceRecord {
	if keyword == "" {
		return history
	}
	var out []model.ServiceRecord
	for _, s := range history {
		if strings.Contains(strings.ToLower(s.ServiceName), keyword) {
			out = append(out, s)
		}
	}
	return out
}
