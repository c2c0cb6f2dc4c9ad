// Package ingest resolves candidate records against the address book and
// persists the matches as interaction history.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/identity"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// IdentityStore is the read side of the address book.
type IdentityStore interface {
	FindByPhone(ctx context.Context, ownerID, phone string) (model.CustomerIdentity, bool, error)
	FindByEmail(ctx context.Context, ownerID, email string) (model.CustomerIdentity, bool, error)
	ListAll(ctx context.Context, ownerID string) ([]model.CustomerIdentity, error)
}

// InteractionWriter creates interaction events.
type InteractionWriter interface {
	Create(ctx context.Context, ev *model.InteractionEvent) error
}

// IngestResult is the fold over one batch of records.
type IngestResult struct {
	Matched   int                 `json:"matched"`
	Unmatched int                 `json:"unmatched"`
	Failures  []model.ItemFailure `json:"failures,omitempty"`
	Duration  time.Duration       `json:"-"`
}

// Pipeline matches records to customers and stores interaction events.
type Pipeline struct {
	identities   IdentityStore
	interactions InteractionWriter
}

func NewPipeline(identities IdentityStore, interactions InteractionWriter) *Pipeline {
	return &Pipeline{identities: identities, interactions: interactions}
}

// Resolve finds the customer a raw identity token belongs to. Phone-like
// tokens are looked up by canonical phone first; tokens containing "@" by
// canonical email. A miss is not an error.
func (p *Pipeline) Resolve(ctx context.Context, ownerID, token string) (model.CustomerIdentity, bool, error) {
	if identity.IsPhoneLike(token) {
		c, ok, err := p.identities.FindByPhone(ctx, ownerID, identity.NormalizePhone(token))
		if err != nil || ok {
			return c, ok, err
		}
	}
	if identity.IsEmailLike(token) {
		return p.identities.FindByEmail(ctx, ownerID, identity.NormalizeEmail(token))
	}
	return model.CustomerIdentity{}, false, nil
}

// IngestRecords resolves every message and call record and stores an
// interaction for each match. Records that resolve to no customer count as
// unmatched; records the store rejects are listed in Failures. A storage
// outage stops the batch and returns the tally so far with the error.
func (p *Pipeline) IngestRecords(ctx context.Context, ownerID string, messages, calls []model.RawRecord) (IngestResult, error) {
	start := time.Now()
	var res IngestResult
	log := logging.From(ctx)

	batch := make([]model.RawRecord, 0, len(messages)+len(calls))
	batch = append(batch, messages...)
	batch = append(batch, calls...)

	for i, rec := range batch {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		matched, err := p.ingestOne(ctx, ownerID, rec)
		switch {
		case err == nil && matched:
			res.Matched++
		case err == nil:
			res.Unmatched++
		case errors.Is(err, model.ErrStorageUnavailable):
			res.Duration = time.Since(start)
			return res, err
		default:
			log.Warn("skipping record", "index", i, "source", rec.Source, "error", err)
			res.Failures = append(res.Failures, model.ItemFailure{
				Key:    fmt.Sprintf("%s#%d", rec.Source, i),
				Reason: err.Error(),
			})
		}
	}

	res.Duration = time.Since(start)
	log.Info("ingested records", "owner", ownerID, "matched", res.Matched,
		"unmatched", res.Unmatched, "failed", len(res.Failures))
	return res, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, ownerID string, rec model.RawRecord) (bool, error) {
	customer, ok, err := p.Resolve(ctx, ownerID, rec.Identity)
	if err != nil || !ok {
		return false, err
	}
	if err := p.Record(ctx, ownerID, customer.ID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Record stores rec as an interaction of a customer that is already known.
func (p *Pipeline) Record(ctx context.Context, ownerID string, customerID int64, rec model.RawRecord) error {
	ev, err := EventFromRecord(ownerID, customerID, rec)
	if err != nil {
		return err
	}
	return p.interactions.Create(ctx, &ev)
}

// EventFromRecord maps a raw record onto the interaction it produces.
func EventFromRecord(ownerID string, customerID int64, rec model.RawRecord) (model.InteractionEvent, error) {
	ev := model.InteractionEvent{
		OwnerID:        ownerID,
		CustomerID:     customerID,
		Direction:      rec.Direction,
		Timestamp:      rec.Timestamp,
		TimestampKnown: rec.TimestampKnown,
		Subject:        rec.Subject,
		Body:           rec.Text,
	}
	if ev.Direction == "" {
		ev.Direction = model.DirectionUnknown
	}

	meta := map[string]any{}
	for k, v := range rec.Metadata {
		meta[k] = v
	}

	switch rec.Source {
	case model.SourceDeviceMessage:
		ev.Type, ev.Source = model.TypeMessage, model.EventSourceDevice
	case model.SourceDeviceCall:
		ev.Type, ev.Source = model.TypeCall, model.EventSourceDevice
		ev.Body = fmt.Sprintf("Call duration: %d seconds", rec.DurationSeconds)
		meta["duration"] = rec.DurationSeconds
	case model.SourceMailbox:
		ev.Type, ev.Source = model.TypeEmail, model.EventSourceGmail
	case model.SourceCalendar:
		ev.Type, ev.Source = model.TypeCalendarEvent, model.EventSourceCalendar
		ev.Direction = model.DirectionBidirectional
	default:
		return model.InteractionEvent{}, fmt.Errorf("%w: unknown record source %q", model.ErrInvalidRecord, rec.Source)
	}

	if !rec.TimestampKnown {
		meta["timestamp_unknown"] = true
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	return ev, nil
}
