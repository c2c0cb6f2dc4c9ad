package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// ManualEntry is an interaction the owner records by hand, usually a note.
type ManualEntry struct {
	CustomerID int64
	Type       model.EventType
	Direction  model.Direction
	At         time.Time
	Subject    string
	Body       string
}

var manualTypes = map[model.EventType]bool{
	model.TypeCall:          true,
	model.TypeMessage:       true,
	model.TypeEmail:         true,
	model.TypeCalendarEvent: true,
	model.TypeNote:          true,
}

var manualDirections = map[model.Direction]bool{
	model.DirectionIncoming:      true,
	model.DirectionOutgoing:      true,
	model.DirectionBidirectional: true,
	model.DirectionUnknown:       true,
}

// LogManual stores a hand-entered interaction with source "manual". Type
// defaults to a note and At to now. The caller checks that the customer
// belongs to ownerID.
func (p *Pipeline) LogManual(ctx context.Context, ownerID string, entry ManualEntry) (model.InteractionEvent, error) {
	if entry.CustomerID <= 0 {
		return model.InteractionEvent{}, fmt.Errorf("%w: manual entry without customer", model.ErrInvalidRecord)
	}
	if entry.Type == "" {
		entry.Type = model.TypeNote
	}
	if !manualTypes[entry.Type] {
		return model.InteractionEvent{}, fmt.Errorf("%w: unknown interaction type %q", model.ErrInvalidRecord, entry.Type)
	}
	if entry.Direction == "" {
		entry.Direction = model.DirectionUnknown
	}
	if !manualDirections[entry.Direction] {
		return model.InteractionEvent{}, fmt.Errorf("%w: unknown direction %q", model.ErrInvalidRecord, entry.Direction)
	}
	if strings.TrimSpace(entry.Subject) == "" && strings.TrimSpace(entry.Body) == "" {
		return model.InteractionEvent{}, fmt.Errorf("%w: manual entry needs a subject or body", model.ErrInvalidRecord)
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	ev := model.InteractionEvent{
		OwnerID:        ownerID,
		CustomerID:     entry.CustomerID,
		Type:           entry.Type,
		Direction:      entry.Direction,
		Timestamp:      entry.At.UTC(),
		TimestampKnown: true,
		Subject:        strings.TrimSpace(entry.Subject),
		Body:           strings.TrimSpace(entry.Body),
		Source:         model.EventSourceManual,
	}
	if err := p.interactions.Create(ctx, &ev); err != nil {
		return model.InteractionEvent{}, fmt.Errorf("failed to record manual interaction: %w", err)
	}
	return ev, nil
}
