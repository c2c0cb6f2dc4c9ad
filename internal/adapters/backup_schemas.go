package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// BackupSchema adapts one on-device store layout. Detect is given the set of
// table names found in the archive; an adapter that does not produce a record
// kind returns nil for it.
type BackupSchema interface {
	Name() string
	Detect(tables map[string]bool) bool
	ExtractMessages(ctx context.Context, db *sql.DB) ([]model.RawRecord, error)
	ExtractCalls(ctx context.Context, db *sql.DB) ([]model.RawRecord, error)
}

// DefaultSchemas returns the layouts understood out of the box, in detection order.
func DefaultSchemas() []BackupSchema {
	return []BackupSchema{smsSchema{}, callHistorySchema{}, legacyCallSchema{}}
}

// smsSchema reads Library/SMS/sms.db.
type smsSchema struct{}

func (smsSchema) Name() string { return "sms.db" }

func (smsSchema) Detect(tables map[string]bool) bool {
	return tables["message"] && tables["handle"]
}

func (smsSchema) ExtractMessages(ctx context.Context, db *sql.DB) ([]model.RawRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT message.ROWID, message.text, message.date, message.is_from_me, handle.id AS handle_id
		FROM message
		LEFT JOIN handle ON message.handle_id = handle.ROWID
		WHERE message.text IS NOT NULL
		ORDER BY message.date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var (
			rowID    int64
			text     string
			date     sql.NullFloat64
			fromMe   sql.NullInt64
			handleID sql.NullString
		)
		if err := rows.Scan(&rowID, &text, &date, &fromMe, &handleID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		// No handle means no way to reach the contact.
		if !handleID.Valid || handleID.String == "" {
			continue
		}
		ts, known := AppleTime(date.Float64)
		dir := model.DirectionIncoming
		if fromMe.Int64 == 1 {
			dir = model.DirectionOutgoing
		}
		out = append(out, model.RawRecord{
			Source:         model.SourceDeviceMessage,
			Identity:       handleID.String,
			Timestamp:      ts,
			TimestampKnown: known,
			Text:           text,
			Direction:      dir,
			Metadata:       map[string]any{"rowid": rowID},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return out, nil
}

func (smsSchema) ExtractCalls(context.Context, *sql.DB) ([]model.RawRecord, error) {
	return nil, nil
}

// callHistorySchema reads the Core Data store
// Library/CallHistoryDB/CallHistory.storedata (iOS 8 and later).
type callHistorySchema struct{}

func (callHistorySchema) Name() string { return "CallHistory.storedata" }

func (callHistorySchema) Detect(tables map[string]bool) bool {
	return tables["ZCALLRECORD"] && tables["Z_2REMOTEPARTICIPANTHANDLES"] && tables["ZHANDLE"]
}

func (callHistorySchema) ExtractMessages(context.Context, *sql.DB) ([]model.RawRecord, error) {
	return nil, nil
}

func (callHistorySchema) ExtractCalls(ctx context.Context, db *sql.DB) ([]model.RawRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT h.ZVALUE AS phone, c.ZDATE AS date, c.ZDURATION AS duration, c.ZORIGINATED AS is_outgoing
		FROM ZCALLRECORD c
		JOIN Z_2REMOTEPARTICIPANTHANDLES l ON l.Z_2REMOTEPARTICIPANTCALLS = c.Z_PK
		JOIN ZHANDLE h ON h.Z_PK = l.Z_4REMOTEPARTICIPANTHANDLES
		WHERE h.ZVALUE IS NOT NULL
		ORDER BY c.ZDATE DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var (
			value      string
			date, secs sql.NullFloat64
			originated sql.NullInt64
		)
		if err := rows.Scan(&value, &date, &secs, &originated); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		if value == "" {
			continue
		}
		ts, known := AppleTime(date.Float64)
		out = append(out, callRecord(value, ts, known, secs.Float64, originated.Int64 == 1))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call history: %w", err)
	}
	return out, nil
}

// legacyCallSchema reads call_history.db from pre-iOS 8 backups. Dates are
// Unix seconds and bit 0 of flags marks an outgoing call.
type legacyCallSchema struct{}

func (legacyCallSchema) Name() string { return "call_history.db" }

func (legacyCallSchema) Detect(tables map[string]bool) bool {
	return tables["call"] && !tables["ZCALLRECORD"]
}

func (legacyCallSchema) ExtractMessages(context.Context, *sql.DB) ([]model.RawRecord, error) {
	return nil, nil
}

func (legacyCallSchema) ExtractCalls(ctx context.Context, db *sql.DB) ([]model.RawRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT address, date, duration, flags
		FROM call
		WHERE address IS NOT NULL AND address != ''
		ORDER BY date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy call history: %w", err)
	}
	defer rows.Close()

	var out []model.RawRecord
	for rows.Next() {
		var (
			address string
			date    sql.NullInt64
			secs    sql.NullFloat64
			flags   sql.NullInt64
		)
		if err := rows.Scan(&address, &date, &secs, &flags); err != nil {
			return nil, fmt.Errorf("failed to scan legacy call: %w", err)
		}
		ts, known := time.Unix(0, 0).UTC(), false
		if date.Valid && date.Int64 != 0 {
			ts, known = time.Unix(date.Int64, 0).UTC(), true
		}
		out = append(out, callRecord(address, ts, known, secs.Float64, flags.Int64&1 == 1))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read legacy call history: %w", err)
	}
	return out, nil
}

func callRecord(identity string, ts time.Time, known bool, seconds float64, outgoing bool) model.RawRecord {
	dir := model.DirectionIncoming
	if outgoing {
		dir = model.DirectionOutgoing
	}
	return model.RawRecord{
		Source:          model.SourceDeviceCall,
		Identity:        identity,
		Timestamp:       ts,
		TimestampKnown:  known,
		Direction:       dir,
		DurationSeconds: int(seconds),
	}
}
