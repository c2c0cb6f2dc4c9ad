// Package model holds the records shared by extraction, ingestion, storage
// and ranking.
package model

import (
	"errors"
	"time"
)

var (
	// ErrExtraction means an archive could not be read or matched no known schema.
	ErrExtraction = errors.New("archive extraction failed")
	// ErrAuthExpired means the remote credential is unusable and cannot be refreshed.
	ErrAuthExpired = errors.New("remote credential expired")
	// ErrStorageUnavailable wraps failures of the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidRecord means the store rejected a single write (constraint violation).
	ErrInvalidRecord = errors.New("record rejected by store")
	// ErrDuplicateIdentity means another customer already owns the phone or email.
	ErrDuplicateIdentity = errors.New("duplicate customer identity")
)

// SourceKind identifies where a RawRecord came from.
type SourceKind string

const (
	SourceDeviceMessage SourceKind = "device-message"
	SourceDeviceCall    SourceKind = "device-call"
	SourceMailbox       SourceKind = "mailbox"
	SourceCalendar      SourceKind = "calendar"
)

type Direction string

const (
	DirectionIncoming      Direction = "incoming"
	DirectionOutgoing      Direction = "outgoing"
	DirectionBidirectional Direction = "bidirectional"
	DirectionUnknown       Direction = "unknown"
)

// EventType is the persisted interaction type. Device messages are stored as "sms".
type EventType string

const (
	TypeCall          EventType = "call"
	TypeMessage       EventType = "sms"
	TypeEmail         EventType = "email"
	TypeCalendarEvent EventType = "calendar_event"
	TypeNote          EventType = "manual_note"
)

// EventSource names the system an interaction was imported from.
type EventSource string

const (
	EventSourceDevice   EventSource = "iphone"
	EventSourceGmail    EventSource = "gmail"
	EventSourceCalendar EventSource = "google_calendar"
	EventSourceManual   EventSource = "manual"
)

// CustomerIdentity is an address-book entry. Phone and Email are canonical.
type CustomerIdentity struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RawRecord is a candidate interaction produced by an extractor or remote
// adapter before identity resolution.
type RawRecord struct {
	Source          SourceKind
	Identity        string
	Timestamp       time.Time
	TimestampKnown  bool
	Subject         string
	Text            string
	Direction       Direction
	DurationSeconds int
	Metadata        map[string]any
}

// InteractionEvent is a persisted, immutable interaction with a customer.
type InteractionEvent struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	CustomerID     int64          `json:"customer_id"`
	Type           EventType      `json:"type"`
	Direction      Direction      `json:"direction"`
	Timestamp      time.Time      `json:"timestamp"`
	TimestampKnown bool           `json:"timestamp_known"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body,omitempty"`
	Source         EventSource    `json:"source"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type ServiceRecord struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CustomerID  int64     `json:"customer_id"`
	ServiceName string    `json:"service_name"`
	ServiceDate time.Time `json:"service_date"`
	Notes       string    `json:"notes,omitempty"`
}

// OutreachRecord logs one attempt to contact a customer.
type OutreachRecord struct {
	ID               int64       `json:"id"`
	OwnerID          string      `json:"owner_id"`
	CustomerID       int64       `json:"customer_id"`
	ContactedDate    time.Time   `json:"contacted_date"`
	ResponseReceived bool        `json:"response_received"`
	ResponseType     string      `json:"response_type,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	NextContactDate  *time.Time  `json:"next_contact_date,omitempty"`
	NextContactMonth *time.Month `json:"next_contact_month,omitempty"`
}

// Credential is a stored OAuth token pair for the remote mail/calendar service.
type Credential struct {
	OwnerID      string    `json:"owner_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
}

type DataSourceType string

const (
	DataSourceBackup   DataSourceType = "iphone_backup"
	DataSourceGmail    DataSourceType = "gmail"
	DataSourceCalendar DataSourceType = "google_calendar"
)

type DataSourceStatus string

const (
	StatusPending    DataSourceStatus = "pending"
	StatusInProgress DataSourceStatus = "in_progress"
	StatusCompleted  DataSourceStatus = "completed"
	StatusFailed     DataSourceStatus = "failed"
)

// DataSource records one import or sync run.
type DataSource struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"owner_id"`
	SourceType   DataSourceType   `json:"source_type"`
	Status       DataSourceStatus `json:"status"`
	LastSyncDate *time.Time       `json:"last_sync_date,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ItemFailure is one skipped record or customer inside a batch.
type ItemFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// ScoredCandidate is a ranked recommendation. Never persisted.
type ScoredCandidate struct {
	Customer             CustomerIdentity `json:"customer"`
	Score                int              `json:"score"`
	LastOutreach         *OutreachRecord  `json:"last_outreach,omitempty"`
	LastInteractionDate  *time.Time       `json:"last_interaction_date,omitempty"`
	DaysSinceInteraction int              `json:"days_since_interaction"`
	MatchingServices     []ServiceRecord  `json:"matching_services"`
}
