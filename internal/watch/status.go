package watch

import (
	"context"
	"strconv"
	"time"
)

const (
	statusRunning = "running"
	statusStopped = "stopped"
	statusError   = "error"

	keyStatus        = "watch_status"
	keyLastHeartbeat = "watch_last_heartbeat"
	keyLastError     = "watch_last_error"
	keyRestarts      = "watch_restarts"
	keyLastScan      = "watch_last_scan"
	keyImports       = "watch_imports"
)

// StateStore is the key/value state the watcher reports into.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Status records watcher health so another process can report it.
// A nil *Status records nothing.
type Status struct {
	store StateStore
	now   func() time.Time
}

func NewStatus(store StateStore) *Status {
	return &Status{store: store, now: time.Now}
}

// Report is the persisted watcher state.
type Report struct {
	Status        string `json:"status,omitempty"`
	LastHeartbeat *int64 `json:"last_heartbeat,omitempty"`
	LastScan      *int64 `json:"last_scan,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	Restarts      int    `json:"restarts,omitempty"`
	Imports       int    `json:"imports,omitempty"`
}

func (s *Status) set(ctx context.Context, status string, err error) {
	if s == nil {
		return
	}
	_ = s.store.Set(ctx, keyStatus, status)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	_ = s.store.Set(ctx, keyLastError, msg)
	if status == statusRunning {
		s.beat(ctx)
	}
}

func (s *Status) beat(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.store.Set(ctx, keyLastHeartbeat, strconv.FormatInt(s.now().Unix(), 10))
}

func (s *Status) incrementRestarts(ctx context.Context) {
	if s == nil {
		return
	}
	s.increment(ctx, keyRestarts)
}

func (s *Status) markScan(ctx context.Context, err error) {
	if s == nil {
		return
	}
	_ = s.store.Set(ctx, keyLastScan, strconv.FormatInt(s.now().Unix(), 10))
	if err != nil {
		_ = s.store.Set(ctx, keyLastError, err.Error())
		return
	}
	_ = s.store.Set(ctx, keyLastError, "")
	s.increment(ctx, keyImports)
}

func (s *Status) increment(ctx context.Context, key string) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return
	}
	cur := 0
	if ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cur = n
		}
	}
	_ = s.store.Set(ctx, key, strconv.Itoa(cur+1))
}

// Read returns the last recorded state.
func (s *Status) Read(ctx context.Context) Report {
	var r Report
	if s == nil {
		return r
	}
	if v, ok, _ := s.store.Get(ctx, keyStatus); ok {
		r.Status = v
	}
	r.LastHeartbeat = s.readUnix(ctx, keyLastHeartbeat)
	r.LastScan = s.readUnix(ctx, keyLastScan)
	if v, ok, _ := s.store.Get(ctx, keyLastError); ok {
		r.LastError = v
	}
	r.Restarts = s.readInt(ctx, keyRestarts)
	r.Imports = s.readInt(ctx, keyImports)
	return r
}

func (s *Status) readUnix(ctx context.Context, key string) *int64 {
	v, ok, _ := s.store.Get(ctx, key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func (s *Status) readInt(ctx context.Context, key string) int {
	v, ok, _ := s.store.Get(ctx, key)
	if !ok || v == "" {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}
