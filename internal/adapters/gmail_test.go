package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

func testSession(t *testing.T, srv *httptest.Server) *GoogleSession {
	t.Helper()
	return NewGoogleSession("o1", srv.Client(), option.WithEndpoint(srv.URL+"/"))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestGmailSource_Fetch(t *testing.T) {
	var (
		listQuery string
		m2Calls   atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/profile"):
			writeJSON(w, 200, `{"emailAddress":"Owner@Example.com"}`)
		case strings.HasSuffix(r.URL.Path, "/messages"):
			listQuery = r.URL.Query().Get("q")
			if r.URL.Query().Get("maxResults") != "100" {
				t.Errorf("maxResults=%q", r.URL.Query().Get("maxResults"))
			}
			writeJSON(w, 200, `{"messages":[{"id":"m1"},{"id":"m2"},{"id":"gone"}]}`)
		case strings.HasSuffix(r.URL.Path, "/messages/m1"):
			if r.URL.Query().Get("format") != "metadata" {
				t.Errorf("format=%q", r.URL.Query().Get("format"))
			}
			writeJSON(w, 200, `{"id":"m1","threadId":"t1","snippet":"see you tuesday","internalDate":"1600000000000",
				"payload":{"headers":[
					{"name":"From","value":"Pat Owner <owner@example.com>"},
					{"name":"To","value":"ann@example.com"},
					{"name":"Subject","value":"Quote"},
					{"name":"Date","value":"Mon, 02 Mar 2026 15:04:05 +0000"}]}}`)
		case strings.HasSuffix(r.URL.Path, "/messages/m2"):
			if m2Calls.Add(1) == 1 {
				writeJSON(w, 429, `{"error":{"code":429,"message":"slow down","errors":[{"reason":"rateLimitExceeded"}]}}`)
				return
			}
			writeJSON(w, 200, `{"id":"m2","snippet":"thanks!","internalDate":"1700000000000",
				"payload":{"headers":[{"name":"From","value":"Ann <ann@example.com>"},{"name":"Subject","value":"Re: Quote"}]}}`)
		case strings.HasSuffix(r.URL.Path, "/messages/gone"):
			writeJSON(w, 404, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGmailSource(ctx, testSession(t, srv), GmailOptions{QPS: 1000, Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewGmailSource: %v", err)
	}
	windowStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := g.Fetch(ctx, " Ann@Example.com", Window{Start: windowStart, End: windowStart.AddDate(1, 0, 0)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	wantQuery := fmt.Sprintf("{from:ann@example.com OR to:ann@example.com} after:%d", windowStart.Unix())
	if listQuery != wantQuery {
		t.Fatalf("query=%q want %q", listQuery, wantQuery)
	}
	if len(res.Records) != 2 || len(res.Failures) != 1 || res.Failures[0].Key != "gone" {
		t.Fatalf("records=%d failures=%+v", len(res.Records), res.Failures)
	}
	if m2Calls.Load() != 2 {
		t.Fatalf("rate limited message fetched %d times, want 2", m2Calls.Load())
	}

	sent := res.Records[0]
	if sent.Direction != model.DirectionOutgoing || sent.Subject != "Quote" || sent.Text != "see you tuesday" {
		t.Fatalf("unexpected sent record: %+v", sent)
	}
	if !sent.Timestamp.Equal(time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)) || !sent.TimestampKnown {
		t.Fatalf("Date header not used: %v", sent.Timestamp)
	}
	if sent.Identity != "ann@example.com" || sent.Source != model.SourceMailbox {
		t.Fatalf("unexpected identity/source: %+v", sent)
	}

	received := res.Records[1]
	if received.Direction != model.DirectionIncoming {
		t.Fatalf("reply should be incoming: %+v", received)
	}
	if !received.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("internalDate fallback not used: %v", received.Timestamp)
	}
}

func TestGmailSource_FetchReadsMessagesConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/profile"):
			writeJSON(w, 200, `{"emailAddress":"owner@example.com"}`)
		case strings.HasSuffix(r.URL.Path, "/messages"):
			writeJSON(w, 200, `{"messages":[{"id":"m0"},{"id":"m1"},{"id":"m2"},{"id":"m3"},{"id":"m4"},{"id":"m5"}]}`)
		default:
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			inFlight.Add(-1)
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			writeJSON(w, 200, fmt.Sprintf(`{"id":%q,"snippet":%q,"internalDate":"1700000000000"}`, id, id))
		}
	}))
	defer srv.Close()

	g, err := NewGmailSource(context.Background(), testSession(t, srv), GmailOptions{QPS: 1000, Workers: 3, Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewGmailSource: %v", err)
	}
	res, err := g.Fetch(context.Background(), "ann@example.com", LookbackWindow(time.Now(), 30))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Records) != 6 {
		t.Fatalf("records=%d", len(res.Records))
	}
	for i, rec := range res.Records {
		if want := fmt.Sprintf("m%d", i); rec.Text != want {
			t.Fatalf("record %d text=%q want %q", i, rec.Text, want)
		}
	}
	if p := peak.Load(); p < 2 || p > 3 {
		t.Fatalf("peak concurrent reads=%d, want 2..3", p)
	}
}

func TestGmailSource_MessageUnauthorizedStopsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/profile"):
			writeJSON(w, 200, `{"emailAddress":"owner@example.com"}`)
		case strings.HasSuffix(r.URL.Path, "/messages"):
			writeJSON(w, 200, `{"messages":[{"id":"m1"}]}`)
		default:
			writeJSON(w, 401, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
		}
	}))
	defer srv.Close()

	g, err := NewGmailSource(context.Background(), testSession(t, srv), GmailOptions{Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewGmailSource: %v", err)
	}
	_, err = g.Fetch(context.Background(), "ann@example.com", LookbackWindow(time.Now(), 30))
	if !errors.Is(err, model.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestGmailSource_UnauthorizedIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	}))
	defer srv.Close()

	g, err := NewGmailSource(context.Background(), testSession(t, srv), GmailOptions{Retry: fastRetry()})
	if err != nil {
		t.Fatalf("NewGmailSource: %v", err)
	}
	_, err = g.Fetch(context.Background(), "ann@example.com", LookbackWindow(time.Now(), 30))
	if !errors.Is(err, model.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	w := LookbackWindow(now, 0)
	if !w.Start.Equal(now.AddDate(0, 0, -DefaultLookbackDays)) || !w.End.Equal(now) {
		t.Fatalf("default window=%+v", w)
	}
	if w := LookbackWindow(now, 7); !w.Start.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("7 day window=%+v", w)
	}
}
