package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"

	"github.com/trevor-commits/proactive-outreach-crm/internal/identity"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// GmailSource finds mail exchanged with a target address.
type GmailSource struct {
	svc     *gmail.Service
	opts    GmailOptions
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	owner string
}

type GmailOptions struct {
	MaxResults int64
	QPS        float64
	Workers    int
	Retry      RetryPolicy
	Now        func() time.Time
}

func (o GmailOptions) withDefaults() GmailOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = 100
	}
	if o.QPS <= 0 {
		o.QPS = 5
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

func NewGmailSource(ctx context.Context, session *GoogleSession, opts GmailOptions) (*GmailSource, error) {
	svc, err := gmail.NewService(ctx, session.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	opts = opts.withDefaults()
	return &GmailSource{svc: svc, opts: opts, limiter: newLimiter(opts.QPS), now: opts.Now}, nil
}

func (g *GmailSource) Name() string { return "gmail" }

// OwnerAddress returns the account's own verified address, lowercased.
func (g *GmailSource) OwnerAddress(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owner != "" {
		return g.owner, nil
	}
	profile, err := callWithRetry(ctx, g.limiter, g.opts.Retry, func() (*gmail.Profile, error) {
		return g.svc.Users.GetProfile("me").Context(ctx).Do()
	})
	if err != nil {
		return "", classifyGoogleErr("read gmail profile", err)
	}
	g.owner = identity.NormalizeEmail(profile.EmailAddress)
	return g.owner, nil
}

// Fetch lists messages from or to target after the window start and reads
// their From/To/Subject/Date headers. Messages that cannot be read are
// skipped.
func (g *GmailSource) Fetch(ctx context.Context, target string, window Window) (FetchResult, error) {
	start := time.Now()
	target = identity.NormalizeEmail(target)
	if target == "" {
		return FetchResult{}, fmt.Errorf("target address is required")
	}
	owner, err := g.OwnerAddress(ctx)
	if err != nil {
		return FetchResult{}, err
	}

	query := fmt.Sprintf("{from:%s OR to:%s} after:%d", target, target, window.Start.Unix())
	list, err := callWithRetry(ctx, g.limiter, g.opts.Retry, func() (*gmail.ListMessagesResponse, error) {
		return g.svc.Users.Messages.List("me").Q(query).MaxResults(g.opts.MaxResults).Context(ctx).Do()
	})
	if err != nil {
		return FetchResult{}, classifyGoogleErr("list gmail messages", err)
	}

	refs := list.Messages
	msgs := make([]*gmail.Message, len(refs))
	errs := make([]error, len(refs))
	var pool errgroup.Group
	pool.SetLimit(g.opts.Workers)
	for i, ref := range refs {
		pool.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			msgs[i], errs[i] = callWithRetry(ctx, g.limiter, g.opts.Retry, func() (*gmail.Message, error) {
				return g.svc.Users.Messages.Get("me", ref.Id).
					Format("metadata").
					MetadataHeaders("From", "To", "Subject", "Date").
					Context(ctx).
					Do()
			})
			return nil
		})
	}
	pool.Wait()

	var result FetchResult
	for i, ref := range refs {
		if err := errs[i]; err != nil {
			if ctx.Err() != nil {
				continue
			}
			if err := classifyGoogleErr("read gmail message", err); errors.Is(err, model.ErrAuthExpired) {
				result.Duration = time.Since(start)
				return result, err
			}
			logging.From(ctx).Warn("skipping gmail message", "id", ref.Id, "error", err)
			result.skip(ref.Id, err)
			continue
		}
		result.Records = append(result.Records, g.toRecord(target, owner, msgs[i]))
	}
	result.Duration = time.Since(start)
	return result, ctx.Err()
}

func (g *GmailSource) toRecord(target, owner string, msg *gmail.Message) model.RawRecord {
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[strings.ToLower(h.Name)] = h.Value
		}
	}

	dir := model.DirectionIncoming
	if owner != "" && strings.Contains(strings.ToLower(headers["from"]), owner) {
		dir = model.DirectionOutgoing
	}

	ts, known := g.now(), false
	if d, err := mail.ParseDate(headers["date"]); err == nil {
		ts, known = d, true
	} else if msg.InternalDate > 0 {
		ts, known = time.UnixMilli(msg.InternalDate), true
	}

	meta := map[string]any{"message_id": msg.Id}
	if msg.ThreadId != "" {
		meta["thread_id"] = msg.ThreadId
	}
	return model.RawRecord{
		Source:         model.SourceMailbox,
		Identity:       target,
		Timestamp:      ts.UTC(),
		TimestampKnown: known,
		Subject:        headers["subject"],
		Text:           msg.Snippet,
		Direction:      dir,
		Metadata:       meta,
	}
}
