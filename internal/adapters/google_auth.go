package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// CredentialStore persists the owner's OAuth credential.
type CredentialStore interface {
	Get(ctx context.Context, ownerID string) (model.Credential, bool, error)
	Upsert(ctx context.Context, cred model.Credential) error
}

// GoogleAuth verifies, refreshes and persists the owner's Google credential.
type GoogleAuth struct {
	config      *oauth2.Config
	creds       CredentialStore
	now         func() time.Time
	serviceOpts []option.ClientOption
}

type GoogleAuthOption func(*GoogleAuth)

// WithClock overrides the clock used to judge token expiry.
func WithClock(now func() time.Time) GoogleAuthOption {
	return func(a *GoogleAuth) { a.now = now }
}

// WithOAuthEndpoint points the token exchange at another server.
func WithOAuthEndpoint(ep oauth2.Endpoint) GoogleAuthOption {
	return func(a *GoogleAuth) { a.config.Endpoint = ep }
}

// WithServiceOptions adds client options to every API service built from a
// session (e.g. option.WithEndpoint).
func WithServiceOptions(opts ...option.ClientOption) GoogleAuthOption {
	return func(a *GoogleAuth) { a.serviceOpts = append(a.serviceOpts, opts...) }
}

func NewGoogleAuth(clientID, clientSecret, redirectURL string, creds CredentialStore, opts ...GoogleAuthOption) *GoogleAuth {
	a := &GoogleAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope, calendar.CalendarReadonlyScope},
		},
		creds: creds,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AuthCodeURL returns the consent page URL. Offline access with a forced
// prompt makes Google issue a refresh token.
func (a *GoogleAuth) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (a *GoogleAuth) Exchange(ctx context.Context, ownerID, code string) error {
	tok, err := a.config.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return a.creds.Upsert(ctx, credentialFromToken(ownerID, tok, ""))
}

// Connect returns an authenticated session for ownerID. An expired access
// token is refreshed and the new credential stored before the session is
// handed out. Without a stored credential, or when expired with no refresh
// token, it fails with model.ErrAuthExpired.
func (a *GoogleAuth) Connect(ctx context.Context, ownerID string) (*GoogleSession, error) {
	cred, ok, err := a.creds.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no Google credential for owner %s", model.ErrAuthExpired, ownerID)
	}

	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry,
	}

	expired := !cred.Expiry.IsZero() && !a.now().Before(cred.Expiry)
	if expired {
		if cred.RefreshToken == "" {
			return nil, fmt.Errorf("%w: access token expired and no refresh token is stored", model.ErrAuthExpired)
		}
		// An empty access token forces the token source to refresh.
		fresh, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err != nil {
			return nil, fmt.Errorf("%w: refresh failed: %w", model.ErrAuthExpired, err)
		}
		if err := a.creds.Upsert(ctx, credentialFromToken(ownerID, fresh, cred.RefreshToken)); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = cred.RefreshToken
		}
		tok = fresh
		logging.From(ctx).Info("refreshed Google credential", "owner", ownerID, "expiry", fresh.Expiry)
	}

	src := &persistingTokenSource{
		ctx:     ctx,
		ownerID: ownerID,
		base:    a.config.TokenSource(ctx, tok),
		creds:   a.creds,
		current: tok.AccessToken,
		refresh: tok.RefreshToken,
	}
	return NewGoogleSession(ownerID, oauth2.NewClient(ctx, src), a.serviceOpts...), nil
}

// persistingTokenSource stores every access token the underlying source
// refreshes during a session.
type persistingTokenSource struct {
	ctx     context.Context
	ownerID string
	base    oauth2.TokenSource
	creds   CredentialStore

	mu      sync.Mutex
	current string
	refresh string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.current {
		return tok, nil
	}
	p.current = tok.AccessToken
	if tok.RefreshToken != "" {
		p.refresh = tok.RefreshToken
	}
	if err := p.creds.Upsert(context.WithoutCancel(p.ctx), credentialFromToken(p.ownerID, tok, p.refresh)); err != nil {
		logging.From(p.ctx).Warn("failed to persist refreshed Google credential", "owner", p.ownerID, "error", err)
	} else {
		logging.From(p.ctx).Info("refreshed Google credential", "owner", p.ownerID, "expiry", tok.Expiry)
	}
	return tok, nil
}

func credentialFromToken(ownerID string, tok *oauth2.Token, fallbackRefresh string) model.Credential {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	var scope string
	if s, ok := tok.Extra("scope").(string); ok {
		scope = s
	}
	return model.Credential{
		OwnerID:      ownerID,
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		Expiry:       tok.Expiry,
		Scope:        scope,
	}
}

// GoogleSession is an authenticated HTTP client for one owner.
type GoogleSession struct {
	OwnerID string
	client  *http.Client
	opts    []option.ClientOption
}

func NewGoogleSession(ownerID string, client *http.Client, opts ...option.ClientOption) *GoogleSession {
	return &GoogleSession{OwnerID: ownerID, client: client, opts: opts}
}

// ClientOptions returns the options used to build API services.
func (s *GoogleSession) ClientOptions() []option.ClientOption {
	out := []option.ClientOption{option.WithHTTPClient(s.client)}
	return append(out, s.opts...)
}

// GoogleConnector builds the Gmail and Calendar sources for a sync run.
type GoogleConnector struct {
	Auth     *GoogleAuth
	Gmail    GmailOptions
	Calendar CalendarOptions
}

func (c *GoogleConnector) Connect(ctx context.Context, ownerID string) (RemoteSources, error) {
	session, err := c.Auth.Connect(ctx, ownerID)
	if err != nil {
		return RemoteSources{}, err
	}
	mail, err := NewGmailSource(ctx, session, c.Gmail)
	if err != nil {
		return RemoteSources{}, err
	}
	cal, err := NewCalendarSource(ctx, session, c.Calendar)
	if err != nil {
		return RemoteSources{}, err
	}
	return RemoteSources{Mail: mail, Calendar: cal}, nil
}
