package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fanvue/fanvue-app-starter/internal/model"
	"github.com/fanvue/fanvue-app-starter/internal/session"
)

// RefreshGrace is how long before expiry a token set is refreshed.
const RefreshGrace = 30 * time.Second

// Refresher redeems refresh tokens. *TokenClient implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*model.TokenSet, error)
}

// NeedsRefresh reports whether ts is inside the refresh window and can be
// refreshed at all.
func NeedsRefresh(ts model.TokenSet, now time.Time) bool {
	return ts.RefreshToken != "" && !now.Before(ts.ExpiresAt.Add(-RefreshGrace))
}

// FreshSession is a usable token set. When Rotated is true the caller must
// hand Value back to the client in place of the old session value.
type FreshSession struct {
	Tokens  *model.TokenSet
	Value   string
	Rotated bool
}

// Fetcher loads sessions and refreshes them on the way out.
type Fetcher struct {
	store     session.Store
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(store session.Store, refresher Refresher, logger *slog.Logger) *Fetcher {
	return &Fetcher{store: store, refresher: refresher, logger: logger, now: time.Now}
}

// WithFreshSession returns the session behind value, refreshed when it is
// about to expire. A failed refresh is logged and the stale set returned;
// the downstream call then fails with 401 on its own. Returns
// session.ErrNoSession when value does not name a valid session.
func (f *Fetcher) WithFreshSession(ctx context.Context, value string) (*FreshSession, error) {
	if value == "" {
		return nil, session.ErrNoSession
	}

	ts, err := f.store.Load(ctx, value)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, err
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	fresh := &FreshSession{Tokens: ts, Value: value}
	if !NeedsRefresh(*ts, f.now()) {
		return fresh, nil
	}

	refreshed, err := f.refresher.Refresh(ctx, ts.RefreshToken)
	if err != nil {
		f.logger.Warn("session refresh failed, using stale tokens", slog.String("error", err.Error()))
		return fresh, nil
	}
	merged := merge(*ts, *refreshed)

	newValue, err := f.store.Save(ctx, value, merged)
	if err != nil {
		f.logger.Warn("failed to persist refreshed session", slog.String("error", err.Error()))
		return &FreshSession{Tokens: &merged, Value: value}, nil
	}

	return &FreshSession{Tokens: &merged, Value: newValue, Rotated: true}, nil
}

// merge overlays a refreshed set on the old one, keeping fields the
// provider left out of the refresh response.
func merge(old, refreshed model.TokenSet) model.TokenSet {
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = old.RefreshToken
	}
	if refreshed.Scope == "" {
		refreshed.Scope = old.Scope
	}
	if refreshed.IDToken == "" {
		refreshed.IDToken = old.IDToken
	}
	if refreshed.TokenType == "" {
		refreshed.TokenType = old.TokenType
	}
	return refreshed
}
