package session

import (
	"context"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// Store persists one token set per client. The value returned by Save is what
// the client holds (the session cookie); Load and Delete take it back.
type Store interface {
	// Save stores ts and returns the client-held value. previous is the
	// value the client currently holds, or "" for a new session.
	Save(ctx context.Context, previous string, ts model.TokenSet) (string, error)

	// Load returns the token set for value, or ErrNoSession.
	Load(ctx context.Context, value string) (*model.TokenSet, error)

	// Delete destroys the session. Deleting an unknown session is not an error.
	Delete(ctx context.Context, value string) error
}

// CookieStore keeps the whole token set inside the signed artifact.
type CookieStore struct {
	codec *Codec
}

// NewCookieStore returns a Store whose values are self-contained artifacts.
func NewCookieStore(codec *Codec) *CookieStore {
	return &CookieStore{codec: codec}
}

func (s *CookieStore) Save(_ context.Context, _ string, ts model.TokenSet) (string, error) {
	return s.codec.Encode(ts)
}

func (s *CookieStore) Load(_ context.Context, value string) (*model.TokenSet, error) {
	ts, ok := s.codec.Decode(value)
	if !ok {
		return nil, ErrNoSession
	}
	return ts, nil
}

// Delete is a no-op: the artifact carries no server state, clearing the
// cookie is the whole of logout.
func (s *CookieStore) Delete(context.Context, string) error {
	return nil
}
