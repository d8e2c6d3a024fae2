package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"datacore/pkg/domain"
)

// Store persists review tokens. Implementations must treat tokens as
// opaque strings and never derive anything from their contents.
type Store interface {
	Put(ctx context.Context, token domain.ReviewToken) error
	Get(ctx context.Context, token string) (domain.ReviewToken, bool, error)
	Delete(ctx context.Context, token string) error
}

// Gate issues and resolves review tokens. A token grants read access to
// exactly one private dataset and carries no other rights.
type Gate struct {
	store Store
	nowFn func() time.Time
}

func NewGate(store Store) *Gate {
	return &Gate{store: store, nowFn: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source. Intended for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.nowFn = now
	return g
}

// Issue mints a fresh token for the dataset and stores it.
func (g *Gate) Issue(ctx context.Context, datasetID, creatorID string) (domain.ReviewToken, error) {
	raw, err := randomToken()
	if err != nil {
		return domain.ReviewToken{}, domain.TechnicalError{Op: "tokens.issue", Err: err}
	}
	token := domain.ReviewToken{
		Token:     raw,
		DatasetID: datasetID,
		CreatorID: creatorID,
		CreatedAt: g.nowFn(),
	}
	if err := g.store.Put(ctx, token); err != nil {
		return domain.ReviewToken{}, domain.TechnicalError{Op: "tokens.issue", Err: err}
	}
	return token, nil
}

// Resolve looks up a presented token. A missing token is not an error,
// the second return reports presence.
func (g *Gate) Resolve(ctx context.Context, token string) (domain.ReviewToken, bool, error) {
	if token == "" {
		return domain.ReviewToken{}, false, nil
	}
	tok, ok, err := g.store.Get(ctx, token)
	if err != nil {
		return domain.ReviewToken{}, false, domain.TechnicalError{Op: "tokens.resolve", Err: err}
	}
	return tok, ok, nil
}

// Revoke removes a token. Revoking an unknown token is a no-op.
func (g *Gate) Revoke(ctx context.Context, token string) error {
	if err := g.store.Delete(ctx, token); err != nil {
		return domain.TechnicalError{Op: "tokens.revoke", Err: err}
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
