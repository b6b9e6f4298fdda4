// Package token issues opaque session tokens whose validity is exactly their
// presence in an expiring key/value store.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"files_manager/server/common/infra/cache"
	commonlog "files_manager/server/common/log"
)

const (
	KeyPrefix = "auth_"
	TTL       = 24 * time.Hour
)

var ErrInvalidOrExpired = errors.New("token: invalid or expired")

type Authority struct {
	store    cache.Store
	newValue func() (string, error)
}

func NewAuthority(store cache.Store) *Authority {
	return &Authority{store: store, newValue: randomValue}
}

func randomValue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func Key(token string) string {
	return KeyPrefix + token
}

// Issue stores a fresh token for userID. Store failures are returned so the
// caller never hands out a token that was not persisted.
func (a *Authority) Issue(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("token: user id is required")
	}
	value, err := a.newValue()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := a.store.Set(ctx, Key(value), userID, TTL); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return value, nil
}

// Resolve returns the owner of token. Missing, expired and unreadable tokens
// all resolve to ok=false. The TTL is never touched.
func (a *Authority) Resolve(ctx context.Context, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	userID, found, err := a.store.Get(ctx, Key(token))
	if err != nil {
		commonlog.Warnf("resolve token: %v", err)
		return "", false
	}
	if !found || userID == "" {
		return "", false
	}
	return userID, true
}

// Revoke deletes token. Revoking an unknown token succeeds.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := a.store.Del(ctx, Key(token)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
