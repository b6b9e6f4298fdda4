package credentials

import (
	"context"
	"errors"
	"strings"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
)

var (
	ErrNoCredentials      = errors.New("credentials: missing email or password")
	ErrInvalidCredentials = errors.New("credentials: invalid email or password")
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Verifier checks an email/password pair against stored users.
type Verifier struct {
	users  UserStore
	hasher Hasher
}

func NewVerifier(users UserStore, hasher Hasher) *Verifier {
	return &Verifier{users: users, hasher: hasher}
}

// Verify returns the id of the user owning the credentials. Unknown email and
// wrong password both yield ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", ErrNoCredentials
	}
	user, err := v.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	ok, legacy := v.hasher.Verify(user.PasswordHash, password)
	if !ok {
		return "", ErrInvalidCredentials
	}
	if legacy {
		v.upgrade(ctx, user.ID, password)
	}
	return user.ID, nil
}

func (v *Verifier) upgrade(ctx context.Context, userID, password string) {
	hash, err := v.hasher.Hash(password)
	if err != nil {
		commonlog.Warnf("rehash legacy password for user %s: %v", userID, err)
		return
	}
	if err := v.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		commonlog.Warnf("store upgraded password for user %s: %v", userID, err)
		return
	}
	commonlog.Infof("upgraded legacy password digest for user %s", userID)
}
