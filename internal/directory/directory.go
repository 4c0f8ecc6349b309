// Package directory is the account directory: it maps usernames to user
// ids, checks credentials, and owns the small profile record (emoji). The
// ledger core never touches these records; it only receives user ids that
// the directory resolved.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/kv"
)

// ErrInvalidCredentials is returned by Signin for an unknown username or a
// wrong password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid username or password")

const defaultEmoji = "😊"

// maxUpdateAttempts bounds the retries of a lost profile update.
const maxUpdateAttempts = 8

// User is a directory record. Passwords are stored as bcrypt hashes, never
// in clear text.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"passwordHash"`
	Emoji        string    `json:"emoji"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BalanceInitializer provisions the zeroed balance aggregate for a new
// account. Implemented by the ledger service.
type BalanceInitializer interface {
	InitBalance(ctx context.Context, userID string) error
}

// Directory stores users in the key-value store under "user:<username>"
// with a reverse mapping "userid:<id>" -> username.
type Directory struct {
	kv       kv.Store
	balances BalanceInitializer
}

// New creates a directory over the given key-value store.
func New(store kv.Store, balances BalanceInitializer) *Directory {
	return &Directory{kv: store, balances: balances}
}

func userKey(username string) string {
	return "user:" + username
}

func userIDKey(id string) string {
	return "userid:" + id
}

// Signup creates a new account with a zeroed balance. Username uniqueness
// is enforced by a conditional create, so two concurrent signups for the
// same name produce exactly one account.
func (d *Directory) Signup(ctx context.Context, username, password, emoji string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	if emoji == "" {
		emoji = defaultEmoji
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Emoji:        emoji,
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	err = d.kv.CompareAndSwap(ctx, userKey(username), raw, 0)
	if errors.Is(err, kv.ErrVersionMismatch) {
		return nil, fmt.Errorf("%w: username already exists", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if err := d.kv.Put(ctx, userIDKey(user.ID), []byte(username)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if d.balances != nil {
		if err := d.balances.InitBalance(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Signin checks the credentials and returns the matching user.
func (d *Directory) Signin(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	user, err := d.byUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Lookup resolves a user id to its directory record.
func (d *Directory) Lookup(ctx context.Context, userID string) (*User, error) {
	raw, _, err := d.kv.Get(ctx, userIDKey(userID))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return d.byUsername(ctx, string(raw))
}

// UpdateEmoji replaces the user's profile emoji.
func (d *Directory) UpdateEmoji(ctx context.Context, userID, emoji string) (*User, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", domain.ErrInvalidInput)
	}

	user, err := d.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		raw, version, err := d.kv.Get(ctx, userKey(user.Username))
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}

		var current User
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, fmt.Errorf("%w: corrupt user record for %s: %v", domain.ErrStorage, user.Username, err)
		}
		current.Emoji = emoji

		updated, err := json.Marshal(&current)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		err = d.kv.CompareAndSwap(ctx, userKey(user.Username), updated, version)
		if errors.Is(err, kv.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return &current, nil
	}
	return nil, fmt.Errorf("%w: user record for %s kept changing", domain.ErrStorage, userID)
}

func (d *Directory) byUsername(ctx context.Context, username string) (*User, error) {
	raw, _, err := d.kv.Get(ctx, userKey(username))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: user %q", domain.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: corrupt user record for %s: %v", domain.ErrStorage, username, err)
	}
	return &user, nil
}
