package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"fintrix/internal/cache"
	"fintrix/internal/core"
	"fintrix/internal/ledger"
)

// UserService registers users and serves profile lookups through a
// caller-owned cache.
type UserService struct {
	store ledger.Store
	users *cache.LRUCache[core.User]
	now   func() time.Time
}

// NewUserService returns a service that caches profiles in users. A nil
// cache disables caching.
func NewUserService(store ledger.Store, users *cache.LRUCache[core.User]) *UserService {
	return &UserService{
		store: store,
		users: users,
		now:   time.Now,
	}
}

// InitUser creates the user on first sight and refreshes email and name after.
func (s *UserService) InitUser(ctx context.Context, userID, email, name string) (*core.User, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &core.ValidationError{Field: "email", Message: "invalid email address"}
	}

	u := &core.User{
		ID:        userID,
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.UpsertUser(ctx, u)
	})
	if err != nil {
		return nil, core.Consistency("init user", err)
	}

	if s.users != nil {
		s.users.Set(userID, *u)
	}
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*core.User, error) {
	load := func() (core.User, error) {
		var u *core.User
		err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			var err error
			u, err = tx.GetUser(ctx, userID)
			return err
		})
		if err != nil {
			return core.User{}, core.Consistency("get user", err)
		}
		return *u, nil
	}

	if s.users == nil {
		u, err := load()
		if err != nil {
			return nil, err
		}
		return &u, nil
	}
	u, err := s.users.GetOrLoad(userID, load)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
