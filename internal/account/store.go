// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taibuivan/gatekeep/internal/platform/kv"
)

// Store persists accounts.
type Store interface {
	FindByEmail(context context.Context, email string) (*User, error)
	Create(context context.Context, user *User) error
	Update(context context.Context, user *User) error
}

// KVStore keeps users as JSON documents keyed by normalised email
// (typically in the "users" namespace). Records never expire.
type KVStore struct {
	store kv.Store
}

// NewKVStore creates a [KVStore].
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{store: store}
}

// FindByEmail implements [Store].
func (repository *KVStore) FindByEmail(context context.Context, email string) (*User, error) {
	raw, err := repository.store.Get(context, email)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user_find_failed: %w", err)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("user_decode_failed: %w", err)
	}
	return &user, nil
}

// Create implements [Store]. The existence check and the write are not atomic;
// a concurrent duplicate signup can overwrite the first record.
func (repository *KVStore) Create(context context.Context, user *User) error {
	_, err := repository.FindByEmail(context, user.Email)
	switch {
	case err == nil:
		return ErrEmailTaken
	case !errors.Is(err, ErrUserNotFound):
		return err
	}

	return repository.put(context, user, "user_create_failed")
}

// Update implements [Store].
func (repository *KVStore) Update(context context.Context, user *User) error {
	return repository.put(context, user, "user_update_failed")
}

func (repository *KVStore) put(context context.Context, user *User, action string) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if err := repository.store.Put(context, user.Email, payload, 0); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
