/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package redisstore implements mediator persistence on Redis.
//
// Layout, under a configurable prefix:
//
//	accounts           set of auth keys
//	account:<auth>     account JSON
//	keys:<auth>        set of recipient keys
//	recipient:<key>    auth key owning the recipient key
//	queue:<key>        list of message ids, oldest first
//	msg:<id>           message JSON
//	seq                global arrival counter
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "mediator:"

// messageRecord carries the auth key the recipient key belonged to on arrival, empty if none.
type messageRecord struct {
	Seq          int64  `json:"seq"`
	RecipientKey string `json:"recipient_key"`
	Owner        string `json:"owner,omitempty"`
	Data         []byte `json:"data"`
}

func (r *messageRecord) visibleTo(authPubKey string) bool {
	return r.Owner == "" || r.Owner == authPubKey
}

// Store is a mediator.Persistence on Redis.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// Option configures the Store.
type Option func(s *Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a Store on rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Dial connects to the redis url, e.g. redis://localhost:6379/0, and pings it.
func Dial(ctx context.Context, url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(options)

	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close() //nolint:errcheck

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(rdb, opts...), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}

		k += p
	}

	return k
}

// CreateAccount creates the account of authPubKey.
func (s *Store) CreateAccount(ctx context.Context, authPubKey, ourSigningKey string, didDoc json.RawMessage) error {
	raw, err := json.Marshal(&mediator.AccountDetails{
		ID:            uuid.New().String(),
		AuthPubKey:    authPubKey,
		OurSigningKey: ourSigningKey,
		DIDDoc:        didDoc,
	})
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key("account", authPubKey), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("set account: %w", err)
	}

	if !ok {
		return fmt.Errorf("%w: %s", mediator.ErrAccountExists, authPubKey)
	}

	return s.rdb.SAdd(ctx, s.key("accounts"), authPubKey).Err()
}

// GetAccountID returns the id of the account of authPubKey.
func (s *Store) GetAccountID(ctx context.Context, authPubKey string) (string, error) {
	details, err := s.GetAccountDetails(ctx, authPubKey)
	if err != nil {
		return "", err
	}

	return details.ID, nil
}

// GetAccountDetails returns the account of authPubKey.
func (s *Store) GetAccountDetails(ctx context.Context, authPubKey string) (*mediator.AccountDetails, error) {
	raw, err := s.rdb.Get(ctx, s.key("account", authPubKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", mediator.ErrAccountNotFound, authPubKey)
	} else if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	details := &mediator.AccountDetails{}
	if err = json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}

	return details, nil
}

// ListAccounts returns every account, ordered by auth key.
func (s *Store) ListAccounts(ctx context.Context) ([]mediator.AccountDetails, error) {
	auths, err := s.rdb.SMembers(ctx, s.key("accounts")).Result()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	sort.Strings(auths)

	accounts := make([]mediator.AccountDetails, 0, len(auths))

	for _, auth := range auths {
		details, err := s.GetAccountDetails(ctx, auth)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, *details)
	}

	return accounts, nil
}

// AddRecipient registers key for the account of authPubKey.
func (s *Store) AddRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return false, err
	}

	ok, err := s.rdb.SetNX(ctx, s.key("recipient", key), authPubKey, 0).Result()
	if err != nil {
		return false, fmt.Errorf("set recipient: %w", err)
	}

	if !ok {
		owner, err := s.rdb.Get(ctx, s.key("recipient", key)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, fmt.Errorf("get recipient: %w", err)
		}

		if owner != authPubKey {
			return false, fmt.Errorf("%w: %s", mediator.ErrRecipientTaken, key)
		}

		return false, nil
	}

	if err = s.rdb.SAdd(ctx, s.key("keys", authPubKey), key).Err(); err != nil {
		return false, fmt.Errorf("add recipient: %w", err)
	}

	return true, nil
}

// RemoveRecipient unregisters key from the account of authPubKey. Queued messages stay.
func (s *Store) RemoveRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return false, err
	}

	owner, err := s.rdb.Get(ctx, s.key("recipient", key)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && owner != authPubKey) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("get recipient: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key("recipient", key))
		pipe.SRem(ctx, s.key("keys", authPubKey), key)

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("remove recipient: %w", err)
	}

	return true, nil
}

// ListRecipientKeys returns the keys registered to authPubKey in lexical order.
func (s *Store) ListRecipientKeys(ctx context.Context, authPubKey string) ([]string, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return nil, err
	}

	keys, err := s.rdb.SMembers(ctx, s.key("keys", authPubKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	sort.Strings(keys)

	return keys, nil
}

// GetRecipientAccount returns the auth key of the account key is registered to.
func (s *Store) GetRecipientAccount(ctx context.Context, key string) (string, error) {
	owner, err := s.rdb.Get(ctx, s.key("recipient", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: recipient %s", mediator.ErrAccountNotFound, key)
	} else if err != nil {
		return "", fmt.Errorf("get recipient: %w", err)
	}

	return owner, nil
}

// PersistForwardMessage queues msg for recipientKey. The message is owned by the account the key is
// registered to now, if any.
func (s *Store) PersistForwardMessage(ctx context.Context, recipientKey string, msg []byte) (*mediator.Message, error) {
	owner, err := s.rdb.Get(ctx, s.key("recipient", recipientKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get recipient: %w", err)
	}

	seq, err := s.rdb.Incr(ctx, s.key("seq")).Result()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	raw, err := json.Marshal(&messageRecord{Seq: seq, RecipientKey: recipientKey, Owner: owner, Data: msg})
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key("msg", id), raw, 0)
		pipe.RPush(ctx, s.key("queue", recipientKey), id)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue message: %w", err)
	}

	return &mediator.Message{ID: id, RecipientKey: recipientKey, Data: msg}, nil
}

// RetrievePendingMessageCount counts the messages queued for authPubKey, or for one of its keys.
func (s *Store) RetrievePendingMessageCount(ctx context.Context, authPubKey string, recipientKey *string) (int, error) {
	pending, err := s.pending(ctx, authPubKey, recipientKey)
	if err != nil {
		return 0, err
	}

	return len(pending), nil
}

// RetrievePendingMessages returns up to limit queued messages, oldest first. A limit below one returns
// every message.
func (s *Store) RetrievePendingMessages(ctx context.Context, authPubKey string, limit int,
	recipientKey *string) ([]mediator.Message, error) {
	pending, err := s.pending(ctx, authPubKey, recipientKey)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	msgs := make([]mediator.Message, 0, len(pending))
	for _, q := range pending {
		msgs = append(msgs, mediator.Message{ID: q.id, RecipientKey: q.RecipientKey, Data: q.Data})
	}

	return msgs, nil
}

// DeleteMessages removes the messages with the given ids that belong to authPubKey. Unknown ids are
// ignored.
func (s *Store) DeleteMessages(ctx context.Context, authPubKey string, ids []string) error {
	keys, err := s.ListRecipientKeys(ctx, authPubKey)
	if err != nil {
		return err
	}

	registered := make(map[string]bool, len(keys))
	for _, k := range keys {
		registered[k] = true
	}

	for _, id := range ids {
		rec, err := s.message(ctx, id)
		if err != nil {
			return err
		}

		if rec == nil || !registered[rec.RecipientKey] || !rec.visibleTo(authPubKey) {
			continue
		}

		_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, s.key("queue", rec.RecipientKey), 0, id)
			pipe.Del(ctx, s.key("msg", id))

			return nil
		})
		if err != nil {
			return fmt.Errorf("delete message %s: %w", id, err)
		}
	}

	return nil
}

type queued struct {
	id string
	messageRecord
}

// pending returns the messages authPubKey may collect, oldest first.
func (s *Store) pending(ctx context.Context, authPubKey string, recipientKey *string) ([]queued, error) {
	keys, err := s.visible(ctx, authPubKey, recipientKey)
	if err != nil {
		return nil, err
	}

	var all []queued

	for _, key := range keys {
		ids, err := s.rdb.LRange(ctx, s.key("queue", key), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("read queue: %w", err)
		}

		for _, id := range ids {
			rec, err := s.message(ctx, id)
			if err != nil {
				return nil, err
			}

			if rec != nil && rec.visibleTo(authPubKey) {
				all = append(all, queued{id: id, messageRecord: *rec})
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	return all, nil
}

// message returns nil for ids that are gone.
func (s *Store) message(ctx context.Context, id string) (*messageRecord, error) {
	raw, err := s.rdb.Get(ctx, s.key("msg", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	rec := &messageRecord{}
	if err = json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	return rec, nil
}

func (s *Store) visible(ctx context.Context, authPubKey string, recipientKey *string) ([]string, error) {
	keys, err := s.ListRecipientKeys(ctx, authPubKey)
	if err != nil || recipientKey == nil {
		return keys, err
	}

	for _, k := range keys {
		if k == *recipientKey {
			return []string{k}, nil
		}
	}

	return nil, nil
}
