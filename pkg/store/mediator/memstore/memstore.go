/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package memstore implements mediator persistence on an spi storage provider. The in-memory provider
// is the default; any other provider (leveldb, mysql) makes it durable.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

var logger = log.New("aries-framework/store/mediator")

const (
	accountStore   = "mediator_accounts"
	recipientStore = "mediator_recipients"
	messageStore   = "mediator_messages"

	tagAccount   = "account"
	tagAuth      = "auth"
	tagRecipient = "recipient"
)

type recipientRecord struct {
	AuthPubKey string `json:"auth_pubkey"`
}

// messageRecord keeps the account the recipient key was registered to when the message arrived. Only
// that account may collect it; a message queued for an unregistered key goes to whoever registers it.
type messageRecord struct {
	Seq          uint64 `json:"seq"`
	RecipientKey string `json:"recipient_key"`
	Owner        string `json:"owner,omitempty"`
	Data         []byte `json:"data"`
}

// Store is a mediator.Persistence over three spi stores.
type Store struct {
	mu         sync.Mutex
	seq        uint64
	accounts   storage.Store
	recipients storage.Store
	messages   storage.Store
}

// New opens the mediator stores on provider. A nil provider selects an in-memory one.
func New(provider storage.Provider) (*Store, error) {
	if provider == nil {
		provider = mem.NewProvider()
	}

	s := &Store{}

	for _, open := range []struct {
		name string
		tags []string
		dst  *storage.Store
	}{
		{accountStore, []string{tagAccount}, &s.accounts},
		{recipientStore, []string{tagAuth}, &s.recipients},
		{messageStore, []string{tagRecipient}, &s.messages},
	} {
		store, err := provider.OpenStore(open.name)
		if err != nil {
			return nil, fmt.Errorf("open store %s: %w", open.name, err)
		}

		err = provider.SetStoreConfig(open.name, storage.StoreConfiguration{TagNames: open.tags})
		if err != nil {
			return nil, fmt.Errorf("set store config %s: %w", open.name, err)
		}

		*open.dst = store
	}

	// resume the sequence after the newest message a durable provider kept
	records, err := s.query(s.messages, tagRecipient)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}

	return s, nil
}

// CreateAccount creates the account of authPubKey.
func (s *Store) CreateAccount(_ context.Context, authPubKey, ourSigningKey string, didDoc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.accounts.Get(authPubKey); err == nil {
		return fmt.Errorf("%w: %s", mediator.ErrAccountExists, authPubKey)
	} else if !errors.Is(err, storage.ErrDataNotFound) {
		return fmt.Errorf("get account: %w", err)
	}

	raw, err := json.Marshal(&mediator.AccountDetails{
		ID:            uuid.New().String(),
		AuthPubKey:    authPubKey,
		OurSigningKey: ourSigningKey,
		DIDDoc:        didDoc,
	})
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	return s.accounts.Put(authPubKey, raw, storage.Tag{Name: tagAccount})
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
func (s *Store) GetAccountDetails(_ context.Context, authPubKey string) (*mediator.AccountDetails, error) {
	raw, err := s.accounts.Get(authPubKey)
	if errors.Is(err, storage.ErrDataNotFound) {
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
func (s *Store) ListAccounts(_ context.Context) ([]mediator.AccountDetails, error) {
	iter, err := s.accounts.Query(tagAccount)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}

	defer storage.Close(iter, logger)

	var accounts []mediator.AccountDetails

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate accounts: %w", err)
		}

		if !ok {
			break
		}

		raw, err := iter.Value()
		if err != nil {
			return nil, err
		}

		var details mediator.AccountDetails
		if err = json.Unmarshal(raw, &details); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}

		accounts = append(accounts, details)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].AuthPubKey < accounts[j].AuthPubKey })

	return accounts, nil
}

// AddRecipient registers key for the account of authPubKey.
func (s *Store) AddRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return false, err
	}

	owner, err := s.owner(key)
	if err != nil {
		return false, err
	}

	switch owner {
	case authPubKey:
		return false, nil
	case "":
	default:
		return false, fmt.Errorf("%w: %s", mediator.ErrRecipientTaken, key)
	}

	raw, err := json.Marshal(&recipientRecord{AuthPubKey: authPubKey})
	if err != nil {
		return false, err
	}

	if err = s.recipients.Put(key, raw, storage.Tag{Name: tagAuth, Value: authPubKey}); err != nil {
		return false, fmt.Errorf("put recipient: %w", err)
	}

	return true, nil
}

// RemoveRecipient unregisters key from the account of authPubKey. Queued messages stay until the key is
// registered again.
func (s *Store) RemoveRecipient(ctx context.Context, authPubKey, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return false, err
	}

	owner, err := s.owner(key)
	if err != nil || owner != authPubKey {
		return false, err
	}

	if err = s.recipients.Delete(key); err != nil {
		return false, fmt.Errorf("delete recipient: %w", err)
	}

	return true, nil
}

// ListRecipientKeys returns the keys registered to authPubKey in lexical order.
func (s *Store) ListRecipientKeys(ctx context.Context, authPubKey string) ([]string, error) {
	if _, err := s.GetAccountDetails(ctx, authPubKey); err != nil {
		return nil, err
	}

	iter, err := s.recipients.Query(tagAuth + ":" + authPubKey)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}

	defer storage.Close(iter, logger)

	keys := []string{}

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate recipients: %w", err)
		}

		if !ok {
			break
		}

		key, err := iter.Key()
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// GetRecipientAccount returns the auth key of the account key is registered to.
func (s *Store) GetRecipientAccount(_ context.Context, key string) (string, error) {
	owner, err := s.owner(key)
	if err != nil {
		return "", err
	}

	if owner == "" {
		return "", fmt.Errorf("%w: recipient %s", mediator.ErrAccountNotFound, key)
	}

	return owner, nil
}

func (s *Store) owner(key string) (string, error) {
	raw, err := s.recipients.Get(key)
	if errors.Is(err, storage.ErrDataNotFound) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("get recipient: %w", err)
	}

	rec := &recipientRecord{}
	if err = json.Unmarshal(raw, rec); err != nil {
		return "", fmt.Errorf("unmarshal recipient: %w", err)
	}

	return rec.AuthPubKey, nil
}

// PersistForwardMessage queues msg for recipientKey.
func (s *Store) PersistForwardMessage(_ context.Context, recipientKey string, msg []byte) (*mediator.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.owner(recipientKey)
	if err != nil {
		return nil, err
	}

	s.seq++
	rec := &messageRecord{Seq: s.seq, RecipientKey: recipientKey, Owner: owner, Data: msg}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()

	if err = s.messages.Put(id, raw, storage.Tag{Name: tagRecipient, Value: recipientKey}); err != nil {
		return nil, fmt.Errorf("put message: %w", err)
	}

	return &mediator.Message{ID: id, RecipientKey: recipientKey, Data: msg}, nil
}

// RetrievePendingMessageCount counts the messages queued for authPubKey, or for one of its keys.
func (s *Store) RetrievePendingMessageCount(ctx context.Context, authPubKey string, recipientKey *string) (int, error) {
	msgs, err := s.pending(ctx, authPubKey, recipientKey)
	if err != nil {
		return 0, err
	}

	return len(msgs), nil
}

// RetrievePendingMessages returns up to limit queued messages, oldest first. A limit below one returns
// every message.
func (s *Store) RetrievePendingMessages(ctx context.Context, authPubKey string, limit int,
	recipientKey *string) ([]mediator.Message, error) {
	msgs, err := s.pending(ctx, authPubKey, recipientKey)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	result := make([]mediator.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, mediator.Message{ID: m.id, RecipientKey: m.RecipientKey, Data: m.Data})
	}

	return result, nil
}

// DeleteMessages removes the messages with the given ids that belong to authPubKey. Unknown ids are
// ignored.
func (s *Store) DeleteMessages(ctx context.Context, authPubKey string, ids []string) error {
	msgs, err := s.pending(ctx, authPubKey, nil)
	if err != nil {
		return err
	}

	owned := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		owned[m.id] = struct{}{}
	}

	var ops []storage.Operation

	for _, id := range ids {
		if _, ok := owned[id]; ok {
			ops = append(ops, storage.Operation{Key: id})
		}
	}

	if len(ops) == 0 {
		return nil
	}

	if err = s.messages.Batch(ops); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	return nil
}

type queued struct {
	id string
	messageRecord
}

func (s *Store) pending(ctx context.Context, authPubKey string, recipientKey *string) ([]queued, error) {
	keys, err := s.ListRecipientKeys(ctx, authPubKey)
	if err != nil {
		return nil, err
	}

	if recipientKey != nil {
		keys = filter(keys, *recipientKey)
	}

	var msgs []queued

	for _, key := range keys {
		records, err := s.query(s.messages, tagRecipient+":"+key)
		if err != nil {
			return nil, err
		}

		for _, r := range records {
			if r.Owner == "" || r.Owner == authPubKey {
				msgs = append(msgs, r)
			}
		}
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	return msgs, nil
}

func (s *Store) query(store storage.Store, expr string) ([]queued, error) {
	iter, err := store.Query(expr)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	defer storage.Close(iter, logger)

	var records []queued

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate messages: %w", err)
		}

		if !ok {
			return records, nil
		}

		key, err := iter.Key()
		if err != nil {
			return nil, err
		}

		raw, err := iter.Value()
		if err != nil {
			return nil, err
		}

		rec := queued{id: key}
		if err = json.Unmarshal(raw, &rec.messageRecord); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}

		records = append(records, rec)
	}
}

func filter(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return []string{key}
		}
	}

	return nil
}
