/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediatortest contains common tests for mediator.Persistence implementations.
package mediatortest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
)

// TestAll runs every persistence test. newStore must return an empty store on each call.
func TestAll(t *testing.T, newStore func(t *testing.T) mediator.Persistence) {
	t.Run("accounts", func(t *testing.T) {
		TestAccounts(t, newStore(t))
	})
	t.Run("recipients", func(t *testing.T) {
		TestRecipients(t, newStore(t))
	})
	t.Run("fifo", func(t *testing.T) {
		TestFIFO(t, newStore(t))
	})
	t.Run("queued before registration", func(t *testing.T) {
		TestQueuedBeforeRegistration(t, newStore(t))
	})
	t.Run("delete", func(t *testing.T) {
		TestDelete(t, newStore(t))
	})
	t.Run("key changes hands", func(t *testing.T) {
		TestKeyChangesHands(t, newStore(t))
	})
}

// TestAccounts checks account creation and lookup.
func TestAccounts(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	auth := randomKey()

	_, err := store.GetAccountID(ctx, auth)
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)

	_, err = store.GetAccountDetails(ctx, auth)
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)

	require.NoError(t, store.CreateAccount(ctx, auth, "routing-key", []byte(`{"id":"did:peer:1"}`)))
	require.ErrorIs(t, store.CreateAccount(ctx, auth, "other", nil), mediator.ErrAccountExists)

	id, err := store.GetAccountID(ctx, auth)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	details, err := store.GetAccountDetails(ctx, auth)
	require.NoError(t, err)
	require.Equal(t, id, details.ID)
	require.Equal(t, auth, details.AuthPubKey)
	require.Equal(t, "routing-key", details.OurSigningKey)
	require.JSONEq(t, `{"id":"did:peer:1"}`, string(details.DIDDoc))

	second := randomKey()
	require.NoError(t, store.CreateAccount(ctx, second, "routing-key-2", nil))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	seen := map[string]bool{}
	for _, a := range accounts {
		seen[a.AuthPubKey] = true
	}

	require.True(t, seen[auth])
	require.True(t, seen[second])
}

// TestRecipients checks that keylist changes are idempotent and that a key belongs to one account.
func TestRecipients(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	alice, bob := randomKey(), randomKey()

	_, err := store.AddRecipient(ctx, alice, "k1")
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)

	_, err = store.ListRecipientKeys(ctx, alice)
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)

	require.NoError(t, store.CreateAccount(ctx, alice, "ra", nil))
	require.NoError(t, store.CreateAccount(ctx, bob, "rb", nil))

	keys, err := store.ListRecipientKeys(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, keys)

	added, err := store.AddRecipient(ctx, alice, "k2")
	require.NoError(t, err)
	require.True(t, added)

	added, err = store.AddRecipient(ctx, alice, "k2")
	require.NoError(t, err)
	require.False(t, added)

	added, err = store.AddRecipient(ctx, alice, "k1")
	require.NoError(t, err)
	require.True(t, added)

	_, err = store.AddRecipient(ctx, bob, "k1")
	require.ErrorIs(t, err, mediator.ErrRecipientTaken)

	keys, err = store.ListRecipientKeys(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, keys)

	owner, err := store.GetRecipientAccount(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	_, err = store.GetRecipientAccount(ctx, "unknown")
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)

	removed, err := store.RemoveRecipient(ctx, bob, "k1")
	require.NoError(t, err)
	require.False(t, removed)

	removed, err = store.RemoveRecipient(ctx, alice, "k1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.RemoveRecipient(ctx, alice, "k1")
	require.NoError(t, err)
	require.False(t, removed)

	added, err = store.AddRecipient(ctx, bob, "k1")
	require.NoError(t, err)
	require.True(t, added)

	keys, err = store.ListRecipientKeys(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []string{"k2"}, keys)
}

// TestFIFO checks that messages come back oldest first across the keys of an account.
func TestFIFO(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	auth := randomKey()
	k1, k2 := randomKey(), randomKey()

	require.NoError(t, store.CreateAccount(ctx, auth, "r", nil))
	addRecipients(t, store, auth, k1, k2)

	var want []string

	for i, key := range []string{k1, k2, k1, k1, k2} {
		msg, err := store.PersistForwardMessage(ctx, key, []byte(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		require.NotEmpty(t, msg.ID)
		require.Equal(t, key, msg.RecipientKey)

		want = append(want, msg.ID)
	}

	count, err := store.RetrievePendingMessageCount(ctx, auth, nil)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	count, err = store.RetrievePendingMessageCount(ctx, auth, &k2)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	msgs, err := store.RetrievePendingMessages(ctx, auth, 0, nil)
	require.NoError(t, err)
	require.Equal(t, want, ids(msgs))

	for i, m := range msgs {
		require.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(m.Data))
	}

	msgs, err = store.RetrievePendingMessages(ctx, auth, 2, nil)
	require.NoError(t, err)
	require.Equal(t, want[:2], ids(msgs))

	msgs, err = store.RetrievePendingMessages(ctx, auth, 10, &k1)
	require.NoError(t, err)
	require.Equal(t, []string{want[0], want[2], want[3]}, ids(msgs))

	other := randomKey()
	msgs, err = store.RetrievePendingMessages(ctx, auth, 10, &other)
	require.NoError(t, err)
	require.Empty(t, msgs)

	_, err = store.RetrievePendingMessages(ctx, randomKey(), 10, nil)
	require.ErrorIs(t, err, mediator.ErrAccountNotFound)
}

// TestQueuedBeforeRegistration checks that messages for an unregistered key become visible once an
// account registers it and disappear from view when it is removed.
func TestQueuedBeforeRegistration(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	auth, key := randomKey(), randomKey()

	require.NoError(t, store.CreateAccount(ctx, auth, "r", nil))

	early, err := store.PersistForwardMessage(ctx, key, []byte(`{"early":true}`))
	require.NoError(t, err)

	count, err := store.RetrievePendingMessageCount(ctx, auth, nil)
	require.NoError(t, err)
	require.Zero(t, count)

	addRecipients(t, store, auth, key)

	msgs, err := store.RetrievePendingMessages(ctx, auth, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{early.ID}, ids(msgs))

	_, err = store.RemoveRecipient(ctx, auth, key)
	require.NoError(t, err)

	count, err = store.RetrievePendingMessageCount(ctx, auth, nil)
	require.NoError(t, err)
	require.Zero(t, count)
}

// TestDelete checks that retrieval keeps messages and that deletion only touches the caller's own.
func TestDelete(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	alice, bob := randomKey(), randomKey()
	ka, kb := randomKey(), randomKey()

	require.NoError(t, store.CreateAccount(ctx, alice, "ra", nil))
	require.NoError(t, store.CreateAccount(ctx, bob, "rb", nil))
	addRecipients(t, store, alice, ka)
	addRecipients(t, store, bob, kb)

	a1, err := store.PersistForwardMessage(ctx, ka, []byte(`{"a":1}`))
	require.NoError(t, err)
	a2, err := store.PersistForwardMessage(ctx, ka, []byte(`{"a":2}`))
	require.NoError(t, err)
	b1, err := store.PersistForwardMessage(ctx, kb, []byte(`{"b":1}`))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		msgs, err := store.RetrievePendingMessages(ctx, alice, 10, nil)
		require.NoError(t, err)
		require.Equal(t, []string{a1.ID, a2.ID}, ids(msgs))
	}

	require.NoError(t, store.DeleteMessages(ctx, alice, []string{a1.ID, b1.ID, "unknown"}))

	msgs, err := store.RetrievePendingMessages(ctx, alice, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{a2.ID}, ids(msgs))

	msgs, err = store.RetrievePendingMessages(ctx, bob, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{b1.ID}, ids(msgs))

	require.NoError(t, store.DeleteMessages(ctx, alice, nil))
	require.ErrorIs(t, store.DeleteMessages(ctx, randomKey(), []string{a2.ID}), mediator.ErrAccountNotFound)
}

// TestKeyChangesHands checks that messages forwarded while a key belonged to one account are never
// handed to the next account registering the key, while later messages are.
func TestKeyChangesHands(t *testing.T, store mediator.Persistence) {
	ctx := context.Background()
	alice, mallory, key := randomKey(), randomKey(), randomKey()

	require.NoError(t, store.CreateAccount(ctx, alice, "ra", nil))
	require.NoError(t, store.CreateAccount(ctx, mallory, "rm", nil))
	addRecipients(t, store, alice, key)

	old, err := store.PersistForwardMessage(ctx, key, []byte(`{"for":"alice"}`))
	require.NoError(t, err)

	removed, err := store.RemoveRecipient(ctx, alice, key)
	require.NoError(t, err)
	require.True(t, removed)

	addRecipients(t, store, mallory, key)

	count, err := store.RetrievePendingMessageCount(ctx, mallory, nil)
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = store.RetrievePendingMessageCount(ctx, mallory, &key)
	require.NoError(t, err)
	require.Zero(t, count)

	msgs, err := store.RetrievePendingMessages(ctx, mallory, 10, nil)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, store.DeleteMessages(ctx, mallory, []string{old.ID}))

	fresh, err := store.PersistForwardMessage(ctx, key, []byte(`{"for":"mallory"}`))
	require.NoError(t, err)

	msgs, err = store.RetrievePendingMessages(ctx, mallory, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{fresh.ID}, ids(msgs))

	removed, err = store.RemoveRecipient(ctx, mallory, key)
	require.NoError(t, err)
	require.True(t, removed)

	addRecipients(t, store, alice, key)

	// the delete above did not touch alice's message
	msgs, err = store.RetrievePendingMessages(ctx, alice, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []string{old.ID}, ids(msgs))
}

func addRecipients(t *testing.T, store mediator.Persistence, auth string, keys ...string) {
	t.Helper()

	for _, k := range keys {
		added, err := store.AddRecipient(context.Background(), auth, k)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func ids(msgs []mediator.Message) []string {
	result := make([]string, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, m.ID)
	}

	return result
}

func randomKey() string {
	return "key" + uuid.New().String()[:8]
}
