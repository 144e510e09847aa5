/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrAccountNotFound is returned for auth keys, and under PolicyStrict for recipient keys, that have no
	// mediation account.
	ErrAccountNotFound = errors.New("mediation account not found")
	// ErrAccountExists is returned by CreateAccount for an auth key that already has an account.
	ErrAccountExists = errors.New("mediation account exists")
	// ErrRecipientTaken is returned by AddRecipient for a key registered to another account.
	ErrRecipientTaken = errors.New("recipient key registered to another account")
)

// AccountDetails describes one mediated agent.
type AccountDetails struct {
	ID string `json:"id"`
	// AuthPubKey is the verkey the agent authenticates coordinate-mediation and pickup messages with.
	AuthPubKey string `json:"auth_pubkey"`
	// OurSigningKey is the mediator key granted to the account as its routing key.
	OurSigningKey string          `json:"our_signing_key"`
	DIDDoc        json.RawMessage `json:"did_doc,omitempty"`
}

// Message is one queued forward payload.
type Message struct {
	ID           string `json:"id"`
	RecipientKey string `json:"recipient_key"`
	Data         []byte `json:"data"`
}

// Persistence is the mediator's account, keylist and message queue storage.
//
// Messages are kept per recipient key in arrival order and handed out oldest first. Retrieval never
// removes anything; DeleteMessages is the acknowledgement. Only messages for keys currently registered
// to an account are visible to it.
type Persistence interface {
	CreateAccount(ctx context.Context, authPubKey, ourSigningKey string, didDoc json.RawMessage) error
	GetAccountID(ctx context.Context, authPubKey string) (string, error)
	GetAccountDetails(ctx context.Context, authPubKey string) (*AccountDetails, error)
	ListAccounts(ctx context.Context) ([]AccountDetails, error)

	// AddRecipient registers key for the account. Registering a key twice is not an error; added reports
	// whether the key was new.
	AddRecipient(ctx context.Context, authPubKey, key string) (added bool, err error)
	// RemoveRecipient unregisters key. removed reports whether the key was registered.
	RemoveRecipient(ctx context.Context, authPubKey, key string) (removed bool, err error)
	ListRecipientKeys(ctx context.Context, authPubKey string) ([]string, error)
	// GetRecipientAccount returns the auth key of the account key is registered to.
	GetRecipientAccount(ctx context.Context, key string) (string, error)

	PersistForwardMessage(ctx context.Context, recipientKey string, msg []byte) (*Message, error)
	RetrievePendingMessageCount(ctx context.Context, authPubKey string, recipientKey *string) (int, error)
	RetrievePendingMessages(ctx context.Context, authPubKey string, limit int,
		recipientKey *string) ([]Message, error)
	DeleteMessages(ctx context.Context, authPubKey string, ids []string) error
}
