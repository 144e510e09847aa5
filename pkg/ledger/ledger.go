/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger is the read side of an anoncreds ledger: schemas, credential definitions and revocation
// registries, as published by issuers. Definitions are immutable once written; revocation state changes
// with every revocation.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrLedgerItemNotFound is returned when the ledger holds nothing under an id.
var ErrLedgerItemNotFound = errors.New("ledger item not found")

// Reader reads published artifacts. Definitions are returned as the JSON the issuer published.
type Reader interface {
	GetSchema(ctx context.Context, id string) (json.RawMessage, error)
	GetCredDef(ctx context.Context, id string) (json.RawMessage, error)
	GetRevRegDef(ctx context.Context, id string) (json.RawMessage, error)
	// GetRevRegDelta returns the revocations and issuances between from and to. A nil from starts at the
	// registry creation, a nil to ends at the latest entry.
	GetRevRegDelta(ctx context.Context, id string, from, to *int64) (*RevRegDelta, error)
	// GetRevStatusList returns the registry state at timestamp, or the latest one for a nil timestamp.
	GetRevStatusList(ctx context.Context, id string, timestamp *int64) (*RevStatusList, error)
}

// RevRegDelta is the change of a revocation registry over a time range.
type RevRegDelta struct {
	RevRegDefID string  `json:"rev_reg_def_id"`
	Issued      []int64 `json:"issued"`
	Revoked     []int64 `json:"revoked"`
	From        int64   `json:"from,omitempty"`
	To          int64   `json:"to"`
}

// RevStatusList is the state of a revocation registry at one point in time.
type RevStatusList struct {
	RevRegDefID string `json:"rev_reg_def_id"`
	// Revoked holds the indexes revoked at Timestamp, ascending.
	Revoked   []int64 `json:"revoked"`
	Timestamp int64   `json:"timestamp"`
}
