/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemLedger is an in-memory ledger for development and tests.
type MemLedger struct {
	mu         sync.RWMutex
	schemas    map[string]json.RawMessage
	credDefs   map[string]json.RawMessage
	revRegDefs map[string]json.RawMessage
	// statuses keeps every published state of a registry, ordered by timestamp.
	statuses map[string][]RevStatusList
}

var _ Reader = (*MemLedger)(nil)

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		schemas:    map[string]json.RawMessage{},
		credDefs:   map[string]json.RawMessage{},
		revRegDefs: map[string]json.RawMessage{},
		statuses:   map[string][]RevStatusList{},
	}
}

// PutSchema publishes a schema.
func (l *MemLedger) PutSchema(id string, schema json.RawMessage) {
	l.put(l.schemas, id, schema)
}

// PutCredDef publishes a credential definition.
func (l *MemLedger) PutCredDef(id string, def json.RawMessage) {
	l.put(l.credDefs, id, def)
}

// PutRevRegDef publishes a revocation registry definition with an empty status at timestamp.
func (l *MemLedger) PutRevRegDef(id string, def json.RawMessage, timestamp int64) {
	l.put(l.revRegDefs, id, def)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.statuses[id] = []RevStatusList{{RevRegDefID: id, Revoked: []int64{}, Timestamp: timestamp}}
}

// Revoke publishes a new registry state at timestamp, with indexes added to the revoked set.
func (l *MemLedger) Revoke(id string, timestamp int64, indexes ...int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	history, ok := l.statuses[id]
	if !ok {
		return fmt.Errorf("%w: revocation registry %s", ErrLedgerItemNotFound, id)
	}

	last := history[len(history)-1]
	if timestamp < last.Timestamp {
		return fmt.Errorf("revoke %s: timestamp %d before %d", id, timestamp, last.Timestamp)
	}

	revoked := slices.Clone(last.Revoked)

	for _, idx := range indexes {
		if !slices.Contains(revoked, idx) {
			revoked = append(revoked, idx)
		}
	}

	slices.Sort(revoked)

	l.statuses[id] = append(history, RevStatusList{RevRegDefID: id, Revoked: revoked, Timestamp: timestamp})

	return nil
}

func (l *MemLedger) put(m map[string]json.RawMessage, id string, v json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m[id] = slices.Clone(v)
}

func (l *MemLedger) get(m map[string]json.RawMessage, kind, id string) (json.RawMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrLedgerItemNotFound, kind, id)
	}

	return slices.Clone(v), nil
}

// GetSchema implements Reader.
func (l *MemLedger) GetSchema(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(l.schemas, "schema", id)
}

// GetCredDef implements Reader.
func (l *MemLedger) GetCredDef(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(l.credDefs, "credential definition", id)
}

// GetRevRegDef implements Reader.
func (l *MemLedger) GetRevRegDef(_ context.Context, id string) (json.RawMessage, error) {
	return l.get(l.revRegDefs, "revocation registry", id)
}

// GetRevStatusList implements Reader.
func (l *MemLedger) GetRevStatusList(_ context.Context, id string, timestamp *int64) (*RevStatusList, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status, err := l.statusAt(id, timestamp)
	if err != nil {
		return nil, err
	}

	out := status
	out.Revoked = slices.Clone(status.Revoked)

	return &out, nil
}

// GetRevRegDelta implements Reader. Every index revoked within the range is reported as revoked; the
// ledger has no un-revoke, so Issued is always empty.
func (l *MemLedger) GetRevRegDelta(_ context.Context, id string, from, to *int64) (*RevRegDelta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	end, err := l.statusAt(id, to)
	if err != nil {
		return nil, err
	}

	delta := &RevRegDelta{RevRegDefID: id, Issued: []int64{}, Revoked: slices.Clone(end.Revoked), To: end.Timestamp}

	if from == nil {
		return delta, nil
	}

	start, err := l.statusAt(id, from)
	if err != nil {
		return nil, err
	}

	delta.From = start.Timestamp
	delta.Revoked = slices.DeleteFunc(delta.Revoked, func(idx int64) bool {
		return slices.Contains(start.Revoked, idx)
	})

	return delta, nil
}

// statusAt returns the last state published at or before timestamp. The caller holds the read lock.
func (l *MemLedger) statusAt(id string, timestamp *int64) (RevStatusList, error) {
	history, ok := l.statuses[id]
	if !ok {
		return RevStatusList{}, fmt.Errorf("%w: revocation registry %s", ErrLedgerItemNotFound, id)
	}

	if timestamp == nil {
		return history[len(history)-1], nil
	}

	// first entry after timestamp
	i := sort.Search(len(history), func(i int) bool { return history[i].Timestamp > *timestamp })
	if i == 0 {
		return RevStatusList{}, fmt.Errorf("%w: revocation registry %s at %d", ErrLedgerItemNotFound, id, *timestamp)
	}

	return history[i-1], nil
}
