/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package instance keeps the live protocol state machine instances of an agent, keyed by thread id.
//
// An instance has at most one owner at a time: Checkout hands the instance to the caller and blocks
// every other Checkout of the same id until the owner checks it back in. Checkin replaces the stored
// instance with the owner's copy; nothing is merged.
package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

var logger = log.New("aries-framework/store/instance")

// ArchiveStoreName is the spi store holding terminal instances.
const ArchiveStoreName = "protocol_instances"

var (
	// ErrNotFound is returned for ids the cache does not hold.
	ErrNotFound = errors.New("instance not found")
	// ErrExists is returned by Add for ids already in use.
	ErrExists = errors.New("instance already exists")
)

// Record is implemented by every protocol state machine.
type Record interface {
	ThreadID() string
	Protocol() string
	StateName() string
	Terminal() bool
}

// Checkin returns a checked out instance. A nil error writes rec back; a non-nil error keeps the
// instance as it was before the checkout.
type Checkin func(rec Record, err error)

type entry struct {
	id    string
	rec   Record
	token chan struct{}
}

// Cache is a concurrency safe map of protocol instances.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	archive storage.Store
}

// Option configures a Cache.
type Option func(c *Cache) error

// WithArchive stores a snapshot of each instance that reaches a terminal state.
func WithArchive(provider storage.Provider) Option {
	return func(c *Cache) error {
		store, err := provider.OpenStore(ArchiveStoreName)
		if err != nil {
			return fmt.Errorf("open archive store: %w", err)
		}

		if err = provider.SetStoreConfig(ArchiveStoreName,
			storage.StoreConfiguration{TagNames: []string{tagProtocol, tagState}}); err != nil {
			return fmt.Errorf("set archive store config: %w", err)
		}

		c.archive = store

		return nil
	}
}

// New creates an empty Cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{entries: map[string]*entry{}}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func newEntry(id string, rec Record) *entry {
	e := &entry{id: id, rec: rec, token: make(chan struct{}, 1)}
	e.token <- struct{}{}

	return e
}

// Add stores a new instance under id.
func (c *Cache) Add(id string, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrExists, id)
	}

	c.entries[id] = newEntry(id, rec)

	return nil
}

// Has reports whether id is held.
func (c *Cache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[id]

	return ok
}

// Get returns the last checked in copy of id. It does not wait for a current owner.
func (c *Cache) Get(id string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return e.rec, nil
}

// Checkout takes ownership of id, waiting for the current owner if there is one.
func (c *Cache) Checkout(ctx context.Context, id string) (Record, Checkin, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	select {
	case <-e.token:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("checkout %s: %w", id, ctx.Err())
	}

	c.mu.Lock()
	held := c.entries[e.id] == e
	rec := e.rec
	c.mu.Unlock()

	if !held {
		// released while we were waiting
		e.token <- struct{}{}

		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var once sync.Once

	checkin := func(next Record, err error) {
		once.Do(func() {
			c.checkin(e, next, err)
		})
	}

	return rec, checkin, nil
}

func (c *Cache) checkin(e *entry, next Record, err error) {
	defer func() { e.token <- struct{}{} }()

	if err != nil || next == nil {
		return
	}

	c.mu.Lock()
	id := e.id
	if c.entries[id] == e {
		e.rec = next
	}
	c.mu.Unlock()

	if next.Terminal() && c.archive != nil {
		if archErr := c.archiveRecord(id, next); archErr != nil {
			logger.Warnf("archive instance %s: %s", id, archErr)
		}
	}
}

// Move makes the instance held under from available under to instead. An owner of the instance keeps
// it across the move, and its checkin lands under to. Checkouts waiting on from follow the instance.
func (c *Cache) Move(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}

	if _, ok = c.entries[to]; ok {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}

	delete(c.entries, from)
	e.id = to
	c.entries[to] = e

	return nil
}

// Release abandons the instance held under id. A current owner's checkin is discarded.
func (c *Cache) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// Len returns the number of held instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

const (
	tagProtocol = "protocol"
	tagState    = "state"
)

// Snapshot is the archived form of a terminal instance.
type Snapshot struct {
	ID       string          `json:"id"`
	Protocol string          `json:"protocol"`
	State    string          `json:"state"`
	ThreadID string          `json:"thid,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (c *Cache) archiveRecord(id string, rec Record) error {
	snap := Snapshot{ID: id, Protocol: rec.Protocol(), State: rec.StateName(), ThreadID: rec.ThreadID()}

	if m, ok := rec.(json.Marshaler); ok {
		data, err := m.MarshalJSON()
		if err != nil {
			return err
		}

		snap.Data = data
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return c.archive.Put(id, raw,
		storage.Tag{Name: tagProtocol, Value: snap.Protocol},
		storage.Tag{Name: tagState, Value: snap.State})
}

// Archived returns the archived snapshot of id.
func (c *Cache) Archived(id string) (*Snapshot, error) {
	if c.archive == nil {
		return nil, fmt.Errorf("%w: no archive configured", ErrNotFound)
	}

	raw, err := c.archive.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return nil, err
	}

	snap := &Snapshot{}

	return snap, json.Unmarshal(raw, snap)
}

// ArchivedByProtocol lists the archived snapshots of one protocol.
func (c *Cache) ArchivedByProtocol(protocol string) ([]*Snapshot, error) {
	if c.archive == nil {
		return nil, nil
	}

	iter, err := c.archive.Query(tagProtocol + ":" + protocol)
	if err != nil {
		return nil, err
	}

	defer storage.Close(iter, logger)

	var out []*Snapshot

	for {
		more, e := iter.Next()
		if e != nil {
			return nil, e
		}

		if !more {
			return out, nil
		}

		raw, e := iter.Value()
		if e != nil {
			return nil, e
		}

		snap := &Snapshot{}
		if e = json.Unmarshal(raw, snap); e != nil {
			return nil, e
		}

		out = append(out, snap)
	}
}
