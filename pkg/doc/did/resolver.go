/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"context"
	"fmt"
	"sync"
)

// Resolver resolves a DID to its document.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*Doc, error)
}

// Registry resolves did:key and did:peer:2 natively and any other DID from documents stored with Store.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*Doc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{docs: map[string]*Doc{}}
}

// Store records a document for later resolution, e.g. a DIDDoc received in a connection request.
func (r *Registry) Store(doc *Doc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[doc.ID] = doc
}

// Resolve resolves did.
func (r *Registry) Resolve(_ context.Context, did string) (*Doc, error) {
	r.mu.RLock()
	doc, ok := r.docs[did]
	r.mu.RUnlock()

	if ok {
		return doc, nil
	}

	method, err := Method(did)
	if err != nil {
		return nil, err
	}

	switch method {
	case "key":
		return keyResolver{}.resolve(did)
	case "peer":
		return peerResolver{}.resolve(did)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, did)
	}
}
