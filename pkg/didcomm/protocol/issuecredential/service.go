/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

// Service runs credential issuance for one agent. Inbound messages reach it through the message router;
// local actions check the machine out of the instance cache, apply the action and put it back.
type Service struct {
	cache      *instance.Cache
	middleware Handler
}

// New creates the issuance service over cache.
func New(cache *instance.Cache) *Service {
	return &Service{cache: cache, middleware: initialHandler}
}

// Use allows providing middlewares. They run after every transition; an error discards it.
func (s *Service) Use(items ...Middleware) {
	var handler Handler = initialHandler
	for i := len(items) - 1; i >= 0; i-- {
		handler = items[i](handler)
	}

	s.middleware = handler
}

// Protocol returns the family name.
func (s *Service) Protocol() string { return Name }

// Initiates reports whether kind starts a new issuance: an offer for the holder, a proposal for the
// issuer.
func (s *Service) Initiates(kind string) bool {
	return Kind(kind) == KindOffer || Kind(kind) == KindPropose
}

// New creates the machine an initiating message starts.
func (s *Service) New(msg service.DIDCommMsgMap) (instance.Record, error) {
	if Classify(msg) == KindPropose {
		return NewIssuer(), nil
	}

	return NewHolder(), nil
}

// Handle applies msg to rec.
func (s *Service) Handle(_ context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	m, ok := rec.(Machine)
	if !ok {
		return rec, nil, fmt.Errorf("issue credential: unexpected record %T", rec)
	}

	next, out, err := m.Handle(msg)
	if err != nil {
		return next, nil, err
	}

	if err = s.middleware.Handle(&metaData{msg: msg, machine: next}); err != nil {
		return m, nil, fmt.Errorf("middleware: %w", err)
	}

	if out == nil {
		return next, nil, nil
	}

	return next, []service.DIDCommMsgMap{out}, nil
}

// SendOffer starts an issuance with an offer, or answers the proposal received on thID.
func (s *Service) SendOffer(ctx context.Context, thID string, preview PreviewCredential, offer []byte,
	rev RevocationInfo) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, NewIssuer, func(m Machine) (Machine, interface{}, error) {
		return m.SendOffer(preview, offer, rev)
	})
}

// SendCredential answers the request received on thID.
func (s *Service) SendCredential(ctx context.Context, thID string, credential []byte,
	credRevID string) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, nil, func(m Machine) (Machine, interface{}, error) {
		return m.SendCredential(credential, credRevID)
	})
}

// SendProposal starts an issuance with a proposal, or counters the offer received on thID.
func (s *Service) SendProposal(ctx context.Context, thID string,
	p ProposeCredential) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, NewHolder, func(m Machine) (Machine, interface{}, error) {
		return m.SendProposal(p)
	})
}

// SendRequest requests the credential offered on thID.
func (s *Service) SendRequest(ctx context.Context, thID string,
	request []byte) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, nil, func(m Machine) (Machine, interface{}, error) {
		return m.SendRequest(request)
	})
}

// Decline rejects the offer received on thID.
func (s *Service) Decline(ctx context.Context, thID, reason string) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, nil, func(m Machine) (Machine, interface{}, error) {
		return m.Decline(reason)
	})
}

// Get returns the last checked in copy of the issuance on thID.
func (s *Service) Get(thID string) (Machine, error) {
	rec, err := s.cache.Get(thID)
	if err != nil {
		return Machine{}, err
	}

	m, ok := rec.(Machine)
	if !ok {
		return Machine{}, fmt.Errorf("issue credential: unexpected record %T", rec)
	}

	return m, nil
}

// act applies a local action. An empty thID with a non-nil start creates a new machine, which is added
// to the cache under the thread the action established.
func (s *Service) act(ctx context.Context, thID string, start func() Machine,
	action func(Machine) (Machine, interface{}, error)) (Machine, service.DIDCommMsgMap, error) {
	if thID == "" && start != nil {
		next, out, err := s.apply(start(), action)
		if err != nil {
			return next, nil, err
		}

		if err = s.cache.Add(next.ThreadID(), next); err != nil {
			return next, nil, err
		}

		return next, out, nil
	}

	rec, checkin, err := s.cache.Checkout(ctx, thID)
	if err != nil {
		return Machine{}, nil, err
	}

	m, ok := rec.(Machine)
	if !ok {
		err = fmt.Errorf("issue credential: unexpected record %T", rec)
		checkin(rec, err)

		return Machine{}, nil, err
	}

	next, out, err := s.apply(m, action)
	checkin(next, err)

	return next, out, err
}

func (s *Service) apply(m Machine,
	action func(Machine) (Machine, interface{}, error)) (Machine, service.DIDCommMsgMap, error) {
	next, out, err := action(m)
	if err != nil {
		return m, nil, err
	}

	if err = s.middleware.Handle(&metaData{machine: next}); err != nil {
		return m, nil, fmt.Errorf("middleware: %w", err)
	}

	msg, err := service.NewDIDCommMsgMap(out)
	if err != nil {
		return m, nil, err
	}

	return next, msg, nil
}
