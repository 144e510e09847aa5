/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

const (
	// Name defines the protocol name
	Name = "present-proof"
	// Spec defines the protocol spec
	Spec = "https://didcomm.org/present-proof/1.0/"
	// ProposePresentationMsgType defines the protocol propose-presentation message type.
	ProposePresentationMsgType = Spec + "propose-presentation"
	// RequestPresentationMsgType defines the protocol request-presentation message type.
	RequestPresentationMsgType = Spec + "request-presentation"
	// PresentationMsgType defines the protocol presentation message type.
	PresentationMsgType = Spec + "presentation"
	// AckMsgType defines the protocol ack message type.
	AckMsgType = Spec + "ack"
	// ProblemReportMsgType defines the protocol problem-report message type.
	ProblemReportMsgType = Spec + "problem-report"
	// PresentationPreviewMsgType defines the protocol presentation-preview inner object type.
	PresentationPreviewMsgType = Spec + "presentation-preview"

	requestAttachID      = "libindy-request-presentation-0"
	presentationAttachID = "libindy-presentation-0"
)

// Service runs proof presentation for one agent. Inbound presentations are verified with the configured
// PresentationVerifier before the verifier machine transitions.
type Service struct {
	cache      *instance.Cache
	verifier   PresentationVerifier
	middleware Handler
}

// New creates the presentation service over cache.
func New(cache *instance.Cache, verifier PresentationVerifier) *Service {
	return &Service{cache: cache, verifier: verifier, middleware: initialHandler}
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

// Initiates reports whether kind starts a new exchange: a request for the prover, a proposal for the
// verifier.
func (s *Service) Initiates(kind string) bool {
	return Kind(kind) == KindRequest || Kind(kind) == KindPropose
}

// New creates the machine an initiating message starts.
func (s *Service) New(msg service.DIDCommMsgMap) (instance.Record, error) {
	if Classify(msg) == KindPropose {
		return NewVerifier(), nil
	}

	return NewProver(), nil
}

// Handle applies msg to rec. A presentation is verified first; the verification outcome is what moves
// the verifier to finished.
func (s *Service) Handle(ctx context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	m, ok := rec.(Machine)
	if !ok {
		return rec, nil, fmt.Errorf("present proof: unexpected record %T", rec)
	}

	var (
		next Machine
		out  service.DIDCommMsgMap
		err  error
	)

	if m.Role() == RoleVerifier && Classify(msg) == KindPresentation {
		next, out, err = s.verify(ctx, m, msg)
	} else {
		next, out, err = m.Handle(msg)
	}

	if err != nil {
		return next, nil, err
	}

	if err = s.middleware.Handle(&metadata{msg: msg, machine: next}); err != nil {
		return m, nil, fmt.Errorf("middleware: %w", err)
	}

	if out == nil {
		return next, nil, nil
	}

	return next, []service.DIDCommMsgMap{out}, nil
}

func (s *Service) verify(ctx context.Context, m Machine,
	msg service.DIDCommMsgMap) (Machine, service.DIDCommMsgMap, error) {
	if s.verifier == nil {
		return m, nil, fmt.Errorf("present proof: no verifier configured")
	}

	pres := &Presentation{}
	if err := msg.Decode(pres); err != nil {
		return m, nil, err
	}

	status := StatusInvalid

	if len(pres.Presentations) > 0 {
		data, err := pres.Presentations[0].Bytes()
		if err == nil {
			status, err = s.verifier.Verify(ctx, m.Request(), data)
		}

		if err != nil {
			logger.Warnf("presentation on thread %s is %s: %s", m.ThreadID(), status, err)
		}
	}

	return m.Verified(pres, status)
}

// SendRequest starts an exchange with a presentation request, or answers the proposal received on thID.
func (s *Service) SendRequest(ctx context.Context, thID string,
	request []byte) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, NewVerifier, func(m Machine) (Machine, interface{}, error) {
		return m.SendRequest(request)
	})
}

// SendProposal starts an exchange with a proposal.
func (s *Service) SendProposal(ctx context.Context, thID string,
	p ProposePresentation) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, NewProver, func(m Machine) (Machine, interface{}, error) {
		return m.SendProposal(p)
	})
}

// SendPresentation answers the request received on thID.
func (s *Service) SendPresentation(ctx context.Context, thID string,
	presentation []byte) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, nil, func(m Machine) (Machine, interface{}, error) {
		return m.SendPresentation(presentation)
	})
}

// Decline rejects the request received on thID.
func (s *Service) Decline(ctx context.Context, thID, reason string) (Machine, service.DIDCommMsgMap, error) {
	return s.act(ctx, thID, nil, func(m Machine) (Machine, interface{}, error) {
		return m.Decline(reason)
	})
}

// Get returns the last checked in copy of the exchange on thID.
func (s *Service) Get(thID string) (Machine, error) {
	rec, err := s.cache.Get(thID)
	if err != nil {
		return Machine{}, err
	}

	m, ok := rec.(Machine)
	if !ok {
		return Machine{}, fmt.Errorf("present proof: unexpected record %T", rec)
	}

	return m, nil
}

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
		err = fmt.Errorf("present proof: unexpected record %T", rec)
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

	if err = s.middleware.Handle(&metadata{machine: next}); err != nil {
		return m, nil, fmt.Errorf("middleware: %w", err)
	}

	msg, err := service.NewDIDCommMsgMap(out)
	if err != nil {
		return m, nil, err
	}

	return next, msg, nil
}
