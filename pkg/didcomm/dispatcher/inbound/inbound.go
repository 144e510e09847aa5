/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package inbound turns received envelopes into routed messages and sends what the protocols answer.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packager"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/dispatcher/inbound")

// Packager unpacks inbound envelopes and packs direct replies.
type Packager interface {
	Unpack(ctx context.Context, envelope []byte) (*packager.Envelope, error)
	Pack(ctx context.Context, version packager.Version, payload []byte, senderKey string,
		recipients []string) ([]byte, error)
}

// Service is a protocol that answers the sender key directly instead of keeping per-thread state, such
// as coordinate-mediation, forward and message pickup.
type Service interface {
	Accept(msgType string) bool
	Handle(ctx context.Context, senderKey string, msg service.DIDCommMsgMap) (service.DIDCommMsgMap, error)
}

// Outbound sends a message to a destination.
type Outbound interface {
	Send(ctx context.Context, msg service.DIDCommMsgMap, senderKey string, dest *service.Destination) ([]byte, error)
}

// Connections maps envelope keys to connections and routed results to where their replies go.
type Connections interface {
	// ConnectionID returns the connection instance the pair of keys belongs to, or "".
	ConnectionID(myKey, theirKey string) string
	// Destination returns where the outbound messages of res go and the key they are sent from.
	Destination(ctx context.Context, connectionID string, res *dispatcher.Result) (*service.Destination, string, error)
}

// Observer is told about every routed message and the connection it arrived on, "" when unknown.
type Observer func(ctx context.Context, connectionID string, res *dispatcher.Result)

// MessageHandler handles inbound envelopes.
type MessageHandler struct {
	packager    Packager
	router      *dispatcher.Router
	outbound    Outbound
	connections Connections
	services    []Service
	sessions    *messagepickup.Sessions
	observers   []Observer
	live        sync.Map
}

// Option configures a MessageHandler.
type Option func(h *MessageHandler)

// WithServices adds services that answer sender keys directly. They are consulted before the router.
func WithServices(services ...Service) Option {
	return func(h *MessageHandler) {
		h.services = append(h.services, services...)
	}
}

// WithSessions registers senders that keep a duplex session open, and ask for return routing, for live
// message delivery.
func WithSessions(sessions *messagepickup.Sessions) Option {
	return func(h *MessageHandler) {
		h.sessions = sessions
	}
}

// WithObserver adds an observer of routed messages.
func WithObserver(o Observer) Option {
	return func(h *MessageHandler) {
		h.observers = append(h.observers, o)
	}
}

// NewInboundMessageHandler creates the inbound handler.
func NewInboundMessageHandler(p Packager, router *dispatcher.Router, outbound Outbound, connections Connections,
	opts ...Option) *MessageHandler {
	h := &MessageHandler{packager: p, router: router, outbound: outbound, connections: connections}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// HandlerFunc returns the handler for inbound transports.
func (h *MessageHandler) HandlerFunc() transport.InboundHandler {
	return h.HandleInboundEnvelope
}

// HandleInboundEnvelope unpacks envelope and handles its message. The returned envelope, if any, is the
// reply to write back on the same request.
func (h *MessageHandler) HandleInboundEnvelope(ctx context.Context, envelope []byte) ([]byte, error) {
	env, err := h.packager.Unpack(ctx, envelope)
	if err != nil {
		return nil, err
	}

	msg, err := service.ParseDIDCommMsgMap(env.Message)
	if err != nil {
		return nil, err
	}

	returnRoute := returnsRoute(msg)

	if returnRoute {
		h.registerSession(ctx, env)
	}

	for _, svc := range h.services {
		if svc.Accept(msg.Type()) {
			return h.answer(ctx, svc, env, msg)
		}
	}

	connectionID := h.connections.ConnectionID(env.ToKey, env.FromKey)

	res, err := h.router.Route(ctx, connectionID, msg)
	if err != nil || res == nil {
		return nil, err
	}

	for _, o := range h.observers {
		o(ctx, connectionID, res)
	}

	if returnRoute && env.FromKey != "" && len(res.Outbound) > 0 {
		return h.replyOnRequest(ctx, env, connectionID, res)
	}

	return nil, h.Send(ctx, connectionID, res)
}

// replyOnRequest packs the first outbound message of res for the sender of env, to be written back on
// the request env came on. The rest are sent as usual.
func (h *MessageHandler) replyOnRequest(ctx context.Context, env *packager.Envelope, connectionID string,
	res *dispatcher.Result) ([]byte, error) {
	_, senderKey, err := h.connections.Destination(ctx, connectionID, res)
	if err != nil {
		return nil, fmt.Errorf("destination for %s %s: %w", res.Protocol, res.ThreadID, err)
	}

	raw, err := res.Outbound[0].MarshalWire()
	if err != nil {
		return nil, err
	}

	reply, err := h.packager.Pack(ctx, env.Version, raw, senderKey, []string{env.FromKey})
	if err != nil {
		return nil, err
	}

	if len(res.Outbound) > 1 {
		rest := *res
		rest.Outbound = res.Outbound[1:]

		if err = h.Send(ctx, connectionID, &rest); err != nil {
			return nil, err
		}
	}

	return reply, nil
}

func (h *MessageHandler) answer(ctx context.Context, svc Service, env *packager.Envelope,
	msg service.DIDCommMsgMap) ([]byte, error) {
	reply, err := svc.Handle(ctx, env.FromKey, msg)
	if err != nil || reply == nil {
		return nil, err
	}

	if env.FromKey == "" {
		logger.Warnf("dropping %s reply to an anonymous sender", reply.Type())

		return nil, nil
	}

	return h.pack(ctx, env, reply)
}

func (h *MessageHandler) pack(ctx context.Context, env *packager.Envelope, msg service.DIDCommMsgMap) ([]byte, error) {
	raw, err := msg.MarshalWire()
	if err != nil {
		return nil, err
	}

	return h.packager.Pack(ctx, env.Version, raw, env.ToKey, []string{env.FromKey})
}

// Send delivers the outbound messages of res. Replies returned on the same request are handled as
// inbound envelopes.
func (h *MessageHandler) Send(ctx context.Context, connectionID string, res *dispatcher.Result) error {
	if len(res.Outbound) == 0 {
		return nil
	}

	dest, senderKey, err := h.connections.Destination(ctx, connectionID, res)
	if err != nil {
		return fmt.Errorf("destination for %s %s: %w", res.Protocol, res.ThreadID, err)
	}

	var errs []error

	for _, out := range res.Outbound {
		reply, e := h.outbound.Send(ctx, out, senderKey, dest)
		if e != nil {
			errs = append(errs, e)

			continue
		}

		if len(reply) > 0 {
			if _, e = h.HandleInboundEnvelope(ctx, reply); e != nil {
				logger.Warnf("handling reply to %s: %s", out.Type(), e)
			}
		}
	}

	return errors.Join(errs...)
}

type sessionKey struct {
	conn transport.Conn
	key  string
}

// registerSession makes the duplex session the envelope arrived on, if any, the live delivery session of
// its sender until the session ends.
func (h *MessageHandler) registerSession(ctx context.Context, env *packager.Envelope) {
	conn, ok := transport.ConnFrom(ctx)
	if !ok || h.sessions == nil || env.FromKey == "" {
		return
	}

	k := sessionKey{conn: conn, key: env.FromKey}
	if _, loaded := h.live.LoadOrStore(k, struct{}{}); loaded {
		return
	}

	unregister := h.sessions.Register(env.FromKey, &pusher{h: h, conn: conn, env: env})

	go func() {
		<-conn.Done()
		unregister()
		h.live.Delete(k)
	}()
}

type pusher struct {
	h    *MessageHandler
	conn transport.Conn
	env  *packager.Envelope
}

func (p *pusher) Push(ctx context.Context, msg service.DIDCommMsgMap) error {
	out, err := p.h.pack(ctx, p.env, msg)
	if err != nil {
		return err
	}

	return p.conn.Write(ctx, out)
}

func returnsRoute(msg service.DIDCommMsgMap) bool {
	trans := &decorator.Transport{}
	if err := msg.Decode(trans); err != nil {
		return false
	}

	return trans.ReturnsRoute()
}
