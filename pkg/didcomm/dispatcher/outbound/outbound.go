/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packager"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/dispatcher/outbound")

const transportDecorator = "~transport"

// Packager packs a payload for a destination.
type Packager interface {
	PackForDestination(ctx context.Context, version packager.Version, payload []byte, senderKey string,
		dest *service.Destination) ([]byte, error)
}

// Dispatcher dispatch msgs to destination.
type Dispatcher struct {
	packager    Packager
	senders     []transport.Sender
	version     packager.Version
	returnRoute string
}

// Option configures a Dispatcher.
type Option func(o *Dispatcher)

// WithTransports sets the outbound transports, tried in order.
func WithTransports(senders ...transport.Sender) Option {
	return func(o *Dispatcher) {
		o.senders = append(o.senders, senders...)
	}
}

// WithVersion sets the envelope layout used for outbound messages.
func WithVersion(v packager.Version) Option {
	return func(o *Dispatcher) {
		o.version = v
	}
}

// WithReturnRoute asks the receiver to reply on the same connection: decorator.TransportReturnRouteAll
// or decorator.TransportReturnRouteThread.
func WithReturnRoute(value string) Option {
	return func(o *Dispatcher) {
		o.returnRoute = value
	}
}

// New creates an outbound dispatcher over p. Without WithVersion the legacy envelope is used.
func New(p Packager, opts ...Option) *Dispatcher {
	o := &Dispatcher{packager: p, version: packager.VersionLegacy}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Send packs msg from senderKey for dest and hands it to the first transport that accepts the endpoint.
// An empty senderKey sends anonymously. The raw reply of the transport is returned, if any.
func (o *Dispatcher) Send(ctx context.Context, msg service.DIDCommMsgMap, senderKey string,
	dest *service.Destination) ([]byte, error) {
	if dest == nil {
		return nil, errors.New("outboundDispatcher.Send: destination is nil")
	}

	sender, err := transport.Select(dest.ServiceEndpoint, o.senders...)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: %w", err)
	}

	payload, err := o.addTransportRouteOptions(msg, dest).MarshalWire()
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed marshal to bytes: %w", err)
	}

	env, err := o.packager.PackForDestination(ctx, o.version, payload, senderKey, dest)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed to pack msg: %w", err)
	}

	reply, err := sender.Send(ctx, env, dest.ServiceEndpoint)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed to send msg using outbound transport: %w", err)
	}

	logger.Debugf("sent %s to %s", msg.Type(), dest.ServiceEndpoint)

	return reply, nil
}

// addTransportRouteOptions sets ~transport on messages sent directly to the recipient. Messages routed
// through mediators are left alone.
func (o *Dispatcher) addTransportRouteOptions(msg service.DIDCommMsgMap,
	dest *service.Destination) service.DIDCommMsgMap {
	if len(dest.RoutingKeys) > 0 {
		return msg
	}

	if o.returnRoute != decorator.TransportReturnRouteAll && o.returnRoute != decorator.TransportReturnRouteThread {
		return msg
	}

	out := msg.Clone()
	out[transportDecorator] = map[string]interface{}{"return_route": o.returnRoute}

	return out
}
