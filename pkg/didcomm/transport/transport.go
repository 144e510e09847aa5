/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport defines how envelopes leave and enter an agent.
package transport

import (
	"context"
	"errors"
	"fmt"
)

const (
	// MediaTypeEncryptedEnvelope is the content type of a packed envelope on the wire.
	MediaTypeEncryptedEnvelope = "application/didcomm-envelope-enc"
	// MediaTypeV1EncryptedEnvelope is the RFC 0044 name of the same media type.
	MediaTypeV1EncryptedEnvelope = "application/didcomm-enc-env"
	// MediaTypeV2EncryptedEnvelope is the content type of a JWE envelope.
	MediaTypeV2EncryptedEnvelope = "application/didcomm-encrypted+json"
)

// ErrNoSender is returned when no sender accepts an endpoint.
var ErrNoSender = errors.New("no transport accepts endpoint")

// Sender delivers a packed envelope to an endpoint. The reply, if any, is returned as is.
type Sender interface {
	Send(ctx context.Context, envelope []byte, endpoint string) ([]byte, error)
	Accept(endpoint string) bool
}

// InboundHandler handles one inbound envelope. A non-empty reply is written back on the same request.
type InboundHandler func(ctx context.Context, envelope []byte) ([]byte, error)

// Conn is a duplex session an inbound transport keeps open after the request, e.g. a websocket.
type Conn interface {
	Write(ctx context.Context, envelope []byte) error
	// Done is closed when the session ends.
	Done() <-chan struct{}
}

type connKey struct{}

// WithConn returns a context carrying the session the envelope arrived on.
func WithConn(ctx context.Context, c Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

// ConnFrom returns the session the envelope arrived on, if the transport keeps one.
func ConnFrom(ctx context.Context) (Conn, bool) {
	c, ok := ctx.Value(connKey{}).(Conn)

	return c, ok
}

// SupportedMediaType reports whether an inbound content type carries an envelope.
func SupportedMediaType(ct string) bool {
	switch ct {
	case MediaTypeEncryptedEnvelope, MediaTypeV1EncryptedEnvelope, MediaTypeV2EncryptedEnvelope:
		return true
	default:
		return false
	}
}

// Select returns the first sender accepting endpoint.
func Select(endpoint string, senders ...Sender) (Sender, error) {
	for _, s := range senders {
		if s.Accept(endpoint) {
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoSender, endpoint)
}
