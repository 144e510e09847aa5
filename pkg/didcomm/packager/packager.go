/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/jwe"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy/anoncrypt"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packer/legacy/authcrypt"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

var logger = log.New("aries-framework/packager")

// Version selects the envelope layout.
type Version int

const (
	// VersionLegacy is the RFC 0019 envelope.
	VersionLegacy Version = iota + 1
	// VersionModern is the JWE envelope.
	VersionModern
)

func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "legacy"
	case VersionModern:
		return "modern"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

var (
	// ErrDecryption is returned on any cryptographic failure while unpacking.
	ErrDecryption = packer.ErrDecryption
	// ErrAuthenticationMismatch is returned when an envelope is not authenticated by the expected sender.
	ErrAuthenticationMismatch = errors.New("envelope sender does not match the expected key")
	// ErrUnsupportedEnvelope is returned when the envelope header names no registered packer.
	ErrUnsupportedEnvelope = errors.New("unsupported envelope")
)

// Envelope is an unpacked message.
type Envelope struct {
	Message []byte
	FromKey string
	ToKey   string
	Version Version
}

// Packager is the basic implementation of Packager.
type Packager struct {
	packers map[string]packer.Packer
}

// New creates a Packager over w with the legacy and modern packers registered. Extra creators replace
// the packer registered for the same typ and alg.
func New(w wallet.Wallet, creators ...packer.Creator) *Packager {
	bp := &Packager{packers: map[string]packer.Packer{}}

	defaults := []packer.Creator{authcrypt.New, anoncrypt.New, jwe.NewAuthcrypt, jwe.NewAnoncrypt}

	for _, c := range append(defaults, creators...) {
		bp.addPacker(c(w))
	}

	return bp
}

func packerID(typ, alg string) string {
	return typ + "#" + alg
}

func (bp *Packager) addPacker(p packer.Packer) {
	bp.packers[packerID(p.EncodingType(), p.Algorithm())] = p
}

func (bp *Packager) packerFor(version Version, auth bool) (packer.Packer, error) {
	var id string

	switch {
	case version == VersionLegacy && auth:
		id = packerID(legacy.EncodingType, legacy.Authcrypt)
	case version == VersionLegacy:
		id = packerID(legacy.EncodingType, legacy.Anoncrypt)
	case version == VersionModern && auth:
		id = packerID(jwe.EncodingType, jwe.AuthAlg)
	case version == VersionModern:
		id = packerID(jwe.EncodingType, jwe.AnonAlg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEnvelope, version)
	}

	p, ok := bp.packers[id]
	if !ok {
		return nil, fmt.Errorf("%w: no packer for %s", ErrUnsupportedEnvelope, id)
	}

	return p, nil
}

// Pack packs payload for the recipients' verkeys. An empty senderKey packs anonymously.
func (bp *Packager) Pack(ctx context.Context, version Version, payload []byte, senderKey string,
	recipients []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := bp.packerFor(version, senderKey != "")
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	env, err := p.Pack(payload, senderKey, recipients)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	return env, nil
}

// PackForDestination packs payload for dest and wraps the result in one forward message per routing
// key, in order. Each forward is anonymously packed for its routing key.
func (bp *Packager) PackForDestination(ctx context.Context, version Version, payload []byte, senderKey string,
	dest *service.Destination) ([]byte, error) {
	if dest == nil || len(dest.RecipientKeys) == 0 {
		return nil, errors.New("packForDestination: destination has no recipient keys")
	}

	env, err := bp.Pack(ctx, version, payload, senderKey, dest.RecipientKeys)
	if err != nil {
		return nil, fmt.Errorf("packForDestination: %w", err)
	}

	to := dest.RecipientKeys[0]

	for _, routingKey := range dest.RoutingKeys {
		fwd, e := json.Marshal(model.NewForward(to, env))
		if e != nil {
			return nil, fmt.Errorf("packForDestination: marshal forward: %w", e)
		}

		env, e = bp.Pack(ctx, version, fwd, "", []string{routingKey})
		if e != nil {
			return nil, fmt.Errorf("packForDestination: routing key %s: %w", routingKey, e)
		}

		to = routingKey
	}

	return env, nil
}

// Unpack detects the envelope layout and unpacks it with a key held by the wallet.
func (bp *Packager) Unpack(ctx context.Context, envelope []byte) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	typ, alg, err := getEncodingType(envelope)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	p, ok := bp.packers[packerID(typ, alg)]
	if !ok {
		return nil, fmt.Errorf("unpack: %w: typ %q alg %q", ErrUnsupportedEnvelope, typ, alg)
	}

	out, err := p.Unpack(envelope)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	version := VersionModern
	if typ == legacy.EncodingType {
		version = VersionLegacy
	}

	logger.Debugf("unpacked %s envelope for %s", version, out.ToKey)

	return &Envelope{Message: out.Message, FromKey: out.FromKey, ToKey: out.ToKey, Version: version}, nil
}

// UnpackAnon returns the plaintext of envelope without checking its sender.
func (bp *Packager) UnpackAnon(ctx context.Context, envelope []byte) ([]byte, error) {
	env, err := bp.Unpack(ctx, envelope)
	if err != nil {
		return nil, err
	}

	return env.Message, nil
}

// UnpackAuth returns the plaintext of envelope if it was authenticated by expectedSender.
func (bp *Packager) UnpackAuth(ctx context.Context, envelope []byte, expectedSender string) ([]byte, error) {
	env, err := bp.Unpack(ctx, envelope)
	if err != nil {
		return nil, err
	}

	if env.FromKey == "" {
		return nil, fmt.Errorf("unpackAuth: %w: envelope is anonymous", ErrAuthenticationMismatch)
	}

	if env.FromKey != expectedSender {
		return nil, fmt.Errorf("unpackAuth: %w: got %s", ErrAuthenticationMismatch, env.FromKey)
	}

	return env.Message, nil
}

type envelopeStub struct {
	Protected string `json:"protected,omitempty"`
}

type headerStub struct {
	Type string `json:"typ,omitempty"`
	Alg  string `json:"alg,omitempty"`
}

func getEncodingType(encMessage []byte) (string, string, error) {
	env := &envelopeStub{}

	if err := json.Unmarshal(encMessage, env); err != nil {
		return "", "", fmt.Errorf("%w: parse envelope: %s", ErrUnsupportedEnvelope, err.Error())
	}

	protBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(env.Protected, "="))
	if err != nil {
		return "", "", fmt.Errorf("%w: decode header: %s", ErrUnsupportedEnvelope, err.Error())
	}

	prot := &headerStub{}

	if err = json.Unmarshal(protBytes, prot); err != nil {
		return "", "", fmt.Errorf("%w: parse header: %s", ErrUnsupportedEnvelope, err.Error())
	}

	return prot.Type, prot.Alg, nil
}
