/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent assembles a DIDComm agent from its parts: wallet, packager, instance cache, message
// router, protocol services and transports.
package agent

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher/inbound"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher/outbound"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/packager"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/issuecredential"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/legacyconnection"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/outofband"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/presentproof"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/trustping"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-didcomm-go/pkg/doc/did"
	"github.com/hyperledger/aries-didcomm-go/pkg/ledger"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

var logger = log.New("aries-framework/agent")

// Agent is one DIDComm agent.
type Agent struct {
	storeProvider        storage.Provider
	wallet               wallet.Wallet
	endpoint             string
	outboundTransports   []transport.Sender
	transportReturnRoute string
	packagerVersion      packager.Version
	verifier             presentproof.PresentationVerifier
	resolver             did.Resolver
	withoutAckRequest    bool
	mediatorStore        mediator.Persistence
	mediatorOpts         []mediator.Option

	packager    *packager.Packager
	cache       *instance.Cache
	router      *dispatcher.Router
	outbound    *outbound.Dispatcher
	inbound     *inbound.MessageHandler
	connections *Connections

	connectionSvc *legacyconnection.Service
	oobSvc        *outofband.Service
	issuanceSvc   *issuecredential.Service
	presentSvc    *presentproof.Service
	mediatorSvc   *mediator.Service
	pickupSvc     *messagepickup.Service
	mediation     *mediator.Client
}

// Option configures the agent.
type Option func(opts *Agent) error

// New creates an agent. Without options it keeps everything in memory, has no inbound endpoint and sends
// over http and websockets.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{packagerVersion: packager.VersionLegacy}

	for _, option := range opts {
		if err := option(a); err != nil {
			return nil, fmt.Errorf("error in option passed to New: %w", err)
		}
	}

	if err := defAgentOpts(a); err != nil {
		return nil, fmt.Errorf("default option initialization failed: %w", err)
	}

	if err := a.createServices(); err != nil {
		return nil, err
	}

	a.createDispatchers()

	return a, nil
}

func defAgentOpts(a *Agent) error {
	if a.storeProvider == nil {
		a.storeProvider = mem.NewProvider()
	}

	if a.wallet == nil {
		w, err := wallet.New(a.storeProvider)
		if err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}

		a.wallet = w
	}

	if len(a.outboundTransports) == 0 {
		a.outboundTransports = []transport.Sender{http.NewOutbound(), ws.NewOutbound()}
	}

	if a.resolver == nil {
		a.resolver = did.NewRegistry()
	}

	return nil
}

func (a *Agent) createServices() error {
	var err error

	a.cache, err = instance.New(instance.WithArchive(a.storeProvider))
	if err != nil {
		return fmt.Errorf("create instance cache: %w", err)
	}

	var connOpts []legacyconnection.Option
	if a.withoutAckRequest {
		connOpts = append(connOpts, legacyconnection.WithoutAckRequest())
	}

	a.connectionSvc, err = legacyconnection.New(a.storeProvider, a.wallet, a.endpoint, connOpts...)
	if err != nil {
		return fmt.Errorf("create connection service: %w", err)
	}

	a.oobSvc, err = outofband.New(a.storeProvider)
	if err != nil {
		return fmt.Errorf("create out-of-band service: %w", err)
	}

	a.mediation = mediator.NewClient(a.useRouter)

	a.issuanceSvc = issuecredential.New(a.cache)
	a.presentSvc = presentproof.New(a.cache, a.verifier)

	if a.mediatorStore != nil {
		a.pickupSvc = messagepickup.New(a.mediatorStore)
		a.mediatorSvc = mediator.New(a.mediatorStore, a.wallet, a.endpoint,
			append([]mediator.Option{mediator.WithNotifier(a.pickupSvc)}, a.mediatorOpts...)...)
	}

	return nil
}

func (a *Agent) createDispatchers() {
	a.packager = packager.New(a.wallet)

	a.router = dispatcher.NewRouter(a.cache)
	a.router.Register(a.connectionSvc, a.oobSvc, a.issuanceSvc, a.presentSvc, trustping.New())

	outOpts := []outbound.Option{
		outbound.WithTransports(a.outboundTransports...),
		outbound.WithVersion(a.packagerVersion),
	}

	if a.transportReturnRoute != "" {
		outOpts = append(outOpts, outbound.WithReturnRoute(a.transportReturnRoute))
	}

	a.outbound = outbound.New(a.packager, outOpts...)
	a.connections = newConnections(a)

	inOpts := []inbound.Option{
		inbound.WithObserver(a.connections.observe),
		inbound.WithServices(a.mediation),
	}

	if a.mediatorSvc != nil {
		inOpts = append(inOpts,
			inbound.WithServices(a.mediatorSvc, a.pickupSvc),
			inbound.WithSessions(a.pickupSvc.Sessions()))
	}

	a.inbound = inbound.NewInboundMessageHandler(a.packager, a.router, a.outbound, a.connections, inOpts...)
}

// Receive handles an envelope delivered by a transport. The returned envelope, if any, is written back
// on the same request.
func (a *Agent) Receive(ctx context.Context, envelope []byte) ([]byte, error) {
	return a.inbound.HandleInboundEnvelope(ctx, envelope)
}

// InboundHandler returns the handler inbound transports deliver to.
func (a *Agent) InboundHandler() transport.InboundHandler {
	return a.inbound.HandlerFunc()
}

// Endpoint returns the inbound endpoint the agent advertises.
func (a *Agent) Endpoint() string {
	return a.endpoint
}

// Wallet returns the agent's wallet.
func (a *Agent) Wallet() wallet.Wallet {
	return a.wallet
}

// Connections returns the connection manager.
func (a *Agent) Connections() *Connections {
	return a.connections
}

// OutOfBand returns the out-of-band invitation store.
func (a *Agent) OutOfBand() *outofband.Service {
	return a.oobSvc
}

// Issuer returns the issuing side of credential issuance.
func (a *Agent) Issuer() *Issuer {
	return &Issuer{a: a}
}

// Holder returns the receiving side of credential issuance.
func (a *Agent) Holder() *Holder {
	return &Holder{a: a}
}

// Verifier returns the requesting side of proof presentation.
func (a *Agent) Verifier() *Verifier {
	return &Verifier{a: a}
}

// Prover returns the presenting side of proof presentation.
func (a *Agent) Prover() *Prover {
	return &Prover{a: a}
}

// Mediator returns the mediator service, nil unless the agent was created WithMediator.
func (a *Agent) Mediator() *mediator.Service {
	return a.mediatorSvc
}

// Mediation returns the mediated side of coordinate-mediation.
func (a *Agent) Mediation() *Mediation {
	return &Mediation{a: a}
}

// useRouter advertises the mediator that granted mediation in new invitations and DID docs.
func (a *Agent) useRouter(cfg *mediator.Config) {
	a.connectionSvc.SetRouting(cfg.Endpoint(), cfg.Keys())
}

// Close frees resources being maintained by the agent.
func (a *Agent) Close() error {
	if a.storeProvider != nil {
		if err := a.storeProvider.Close(); err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}
	}

	return nil
}

// send delivers msg, the outcome of a local action on rec, over connectionID. An empty connectionID
// uses the connection the thread of rec is bound to.
func (a *Agent) send(ctx context.Context, connectionID string, rec instance.Record,
	msg service.DIDCommMsgMap) error {
	if connectionID != "" {
		a.connections.bind(rec.ThreadID(), connectionID)
	}

	res := &dispatcher.Result{
		ThreadID: rec.ThreadID(),
		Protocol: rec.Protocol(),
		Record:   rec,
		Outbound: []service.DIDCommMsgMap{msg},
	}

	return a.inbound.Send(ctx, connectionID, res)
}

// act runs a local action on an existing thread and sends what it produced over the thread's connection.
func (a *Agent) act(ctx context.Context, thID string,
	action func() (instance.Record, service.DIDCommMsgMap, error)) error {
	rec, msg, err := action()
	if err != nil {
		return fmt.Errorf("thread %s: %w", thID, err)
	}

	if msg == nil {
		return nil
	}

	return a.send(ctx, "", rec, msg)
}

// route applies a message that did not arrive in an envelope, like the request attached to an
// out-of-band invitation, as if it had arrived over connectionID.
func (a *Agent) route(ctx context.Context, connectionID string, msg service.DIDCommMsgMap) error {
	res, err := a.router.Route(ctx, connectionID, msg)
	if err != nil || res == nil {
		return err
	}

	a.connections.bind(res.ThreadID, connectionID)

	return a.inbound.Send(ctx, connectionID, res)
}

// WithStoreProvider injects a storage provider to the agent.
func WithStoreProvider(prov storage.Provider) Option {
	return func(opts *Agent) error {
		opts.storeProvider = prov
		return nil
	}
}

// WithWallet injects a wallet to the agent.
func WithWallet(w wallet.Wallet) Option {
	return func(opts *Agent) error {
		opts.wallet = w
		return nil
	}
}

// WithEndpoint sets the inbound endpoint advertised in invitations and DID docs.
func WithEndpoint(endpoint string) Option {
	return func(opts *Agent) error {
		opts.endpoint = endpoint
		return nil
	}
}

// WithOutboundTransports injects outbound transports to the agent. They are tried in order.
func WithOutboundTransports(outboundTransports ...transport.Sender) Option {
	return func(opts *Agent) error {
		opts.outboundTransports = append(opts.outboundTransports, outboundTransports...)
		return nil
	}
}

// WithTransportReturnRoute injects transport return route option to the agent.
func WithTransportReturnRoute(transportReturnRoute string) Option {
	return func(opts *Agent) error {
		opts.transportReturnRoute = transportReturnRoute
		return nil
	}
}

// WithPackagerVersion selects the envelope layout of outbound messages.
func WithPackagerVersion(v packager.Version) Option {
	return func(opts *Agent) error {
		if v != packager.VersionLegacy && v != packager.VersionModern {
			return fmt.Errorf("unsupported envelope version %d", v)
		}

		opts.packagerVersion = v

		return nil
	}
}

// WithVerifier sets the verifier of received presentations.
func WithVerifier(v presentproof.PresentationVerifier) Option {
	return func(opts *Agent) error {
		opts.verifier = v
		return nil
	}
}

// WithLedger verifies received presentations against reader with anoncreds. Ledger reads are cached.
func WithLedger(reader ledger.Reader, anoncreds presentproof.AnoncredsVerifier, opts ...ledger.CacheOption) Option {
	return func(a *Agent) error {
		if reader == nil || anoncreds == nil {
			return fmt.Errorf("ledger verifier needs a ledger reader and an anoncreds verifier")
		}

		a.verifier = presentproof.NewLedgerVerifier(ledger.NewCachingReader(reader, opts...), anoncreds)

		return nil
	}
}

// WithDIDResolver sets the resolver of DIDs named by out-of-band invitations.
func WithDIDResolver(r did.Resolver) Option {
	return func(opts *Agent) error {
		opts.resolver = r
		return nil
	}
}

// WithoutAckRequest makes the agent's connection responses ask for a trust ping instead of an ack.
func WithoutAckRequest() Option {
	return func(opts *Agent) error {
		opts.withoutAckRequest = true
		return nil
	}
}

// WithMediator makes the agent a mediator: it grants mediation, keeps keylists, queues forwarded messages
// in store and serves message pickup.
func WithMediator(store mediator.Persistence, mediatorOpts ...mediator.Option) Option {
	return func(opts *Agent) error {
		if store == nil {
			return fmt.Errorf("mediator needs a store")
		}

		opts.mediatorStore, opts.mediatorOpts = store, mediatorOpts

		return nil
	}
}
