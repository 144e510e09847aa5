/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/legacyconnection"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/trustping"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
	"github.com/hyperledger/aries-didcomm-go/pkg/wallet"
)

const (
	counterStart = "https://didcomm.org/basicmessage/1.0/message"
	counterNext  = "https://didcomm.org/basicmessage/1.0/next"
	counterMove  = "https://didcomm.org/basicmessage/1.0/move"
	counterFail  = "https://didcomm.org/basicmessage/1.0/fail"
	counterDone  = "https://didcomm.org/basicmessage/1.0/done"
)

type counter struct {
	thread string
	count  int
	done   bool
}

func (c counter) ThreadID() string  { return c.thread }
func (c counter) Protocol() string  { return "basicmessage" }
func (c counter) StateName() string { return fmt.Sprint(c.count) }
func (c counter) Terminal() bool    { return c.done }

type counterService struct{}

func (counterService) Protocol() string { return "basicmessage" }

func (counterService) Initiates(kind string) bool { return kind == "message" }

func (counterService) New(msg service.DIDCommMsgMap) (instance.Record, error) {
	thID, err := msg.ThreadID()

	return counter{thread: thID}, err
}

func (counterService) Handle(_ context.Context, rec instance.Record,
	msg service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	c, ok := rec.(counter)
	if !ok {
		return rec, nil, errors.New("not a counter")
	}

	switch msg.Type() {
	case counterFail:
		return rec, nil, errors.New("rejected")
	case counterMove:
		c.thread = msg.ID()
	case counterDone:
		c.done = true
	}

	c.count++

	return c, []service.DIDCommMsgMap{{"@type": "ack", "count": c.count}}, nil
}

func message(msgType, id, thID string) service.DIDCommMsgMap {
	msg := service.DIDCommMsgMap{"@type": msgType, "@id": id}
	if thID != "" {
		msg["~thread"] = map[string]interface{}{"thid": thID}
	}

	return msg
}

func newRouter(t *testing.T) (*dispatcher.Router, *instance.Cache) {
	t.Helper()

	cache, err := instance.New()
	require.NoError(t, err)

	r := dispatcher.NewRouter(cache)
	r.Register(counterService{}, trustping.New())

	return r, cache
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		protocol dispatcher.Protocol
		kind     string
		err      error
	}{
		{name: "connection request", raw: `{"@type":"https://didcomm.org/connections/1.0/request"}`,
			protocol: dispatcher.ProtocolConnections, kind: "request"},
		{name: "legacy prefix", raw: `{"@type":"did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/issue-credential/1.0/offer-credential"}`,
			protocol: dispatcher.ProtocolIssueCredential, kind: "offer-credential"},
		{name: "forward", raw: `{"@type":"https://didcomm.org/routing/1.0/forward"}`,
			protocol: dispatcher.ProtocolRouting, kind: "forward"},
		{name: "unknown family", raw: `{"@type":"https://didcomm.org/chess/1.0/move"}`,
			protocol: dispatcher.ProtocolUnknown, kind: "move", err: service.ErrUnknownMessageType},
		{name: "no type", raw: `{"@id":"1"}`, protocol: dispatcher.ProtocolUnknown, err: service.ErrUnknownMessageType},
		{name: "not json", raw: `{`, protocol: dispatcher.ProtocolUnknown, err: service.ErrInvalidJSON},
	}

	for i := range tests {
		tc := tests[i]
		t.Run(tc.name, func(t *testing.T) {
			cls, err := dispatcher.Classify([]byte(tc.raw))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tc.protocol, cls.Protocol)
			require.Equal(t, tc.kind, cls.Kind)
		})
	}
}

func TestRouter_Route(t *testing.T) {
	ctx := context.Background()

	t.Run("initiating message creates an instance", func(t *testing.T) {
		r, cache := newRouter(t)

		res, err := r.Route(ctx, "", message(counterStart, "t1", ""))
		require.NoError(t, err)
		require.Equal(t, "t1", res.ThreadID)
		require.Equal(t, "basicmessage", res.Protocol)
		require.Len(t, res.Outbound, 1)
		require.True(t, cache.Has("t1"))

		res, err = r.Route(ctx, "", message(counterNext, uuid.New().String(), "t1"))
		require.NoError(t, err)
		require.Equal(t, "2", res.Record.StateName())
	})

	t.Run("message on unknown thread is ignored", func(t *testing.T) {
		r, cache := newRouter(t)

		res, err := r.Route(ctx, "", message(counterNext, "n1", "nowhere"))
		require.NoError(t, err)
		require.Nil(t, res)
		require.Zero(t, cache.Len())
	})

	t.Run("unknown family is ignored", func(t *testing.T) {
		r, _ := newRouter(t)

		res, err := r.Route(ctx, "", message("https://didcomm.org/chess/1.0/move", "c1", ""))
		require.NoError(t, err)
		require.Nil(t, res)
	})

	t.Run("message without id", func(t *testing.T) {
		r, _ := newRouter(t)

		_, err := r.Route(ctx, "", service.DIDCommMsgMap{"@type": counterStart})
		require.ErrorIs(t, err, service.ErrThreadIDNotFound)
	})

	t.Run("failed first message releases the instance", func(t *testing.T) {
		r, cache := newRouter(t)
		r.Register(failingStart{})

		_, err := r.Route(ctx, "", message("https://didcomm.org/notification/1.0/ack", "f1", ""))
		require.Error(t, err)
		require.False(t, cache.Has("f1"))
	})

	t.Run("failed message keeps the previous state", func(t *testing.T) {
		r, cache := newRouter(t)

		_, err := r.Route(ctx, "", message(counterStart, "k1", ""))
		require.NoError(t, err)

		_, err = r.Route(ctx, "", message(counterFail, "k2", "k1"))
		require.Error(t, err)

		rec, err := cache.Get("k1")
		require.NoError(t, err)
		require.Equal(t, "1", rec.StateName())
	})

	t.Run("thread change moves the instance", func(t *testing.T) {
		r, cache := newRouter(t)

		_, err := r.Route(ctx, "", message(counterStart, "m1", ""))
		require.NoError(t, err)

		res, err := r.Route(ctx, "", message(counterMove, "m2", "m1"))
		require.NoError(t, err)
		require.Equal(t, "m2", res.ThreadID)
		require.False(t, cache.Has("m1"))
		require.True(t, cache.Has("m2"))
	})

	t.Run("unthreaded message falls back to a pending connection", func(t *testing.T) {
		r, cache := newRouter(t)

		_, err := r.Route(ctx, "", message(counterStart, "conn", ""))
		require.NoError(t, err)

		res, err := r.Route(ctx, "conn", message(counterNext, "x1", ""))
		require.NoError(t, err)
		require.Equal(t, "conn", res.ThreadID)
		require.Equal(t, "2", res.Record.StateName())

		ping := service.MustDIDCommMsgMap(trustping.NewPing(true, ""))

		res, err = r.Route(ctx, "conn", ping)
		require.NoError(t, err)
		require.Equal(t, "conn", res.ThreadID)

		_, err = r.Route(ctx, "", message(counterDone, "x2", "conn"))
		require.NoError(t, err)

		// completed connections no longer absorb unthreaded messages
		res, err = r.Route(ctx, "conn", message(counterNext, "x3", ""))
		require.NoError(t, err)
		require.Nil(t, res)

		res, err = r.Route(ctx, "conn", ping.Clone())
		require.NoError(t, err)
		require.Equal(t, trustping.ProtocolName, res.Protocol)
		require.Len(t, res.Outbound, 1)
		require.True(t, cache.Has(ping.ID()))
	})
}

type notice struct{}

func (notice) ThreadID() string  { return "f1" }
func (notice) Protocol() string  { return "notification" }
func (notice) StateName() string { return "start" }
func (notice) Terminal() bool    { return false }

type failingStart struct{}

func (failingStart) Protocol() string      { return "notification" }
func (failingStart) Initiates(string) bool { return true }

func (failingStart) New(service.DIDCommMsgMap) (instance.Record, error) {
	return notice{}, nil
}

func (failingStart) Handle(_ context.Context, rec instance.Record,
	_ service.DIDCommMsgMap) (instance.Record, []service.DIDCommMsgMap, error) {
	return rec, nil, errors.New("rejected")
}

func TestRouter_ThreadIsolation(t *testing.T) {
	r, cache := newRouter(t)
	r.Register(counterService{})

	const (
		threads  = 8
		messages = 25
	)

	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		thID := fmt.Sprintf("thread-%d", i)

		_, err := r.Route(context.Background(), "", message(counterStart, thID, ""))
		require.NoError(t, err)

		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < messages; j++ {
				_, err := r.Route(context.Background(), "", message(counterNext, uuid.New().String(), thID))
				require.NoError(t, err)
			}
		}()
	}

	wg.Wait()

	for i := 0; i < threads; i++ {
		rec, err := cache.Get(fmt.Sprintf("thread-%d", i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprint(messages+1), rec.StateName())
	}
}

func TestRouter_MoveKeepsConcurrentTransitions(t *testing.T) {
	r, cache := newRouter(t)
	r.Register(counterService{})

	_, err := r.Route(context.Background(), "", message(counterStart, "m1", ""))
	require.NoError(t, err)

	const followers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied = 1
	)

	route := func(msg service.DIDCommMsgMap) {
		defer wg.Done()

		res, err := r.Route(context.Background(), "", msg)
		require.NoError(t, err)

		if res == nil {
			return
		}

		mu.Lock()
		applied++
		mu.Unlock()
	}

	wg.Add(followers + 1)

	go route(message(counterMove, "m2", "m1"))

	for i := 0; i < followers; i++ {
		go route(message(counterNext, uuid.New().String(), "m1"))
	}

	wg.Wait()

	require.False(t, cache.Has("m1"))

	rec, err := cache.Get("m2")
	require.NoError(t, err)
	require.Equal(t, fmt.Sprint(applied), rec.StateName())
}

func newConnections(t *testing.T, endpoint string, opts ...legacyconnection.Option) *legacyconnection.Service {
	t.Helper()

	provider := mem.NewProvider()

	w, err := wallet.New(provider)
	require.NoError(t, err)

	s, err := legacyconnection.New(provider, w, endpoint, opts...)
	require.NoError(t, err)

	return s
}

func TestRouter_UnthreadedPingCompletesConnection(t *testing.T) {
	ctx := context.Background()

	faber := newConnections(t, "http://faber.example/didcomm", legacyconnection.WithoutAckRequest())
	bob := newConnections(t, "http://bob.example/didcomm")

	r, _ := newRouter(t)
	r.Register(faber)

	inv, err := faber.CreateInvitation("Faber College")
	require.NoError(t, err)

	invitee, _, err := legacyconnection.NewInvitee().Handle(service.MustDIDCommMsgMap(inv), nil)
	require.NoError(t, err)

	_, req, err := bob.AcceptInvitation(invitee, "Bob")
	require.NoError(t, err)

	res, err := r.Route(ctx, "", service.MustDIDCommMsgMap(req))
	require.NoError(t, err)
	require.Equal(t, req.ID, res.ThreadID)
	require.Equal(t, string(legacyconnection.StateResponded), res.Record.StateName())

	res, err = r.Route(ctx, req.ID, service.MustDIDCommMsgMap(trustping.NewPing(false, "")))
	require.NoError(t, err)
	require.Equal(t, req.ID, res.ThreadID)
	require.Equal(t, legacyconnection.ProtocolName, res.Protocol)
	require.Equal(t, string(legacyconnection.StateCompleted), res.Record.StateName())
}
