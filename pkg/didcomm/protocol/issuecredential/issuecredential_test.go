/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/model"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/fsm"
	"github.com/hyperledger/aries-didcomm-go/pkg/store/instance"
)

var (
	offerJSON      = []byte(`{"schema_id":"s:2:degree:1.0","cred_def_id":"c:3:CL:1:tag","nonce":"1"}`)
	requestJSON    = []byte(`{"prover_did":"did:sov:bob","cred_def_id":"c:3:CL:1:tag","nonce":"2"}`)
	credentialJSON = []byte(`{"schema_id":"s:2:degree:1.0","rev_reg_id":"r:4:CL_ACCUM:1","cred_rev_id":"7"}`)
	revocation     = RevocationInfo{RevRegID: "r:4:CL_ACCUM:1", TailsFile: "/tails/r1"}
	preview        = NewPreview(Attribute{Name: "degree", Value: "Maths"}, Attribute{Name: "name", Value: "Bob"})
)

func toMap(t *testing.T, v interface{}) service.DIDCommMsgMap {
	t.Helper()

	msg, err := service.NewDIDCommMsgMap(v)
	require.NoError(t, err)

	return msg
}

func handle(t *testing.T, m Machine, msg service.DIDCommMsgMap) (Machine, service.DIDCommMsgMap) {
	t.Helper()

	next, out, err := m.Handle(msg)
	require.NoError(t, err)

	return next, out
}

// stages walks one issuance started by an offer and one started by a proposal, returning the machines
// found on the way keyed by role and state.
func stages(t *testing.T) map[string]Machine {
	t.Helper()

	out := map[string]Machine{"issuer/initial": NewIssuer(), "holder/initial": NewHolder()}

	issuer, offer, err := NewIssuer().SendOffer(preview, offerJSON, revocation)
	require.NoError(t, err)
	out["issuer/offer-sent"] = issuer

	holder, _ := handle(t, NewHolder(), toMap(t, offer))
	out["holder/offer-received"] = holder

	holder, req, err := holder.SendRequest(requestJSON)
	require.NoError(t, err)
	out["holder/request-sent"] = holder

	issuer, _ = handle(t, issuer, toMap(t, req))
	out["issuer/request-received"] = issuer

	issuer, _, err = issuer.SendCredential(credentialJSON, "7")
	require.NoError(t, err)
	out["issuer/credential-sent"] = issuer

	holder, proposal, err := NewHolder().SendProposal(ProposeCredential{CredDefID: "c:3:CL:1:tag"})
	require.NoError(t, err)
	out["holder/proposal-sent"] = holder

	issuer, _ = handle(t, NewIssuer(), toMap(t, proposal))
	out["issuer/proposal-received"] = issuer

	return out
}

func TestIssuance_OfferFirst(t *testing.T) {
	issuer, offer, err := NewIssuer().SendOffer(preview, offerJSON, revocation)
	require.NoError(t, err)
	require.Equal(t, StateOfferSent, issuer.State())
	require.Equal(t, offer.ID, issuer.ThreadID())
	require.Equal(t, "libindy-cred-offer-0", offer.OffersAttach[0].ID)

	holder, out := handle(t, NewHolder(), toMap(t, offer))
	require.Nil(t, out)
	require.Equal(t, StateOfferReceived, holder.State())
	require.Equal(t, offer.ID, holder.ThreadID())
	require.Equal(t, offerJSON, holder.Offer())
	require.Equal(t, preview.Attributes, holder.Preview().Attributes)

	holder, req, err := holder.SendRequest(requestJSON)
	require.NoError(t, err)
	require.Equal(t, StateRequestSent, holder.State())
	require.Equal(t, offer.ID, req.ThreadID())

	issuer, out = handle(t, issuer, toMap(t, req))
	require.Nil(t, out)
	require.Equal(t, StateRequestReceived, issuer.State())
	require.Equal(t, requestJSON, issuer.Request())

	issuer, cred, err := issuer.SendCredential(credentialJSON, "7")
	require.NoError(t, err)
	require.Equal(t, StateCredentialSent, issuer.State())
	require.True(t, cred.AckRequested())

	holder, ack := handle(t, holder, toMap(t, cred))
	require.Equal(t, StateFinished, holder.State())
	require.True(t, holder.Terminal())
	require.Equal(t, StatusSuccess, holder.Status())
	require.Equal(t, credentialJSON, holder.Credential())
	require.Equal(t, "r:4:CL_ACCUM:1", holder.RevocationInfo().RevRegID)
	require.Equal(t, "7", holder.RevocationInfo().CredRevID)
	require.NotNil(t, ack)
	require.Equal(t, AckMsgType, ack.Type())

	issuer, out = handle(t, issuer, ack)
	require.Nil(t, out)
	require.Equal(t, StateFinished, issuer.State())
	require.Equal(t, StatusSuccess, issuer.Status())
	require.True(t, issuer.IsRevokable())
	require.Equal(t, RevocationInfo{RevRegID: "r:4:CL_ACCUM:1", TailsFile: "/tails/r1", CredRevID: "7"},
		issuer.RevocationInfo())
}

func TestIssuance_ProposalFirst(t *testing.T) {
	holder, proposal, err := NewHolder().SendProposal(ProposeCredential{
		Comment:            "please",
		CredentialProposal: &preview,
		CredDefID:          "c:3:CL:1:tag",
	})
	require.NoError(t, err)
	require.Equal(t, StateProposalSent, holder.State())
	require.Equal(t, ProposeCredentialMsgType, proposal.Type)

	issuer, _ := handle(t, NewIssuer(), toMap(t, proposal))
	require.Equal(t, StateProposalReceived, issuer.State())
	require.Equal(t, "c:3:CL:1:tag", issuer.Proposal().CredDefID)

	issuer, offer, err := issuer.SendOffer(preview, offerJSON, RevocationInfo{})
	require.NoError(t, err)
	require.Equal(t, proposal.ID, offer.ThreadID())
	require.False(t, issuer.IsRevokable())

	holder, _ = handle(t, holder, toMap(t, offer))
	require.Equal(t, StateOfferReceived, holder.State())

	t.Run("counter proposal", func(t *testing.T) {
		counter := toMap(t, &ProposeCredential{Type: ProposeCredentialMsgType, ID: "counter"})
		counter["~thread"] = map[string]interface{}{"thid": proposal.ID}

		next, _ := handle(t, issuer, counter)
		require.Equal(t, StateProposalReceived, next.State())
		require.Equal(t, "counter", next.Proposal().ID)
	})
}

func TestIssuance_CredentialWithoutAckRequest(t *testing.T) {
	holder := stages(t)["holder/request-sent"]

	cred := &IssueCredential{
		Type:              IssueCredentialMsgType,
		ID:                "cred",
		CredentialsAttach: []decorator.Attachment{jsonAttachment(credentialAttachID, []byte("opaque"))},
	}
	cred.SetThread(holder.ThreadID())

	holder, out := handle(t, holder, toMap(t, cred))
	require.Nil(t, out)
	require.Equal(t, StatusSuccess, holder.Status())
	require.Equal(t, []byte("opaque"), holder.Credential())
	require.Empty(t, holder.RevocationInfo())
}

func TestIssuance_ProblemReportRecovery(t *testing.T) {
	st := stages(t)

	for name, m := range st {
		m := m

		t.Run(name, func(t *testing.T) {
			require.False(t, m.Terminal())

			thID := m.ThreadID()
			if thID == "" {
				thID = "new-thread"
			}

			report := model.NewProblemReport(ProblemReportMsgType, thID, "issuance-abandoned", "changed my mind")

			next, out := handle(t, m, toMap(t, report))
			require.Nil(t, out)
			require.Equal(t, StateFinished, next.State())
			require.True(t, next.Terminal())
			require.Equal(t, StatusFailed, next.Status())
			require.Equal(t, "issuance-abandoned", next.Problem().ReasonCode())
			require.Equal(t, "changed my mind", next.Problem().Reason())
			require.Equal(t, m.RevocationInfo(), next.RevocationInfo())
			require.Equal(t, m.IsRevokable(), next.IsRevokable())

			_, _, err := next.Handle(toMap(t, report))
			require.ErrorIs(t, err, fsm.ErrUnexpectedMessage)
		})
	}

	t.Run("revocation data survives", func(t *testing.T) {
		m := st["issuer/credential-sent"]
		report := model.NewProblemReport(ProblemReportMsgType, m.ThreadID(), "storage-failure", "")

		next, _ := handle(t, m, toMap(t, report))
		require.True(t, next.IsRevokable())
		require.Equal(t, "7", next.RevocationInfo().CredRevID)
		require.Equal(t, "/tails/r1", next.RevocationInfo().TailsFile)
	})

	t.Run("generic problem report", func(t *testing.T) {
		m := st["holder/offer-received"]
		report := model.NewProblemReport("https://didcomm.org/report-problem/1.0/problem-report", m.ThreadID(),
			"offer-expired", "")

		next, _ := handle(t, m, toMap(t, report))
		require.Equal(t, StatusFailed, next.Status())
	})
}

func TestIssuance_Decline(t *testing.T) {
	holder := stages(t)["holder/offer-received"]

	next, report, err := holder.Decline("not interested")
	require.NoError(t, err)
	require.Equal(t, StateFinished, next.State())
	require.Equal(t, StatusFailed, next.Status())
	require.Equal(t, ProblemCodeAbandoned, report.ReasonCode())
	require.Equal(t, holder.ThreadID(), report.ThreadID())

	_, _, err = NewHolder().Decline("too early")
	require.ErrorIs(t, err, fsm.ErrUnexpectedMessage)
}

func TestIssuance_HandleErrors(t *testing.T) {
	st := stages(t)

	t.Run("role mismatch", func(t *testing.T) {
		req := toMap(t, &RequestCredential{Type: RequestCredentialMsgType, ID: "r"})

		holder := st["holder/offer-received"]
		next, _, err := holder.Handle(req)
		require.ErrorIs(t, err, fsm.ErrUnexpectedMessage)
		require.Equal(t, holder, next)

		pe := &fsm.ProtocolError{}
		require.True(t, errors.As(err, &pe))
		require.Equal(t, Name, pe.Protocol)
		require.Equal(t, string(StateOfferReceived), pe.State)
	})

	t.Run("thread mismatch", func(t *testing.T) {
		issuer := st["issuer/offer-sent"]
		req := &RequestCredential{
			Type:           RequestCredentialMsgType,
			ID:             "r",
			RequestsAttach: []decorator.Attachment{jsonAttachment(requestAttachID, requestJSON)},
		}
		req.SetThread("other")

		next, _, err := issuer.Handle(toMap(t, req))
		require.ErrorIs(t, err, fsm.ErrThreadMismatch)
		require.Equal(t, StateOfferSent, next.State())
	})

	t.Run("offer without attachment", func(t *testing.T) {
		next, _, err := NewHolder().Handle(toMap(t, &OfferCredential{Type: OfferCredentialMsgType, ID: "o"}))
		require.ErrorIs(t, err, fsm.ErrInvalidState)
		require.Equal(t, NewHolder(), next)
	})

	t.Run("empty local payloads", func(t *testing.T) {
		_, _, err := NewIssuer().SendOffer(preview, nil, RevocationInfo{})
		require.ErrorIs(t, err, fsm.ErrInvalidState)

		_, _, err = st["holder/offer-received"].SendRequest(nil)
		require.ErrorIs(t, err, fsm.ErrInvalidState)

		_, _, err = st["issuer/request-received"].SendCredential(nil, "")
		require.ErrorIs(t, err, fsm.ErrInvalidState)
	})

	t.Run("credential before request", func(t *testing.T) {
		_, _, err := st["issuer/offer-sent"].SendCredential(credentialJSON, "")
		require.ErrorIs(t, err, fsm.ErrUnexpectedMessage)
	})

	t.Run("unknown ignored", func(t *testing.T) {
		m := st["holder/request-sent"]
		next, out, err := m.Handle(service.DIDCommMsgMap{"@type": "https://didcomm.org/basicmessage/1.0/message"})
		require.NoError(t, err)
		require.Nil(t, out)
		require.Equal(t, m, next)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msgType string
		kind    Kind
	}{
		{msgType: OfferCredentialMsgType, kind: KindOffer},
		{msgType: "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec/issue-credential/1.0/offer-credential", kind: KindOffer},
		{msgType: ProposeCredentialMsgType, kind: KindPropose},
		{msgType: RequestCredentialMsgType, kind: KindRequest},
		{msgType: IssueCredentialMsgType, kind: KindCredential},
		{msgType: AckMsgType, kind: KindAck},
		{msgType: model.NotificationAckMsgType, kind: KindAck},
		{msgType: ProblemReportMsgType, kind: KindProblemReport},
		{msgType: "https://didcomm.org/issue-credential/2.0/offer-credential", kind: KindUnknown},
		{msgType: "https://didcomm.org/issue-credential/1.0/revoke", kind: KindUnknown},
		{msgType: "", kind: KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.msgType, func(t *testing.T) {
			require.Equal(t, tc.kind, Classify(service.DIDCommMsgMap{"@type": tc.msgType}))
		})
	}
}

func TestMachine_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(stages(t)["issuer/credential-sent"])
	require.NoError(t, err)

	rec := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Equal(t, "issuer", rec["role"])
	require.Equal(t, "credential-sent", rec["state"])
	require.Equal(t, "7", rec["revocation"].(map[string]interface{})["cred_rev_id"])
}

type fakeRecord struct{ Machine }

func TestService(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) *Service {
		t.Helper()

		cache, err := instance.New()
		require.NoError(t, err)

		return New(cache)
	}

	t.Run("router handler", func(t *testing.T) {
		s := newService(t)
		require.Equal(t, Name, s.Protocol())
		require.True(t, s.Initiates(string(KindOffer)))
		require.True(t, s.Initiates(string(KindPropose)))
		require.False(t, s.Initiates(string(KindRequest)))

		rec, err := s.New(toMap(t, &ProposeCredential{Type: ProposeCredentialMsgType, ID: "p"}))
		require.NoError(t, err)
		require.Equal(t, RoleIssuer, rec.(Machine).Role())

		rec, err = s.New(toMap(t, &OfferCredential{Type: OfferCredentialMsgType, ID: "o"}))
		require.NoError(t, err)
		require.Equal(t, RoleHolder, rec.(Machine).Role())

		_, _, err = s.Handle(ctx, fakeRecord{}, service.DIDCommMsgMap{})
		require.Error(t, err)
	})

	t.Run("local actions through the cache", func(t *testing.T) {
		issuerSvc, holderSvc := newService(t), newService(t)

		issuer, offer, err := issuerSvc.SendOffer(ctx, "", preview, offerJSON, revocation)
		require.NoError(t, err)
		require.Equal(t, OfferCredentialMsgType, offer.Type())

		rec, err := holderSvc.New(offer)
		require.NoError(t, err)

		next, out, err := holderSvc.Handle(ctx, rec, offer)
		require.NoError(t, err)
		require.Empty(t, out)
		require.NoError(t, holderSvc.cache.Add(next.ThreadID(), next))

		_, req, err := holderSvc.SendRequest(ctx, issuer.ThreadID(), requestJSON)
		require.NoError(t, err)

		stored, err := holderSvc.Get(issuer.ThreadID())
		require.NoError(t, err)
		require.Equal(t, StateRequestSent, stored.State())

		issuerRec, err := issuerSvc.cache.Get(issuer.ThreadID())
		require.NoError(t, err)

		issuerNext, _, err := issuerSvc.Handle(ctx, issuerRec, req)
		require.NoError(t, err)
		require.Equal(t, string(StateRequestReceived), issuerNext.StateName())
	})

	t.Run("unknown thread", func(t *testing.T) {
		s := newService(t)

		_, _, err := s.SendCredential(ctx, "missing", credentialJSON, "")
		require.ErrorIs(t, err, instance.ErrNotFound)

		_, err = s.Get("missing")
		require.ErrorIs(t, err, instance.ErrNotFound)
	})

	t.Run("rejected action keeps the stored machine", func(t *testing.T) {
		s := newService(t)

		issuer, _, err := s.SendOffer(ctx, "", preview, offerJSON, revocation)
		require.NoError(t, err)

		_, _, err = s.Decline(ctx, issuer.ThreadID(), "issuers cannot decline")
		require.ErrorIs(t, err, fsm.ErrUnexpectedMessage)

		stored, err := s.Get(issuer.ThreadID())
		require.NoError(t, err)
		require.Equal(t, StateOfferSent, stored.State())
	})

	t.Run("middleware", func(t *testing.T) {
		s := newService(t)

		var seen []string

		s.Use(func(next Handler) Handler {
			return HandlerFunc(func(md MetaData) error {
				seen = append(seen, md.StateName())

				if md.Message() != nil && md.Machine().State() == StateOfferReceived {
					return errors.New("offer refused")
				}

				return next.Handle(md)
			})
		})

		_, offer, err := s.SendOffer(ctx, "", preview, offerJSON, revocation)
		require.NoError(t, err)

		rec, err := s.New(offer)
		require.NoError(t, err)

		next, _, err := s.Handle(ctx, rec, offer)
		require.EqualError(t, err, "middleware: offer refused")
		require.Equal(t, StateInitial, next.(Machine).State())
		require.Equal(t, []string{"offer-sent", "offer-received"}, seen)
	})
}
