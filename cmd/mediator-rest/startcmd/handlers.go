/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/outofband"
	arieshttp "github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-didcomm-go/pkg/framework/agent"
)

const (
	inboundPath     = "/"
	wsPath          = "/ws"
	invitationPath  = "/invitation"
	accountsPath    = "/accounts"
	healthCheckPath = "/healthcheck"
)

type invitationResponse struct {
	Invitation    *outofband.Invitation `json:"invitation"`
	InvitationURL string                `json:"invitation_url"`
}

type accountsResponse struct {
	Accounts []mediator.AccountDetails `json:"accounts"`
}

type healthCheckResp struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type controller struct {
	agent    *agent.Agent
	store    mediator.Persistence
	label    string
	endpoint string
}

func newRouter(a *agent.Agent, store mediator.Persistence, parameters *mediatorParameters) (http.Handler, error) {
	inbound, err := arieshttp.NewInboundHandler(a.InboundHandler())
	if err != nil {
		return nil, errors.Wrap(err, "http inbound")
	}

	wsInbound, err := ws.NewInboundHandler(a.InboundHandler())
	if err != nil {
		return nil, errors.Wrap(err, "websocket inbound")
	}

	c := &controller{agent: a, store: store, label: parameters.label, endpoint: parameters.endpoint}

	router := mux.NewRouter()

	router.Handle(inboundPath, inbound).Methods(http.MethodPost)
	router.Handle(wsPath, wsInbound).Methods(http.MethodGet)
	router.HandleFunc(healthCheckPath, healthCheck).Methods(http.MethodGet)

	admin := func(h http.HandlerFunc) http.Handler {
		if parameters.token == "" {
			return h
		}

		return authorizationMiddleware(parameters.token)(h)
	}

	router.Handle(invitationPath, admin(c.invitation)).Methods(http.MethodGet)
	router.Handle(accountsPath, admin(c.accounts)).Methods(http.MethodGet)

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router)

	return handler, nil
}

func (c *controller) invitation(rw http.ResponseWriter, _ *http.Request) {
	inv, err := c.agent.Connections().CreateOOBInvitation(c.label)
	if err != nil {
		logger.Errorf("create invitation: %s", err)
		writeError(rw, http.StatusInternalServerError, err)

		return
	}

	invURL, err := outofband.InvitationURL(inv, c.endpoint)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)

		return
	}

	writeJSON(rw, http.StatusOK, &invitationResponse{Invitation: inv, InvitationURL: invURL})
}

func (c *controller) accounts(rw http.ResponseWriter, r *http.Request) {
	accounts, err := c.store.ListAccounts(r.Context())
	if err != nil {
		logger.Errorf("list accounts: %s", err)
		writeError(rw, http.StatusInternalServerError, err)

		return
	}

	if accounts == nil {
		accounts = []mediator.AccountDetails{}
	}

	writeJSON(rw, http.StatusOK, &accountsResponse{Accounts: accounts})
}

func healthCheck(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, &healthCheckResp{Status: "success"})
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, &errorResponse{Message: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Errorf("write response: %s", err)
	}
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

func authorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}
