/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

const maxEnvelopeSize = 4 << 20

// NewInboundHandler creates an http.Handler that accepts POSTed envelopes and hands them to handler.
// It answers 202 when there is nothing to return, or 200 with the reply envelope.
func NewInboundHandler(handler transport.InboundHandler) (http.Handler, error) {
	if handler == nil {
		return nil, errors.New("inbound handler: message handler is nil")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processPOSTRequest(w, r, handler)
	}), nil
}

func processPOSTRequest(w http.ResponseWriter, r *http.Request, handler transport.InboundHandler) {
	if valid := validateHTTPMethod(w, r); !valid {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
	if err != nil {
		logger.Errorf("reading request body: %s", err)
		http.Error(w, "Failed to read payload", http.StatusInternalServerError)

		return
	}

	if len(body) == 0 {
		http.Error(w, "Empty payload", http.StatusBadRequest)

		return
	}

	reply, err := handler(r.Context(), body)
	if err != nil {
		logger.Warnf("processing inbound envelope: %s", err)
		http.Error(w, "Failed to process the message", http.StatusBadRequest)

		return
	}

	if len(reply) == 0 {
		w.WriteHeader(http.StatusAccepted)

		return
	}

	w.Header().Set("Content-Type", transport.MediaTypeEncryptedEnvelope)
	w.WriteHeader(http.StatusOK)

	if _, err = w.Write(reply); err != nil {
		logger.Errorf("writing reply: %s", err)
	}
}

// validateHTTPMethod validate HTTP method and content-type
func validateHTTPMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "HTTP Method not allowed", http.StatusMethodNotAllowed)

		return false
	}

	ct := r.Header.Get("Content-Type")

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || !transport.SupportedMediaType(mt) {
		http.Error(w, fmt.Sprintf("Unsupported Content-type %q", ct), http.StatusUnsupportedMediaType)

		return false
	}

	return true
}
