/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/http")

const (
	defaultRetries  = 3
	defaultInterval = 200 * time.Millisecond
	maxReplySize    = 4 << 20
)

// ErrStatus is returned for a non-2xx response.
var ErrStatus = errors.New("unexpected http status")

type outboundOpts struct {
	client   *http.Client
	retries  uint64
	interval time.Duration
}

// OutboundOpt is an outbound HTTP transport option.
type OutboundOpt func(opts *outboundOpts)

// WithHTTPClient sends with client instead of a default one.
func WithHTTPClient(client *http.Client) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = client
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client.Timeout = timeout
	}
}

// WithTLSConfig sends over a client using tlsConfig.
func WithTLSConfig(tlsConfig *tls.Config) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// WithRetries sets how often a 5xx or a failed round trip is retried, and the initial interval between tries.
func WithRetries(retries uint64, interval time.Duration) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.retries = retries
		opts.interval = interval
	}
}

// Outbound posts envelopes to http(s) endpoints.
type Outbound struct {
	client   *http.Client
	retries  uint64
	interval time.Duration
}

// NewOutbound creates an outbound HTTP transport.
func NewOutbound(opts ...OutboundOpt) *Outbound {
	o := &outboundOpts{
		client:   &http.Client{},
		retries:  defaultRetries,
		interval: defaultInterval,
	}

	for _, opt := range opts {
		opt(o)
	}

	return &Outbound{client: o.client, retries: o.retries, interval: o.interval}
}

// Accept reports whether endpoint is an http(s) url.
func (o *Outbound) Accept(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

// Send posts envelope to endpoint and returns the response body.
func (o *Outbound) Send(ctx context.Context, envelope []byte, endpoint string) ([]byte, error) {
	var reply []byte

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.interval

	err := backoff.RetryNotify(func() error {
		var err error

		reply, err = o.post(ctx, envelope, endpoint)

		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, o.retries), ctx), func(err error, wait time.Duration) {
		logger.Warnf("post to %s failed, retrying in %s: %s", endpoint, wait, err)
	})
	if err != nil {
		return nil, fmt.Errorf("http send to %s: %w", endpoint, err)
	}

	return reply, nil
}

func (o *Outbound) post(ctx context.Context, envelope []byte, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req.Header.Set("Content-Type", transport.MediaTypeEncryptedEnvelope)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Errorf("closing response body: %s", e)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrStatus, resp.Status))
	}

	return body, nil
}
