/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

import (
	"github.com/google/uuid"

	"github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"
)

// Impact values of a problem report.
const (
	ImpactMessage    = "message"
	ImpactThread     = "thread"
	ImpactConnection = "connection"
)

// ProblemReport problem report definition, per Aries RFC 0035.
type ProblemReport struct {
	Type         string              `json:"@type"`
	ID           string              `json:"@id"`
	Description  *Code               `json:"description,omitempty"`
	ProblemItems []map[string]string `json:"problem_items,omitempty"`
	WhoRetries   string              `json:"who_retries,omitempty"`
	Impact       string              `json:"impact,omitempty"`
	Where        string              `json:"where,omitempty"`
	Explain      string              `json:"explain,omitempty"`
	// ProblemCode is the connections/1.0 flavour of Description.Code.
	ProblemCode string      `json:"problem-code,omitempty"`
	WebRedirect interface{} `json:"~web-redirect,omitempty"`
	decorator.Threaded
	decorator.Localized
}

// Code represents a problem report code.
type Code struct {
	Code string `json:"code"`
	En   string `json:"en,omitempty"`
}

// NewProblemReport builds a problem report of the given family type for thID.
func NewProblemReport(msgType, thID, code, explain string) *ProblemReport {
	pr := &ProblemReport{
		Type:        msgType,
		ID:          uuid.New().String(),
		Description: &Code{Code: code, En: explain},
		Impact:      ImpactThread,
	}
	pr.SetThread(thID)

	return pr
}

// ReasonCode returns the machine readable reason, whichever field carries it.
func (p *ProblemReport) ReasonCode() string {
	if p.Description != nil && p.Description.Code != "" {
		return p.Description.Code
	}

	return p.ProblemCode
}

// Reason returns the human readable explanation, whichever field carries it.
func (p *ProblemReport) Reason() string {
	if p.Description != nil && p.Description.En != "" {
		return p.Description.En
	}

	return p.Explain
}
