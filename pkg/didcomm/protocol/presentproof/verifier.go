/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package presentproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-didcomm-go/pkg/ledger"
)

// VerificationStatus is the verdict on a presentation.
type VerificationStatus string

// Verification outcomes. Unavailable means the presentation could not be checked, e.g. the ledger was
// unreachable, and says nothing about the proof itself.
const (
	StatusValid       VerificationStatus = "valid"
	StatusInvalid     VerificationStatus = "invalid"
	StatusUnavailable VerificationStatus = "unavailable"
)

// ErrInvalidPresentation is returned for presentations that do not parse or name nothing to verify.
var ErrInvalidPresentation = errors.New("invalid presentation")

// PresentationVerifier checks a presentation against the request it answers.
type PresentationVerifier interface {
	Verify(ctx context.Context, request, presentation []byte) (VerificationStatus, error)
}

// Artifacts are the ledger objects a presentation refers to, keyed by id.
type Artifacts struct {
	Schemas    map[string]json.RawMessage
	CredDefs   map[string]json.RawMessage
	RevRegDefs map[string]json.RawMessage
	// RevStatusLists holds the registry state at each referenced timestamp.
	RevStatusLists []*ledger.RevStatusList
}

// AnoncredsVerifier is the proof math.
type AnoncredsVerifier interface {
	VerifyPresentation(ctx context.Context, request, presentation []byte, artifacts *Artifacts) (bool, error)
}

// LedgerVerifier reads every artifact a libindy presentation names from the ledger, then hands them to
// the anoncreds verifier.
type LedgerVerifier struct {
	reader    ledger.Reader
	anoncreds AnoncredsVerifier
}

var _ PresentationVerifier = (*LedgerVerifier)(nil)

// NewLedgerVerifier creates a LedgerVerifier.
func NewLedgerVerifier(reader ledger.Reader, anoncreds AnoncredsVerifier) *LedgerVerifier {
	return &LedgerVerifier{reader: reader, anoncreds: anoncreds}
}

type identifier struct {
	SchemaID  string `json:"schema_id"`
	CredDefID string `json:"cred_def_id"`
	RevRegID  string `json:"rev_reg_id,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

type presentationIDs struct {
	Identifiers []identifier `json:"identifiers"`
}

// Verify implements PresentationVerifier. An artifact missing from the ledger makes the presentation
// Invalid; any other ledger failure makes verification Unavailable.
func (v *LedgerVerifier) Verify(ctx context.Context, request, presentation []byte) (VerificationStatus, error) {
	ids := presentationIDs{}
	if err := json.Unmarshal(presentation, &ids); err != nil {
		return StatusInvalid, fmt.Errorf("%w: %s", ErrInvalidPresentation, err)
	}

	if len(ids.Identifiers) == 0 {
		return StatusInvalid, fmt.Errorf("%w: no identifiers", ErrInvalidPresentation)
	}

	artifacts, err := v.resolve(ctx, ids.Identifiers)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerItemNotFound) {
			return StatusInvalid, err
		}

		return StatusUnavailable, err
	}

	ok, err := v.anoncreds.VerifyPresentation(ctx, request, presentation, artifacts)
	if err != nil {
		return StatusInvalid, fmt.Errorf("anoncreds: %w", err)
	}

	if !ok {
		return StatusInvalid, nil
	}

	return StatusValid, nil
}

func (v *LedgerVerifier) resolve(ctx context.Context, ids []identifier) (*Artifacts, error) {
	a := &Artifacts{
		Schemas:    map[string]json.RawMessage{},
		CredDefs:   map[string]json.RawMessage{},
		RevRegDefs: map[string]json.RawMessage{},
	}

	for _, id := range ids {
		if err := fetch(ctx, a.Schemas, id.SchemaID, v.reader.GetSchema); err != nil {
			return nil, err
		}

		if err := fetch(ctx, a.CredDefs, id.CredDefID, v.reader.GetCredDef); err != nil {
			return nil, err
		}

		if id.RevRegID == "" {
			continue
		}

		if err := fetch(ctx, a.RevRegDefs, id.RevRegID, v.reader.GetRevRegDef); err != nil {
			return nil, err
		}

		status, err := v.reader.GetRevStatusList(ctx, id.RevRegID, id.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("revocation status %s: %w", id.RevRegID, err)
		}

		a.RevStatusLists = append(a.RevStatusLists, status)
	}

	return a, nil
}

func fetch(ctx context.Context, into map[string]json.RawMessage, id string,
	get func(context.Context, string) (json.RawMessage, error)) error {
	if id == "" {
		return fmt.Errorf("%w: empty ledger id", ledger.ErrLedgerItemNotFound)
	}

	if _, ok := into[id]; ok {
		return nil
	}

	raw, err := get(ctx, id)
	if err != nil {
		return fmt.Errorf("ledger read %s: %w", id, err)
	}

	into[id] = raw

	return nil
}
