/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuecredential

import "github.com/hyperledger/aries-didcomm-go/pkg/didcomm/protocol/decorator"

const (
	// Name defines the protocol name.
	Name = "issue-credential"
	// PIURI is the issue-credential/1.0 protocol identifier URI.
	PIURI = "https://didcomm.org/issue-credential/1.0"
	// ProposeCredentialMsgType defines the propose-credential message type.
	ProposeCredentialMsgType = PIURI + "/propose-credential"
	// OfferCredentialMsgType defines the offer-credential message type.
	OfferCredentialMsgType = PIURI + "/offer-credential"
	// RequestCredentialMsgType defines the request-credential message type.
	RequestCredentialMsgType = PIURI + "/request-credential"
	// IssueCredentialMsgType defines the issue-credential message type.
	IssueCredentialMsgType = PIURI + "/issue-credential"
	// AckMsgType defines the ack message type.
	AckMsgType = PIURI + "/ack"
	// ProblemReportMsgType defines the problem-report message type.
	ProblemReportMsgType = PIURI + "/problem-report"
	// CredentialPreviewMsgType defines the credential-preview type.
	CredentialPreviewMsgType = PIURI + "/credential-preview"

	// attachment ids used by libindy based agents
	offerAttachID      = "libindy-cred-offer-0"
	requestAttachID    = "libindy-cred-request-0"
	credentialAttachID = "libindy-cred-0"
)

// ProposeCredential is an optional message sent by the potential Holder to the Issuer
// to initiate the protocol or in response to a offer-credential message when the Holder
// wants some adjustments made to the credential data offered by Issuer.
type ProposeCredential struct {
	Type               string             `json:"@type,omitempty"`
	ID                 string             `json:"@id,omitempty"`
	Comment            string             `json:"comment,omitempty"`
	CredentialProposal *PreviewCredential `json:"credential_proposal,omitempty"`
	SchemaID           string             `json:"schema_id,omitempty"`
	CredDefID          string             `json:"cred_def_id,omitempty"`
	decorator.Threaded
}

// OfferCredential is a message sent by the Issuer to the potential Holder,
// describing the credential they intend to offer and possibly the price they expect to be paid.
type OfferCredential struct {
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialPreview PreviewCredential      `json:"credential_preview"`
	OffersAttach      []decorator.Attachment `json:"offers~attach"`
	decorator.Threaded
	decorator.Timed
}

// RequestCredential is a message sent by the potential Holder to the Issuer,
// to request the issuance of a credential.
type RequestCredential struct {
	Type           string                 `json:"@type,omitempty"`
	ID             string                 `json:"@id,omitempty"`
	Comment        string                 `json:"comment,omitempty"`
	RequestsAttach []decorator.Attachment `json:"requests~attach"`
	decorator.Threaded
}

// IssueCredential contains as attached payload the credentials being issued.
type IssueCredential struct { //nolint: golint
	Type              string                 `json:"@type,omitempty"`
	ID                string                 `json:"@id,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CredentialsAttach []decorator.Attachment `json:"credentials~attach"`
	decorator.Threaded
	decorator.AckRequest
}

// PreviewCredential is used to construct a preview of the data for the credential that is to be issued.
type PreviewCredential struct {
	Type       string      `json:"@type,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// Attribute describes an attribute for a Preview Credential.
type Attribute struct {
	Name     string `json:"name"`
	MimeType string `json:"mime-type,omitempty"`
	Value    string `json:"value"`
}

// RevocationInfo is what an issuer needs to revoke the credential later. It survives every transition,
// including a failed exchange.
type RevocationInfo struct {
	RevRegID  string `json:"rev_reg_id,omitempty"`
	TailsFile string `json:"tails_file,omitempty"`
	CredRevID string `json:"cred_rev_id,omitempty"`
}

// NewPreview builds a credential preview from name/value pairs.
func NewPreview(attrs ...Attribute) PreviewCredential {
	return PreviewCredential{Type: CredentialPreviewMsgType, Attributes: attrs}
}
