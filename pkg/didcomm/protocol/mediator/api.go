/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import "context"

// Notifier is told about every queued message whose recipient key belongs to an account. It pushes the
// message if live delivery is active and reports whether it did.
type Notifier interface {
	Notify(ctx context.Context, authPubKey string, msg *Message) bool
}

// KeyCreator creates the mediator keys granted to accounts.
type KeyCreator interface {
	CreateKey() (string, error)
}
