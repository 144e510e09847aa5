/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package wallet provides the key management capability consumed by the envelope packers and the
// protocol services: ed25519 signing keys, DIDs derived from them, and the libsodium style crypto box
// operations on their curve25519 counterparts.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"golang.org/x/crypto/nacl/box"

	"github.com/hyperledger/aries-didcomm-go/pkg/internal/cryptoutil"
)

var logger = log.New("aries-framework/wallet")

// StoreName is the name of the store holding key records.
const StoreName = "wallet"

const didLength = 16

var (
	// ErrWalletRecordNotFound is returned when no key record exists for a verkey.
	ErrWalletRecordNotFound = errors.New("wallet record not found")
	// ErrInvalidSeed is returned when a seed is not 32 bytes long.
	ErrInvalidSeed = errors.New("seed must be 32 bytes")
	errBoxOpen     = errors.New("failed to open box")
)

// Wallet is the key management capability.
type Wallet interface {
	// CreateKey creates a new ed25519 key and returns its base58 verkey.
	CreateKey() (string, error)
	// CreateKeyFromSeed creates a deterministic ed25519 key from a 32-byte seed.
	CreateKeyFromSeed(seed []byte) (string, error)
	// CreateDID creates a key and an unqualified DID derived from its first 16 bytes.
	CreateDID(seed []byte) (did, verkey string, err error)
	// HasKey reports whether the wallet holds the private part of verkey.
	HasKey(verkey string) bool
	// Sign signs msg with verkey's private key.
	Sign(verkey string, msg []byte) ([]byte, error)
	// Verify checks an ed25519 signature of msg by verkey.
	Verify(verkey string, msg, sig []byte) error
	// Easy seals payload (nacl box) from myVerkey's curve key to theirPub.
	Easy(payload, nonce, theirPub []byte, myVerkey string) ([]byte, error)
	// EasyOpen opens a box sealed by theirPub for myVerkey.
	EasyOpen(cipherText, nonce, theirPub []byte, myVerkey string) ([]byte, error)
	// Seal anonymously seals payload for theirPub (libsodium crypto_box_seal).
	Seal(payload, theirPub []byte) ([]byte, error)
	// SealOpen opens a sealed box addressed to myVerkey.
	SealOpen(cipherText []byte, myVerkey string) ([]byte, error)
	// DeriveX25519 computes the ECDH shared secret between myVerkey's curve key and theirPub.
	DeriveX25519(myVerkey string, theirPub []byte) ([]byte, error)
}

type keyRecord struct {
	Verkey     string `json:"verkey"`
	PrivateKey []byte `json:"private_key"`
	DID        string `json:"did,omitempty"`
}

// LocalWallet keeps ed25519 keys in an spi storage store.
type LocalWallet struct {
	store      storage.Store
	randSource io.Reader
}

// Option configures a LocalWallet.
type Option func(w *LocalWallet)

// WithRandSource overrides the entropy source used for key generation and ephemeral keys.
func WithRandSource(r io.Reader) Option {
	return func(w *LocalWallet) {
		w.randSource = r
	}
}

// New creates a LocalWallet over the given storage provider.
func New(provider storage.Provider, opts ...Option) (*LocalWallet, error) {
	store, err := provider.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("open wallet store: %w", err)
	}

	w := &LocalWallet{store: store, randSource: rand.Reader}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// CreateKey creates a new ed25519 key.
func (w *LocalWallet) CreateKey() (string, error) {
	seed := make([]byte, ed25519.SeedSize)

	if _, err := io.ReadFull(w.randSource, seed); err != nil {
		return "", fmt.Errorf("create key: %w", err)
	}

	return w.CreateKeyFromSeed(seed)
}

// CreateKeyFromSeed creates an ed25519 key from seed.
func (w *LocalWallet) CreateKeyFromSeed(seed []byte) (string, error) {
	verkey, _, err := w.putKey(seed, false)

	return verkey, err
}

// CreateDID creates a key and its unqualified DID. A nil seed creates a random key.
func (w *LocalWallet) CreateDID(seed []byte) (string, string, error) {
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)

		if _, err := io.ReadFull(w.randSource, seed); err != nil {
			return "", "", fmt.Errorf("create did: %w", err)
		}
	}

	verkey, did, err := w.putKey(seed, true)
	if err != nil {
		return "", "", err
	}

	return did, verkey, nil
}

func (w *LocalWallet) putKey(seed []byte, withDID bool) (string, string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", "", ErrInvalidSeed
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey) //nolint:forcetypeassert

	rec := keyRecord{Verkey: base58.Encode(pub), PrivateKey: priv}
	if withDID {
		rec.DID = base58.Encode(pub[:didLength])
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("marshal key record: %w", err)
	}

	if err = w.store.Put(rec.Verkey, raw); err != nil {
		return "", "", fmt.Errorf("store key record: %w", err)
	}

	logger.Debugf("created key %s", rec.Verkey)

	return rec.Verkey, rec.DID, nil
}

func (w *LocalWallet) privateKey(verkey string) (ed25519.PrivateKey, error) {
	raw, err := w.store.Get(verkey)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWalletRecordNotFound, verkey)
		}

		return nil, fmt.Errorf("get key record: %w", err)
	}

	var rec keyRecord

	if err = json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal key record: %w", err)
	}

	return rec.PrivateKey, nil
}

func (w *LocalWallet) curvePrivateKey(verkey string) (*[cryptoutil.Curve25519KeySize]byte, error) {
	priv, err := w.privateKey(verkey)
	if err != nil {
		return nil, err
	}

	curve, err := cryptoutil.SecretEd25519toCurve25519(priv)
	if err != nil {
		return nil, err
	}

	var out [cryptoutil.Curve25519KeySize]byte

	copy(out[:], curve)

	return &out, nil
}

// HasKey reports whether verkey is held by the wallet.
func (w *LocalWallet) HasKey(verkey string) bool {
	_, err := w.store.Get(verkey)

	return err == nil
}

// Sign signs msg with verkey.
func (w *LocalWallet) Sign(verkey string, msg []byte) ([]byte, error) {
	priv, err := w.privateKey(verkey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return ed25519.Sign(priv, msg), nil
}

// Verify verifies sig over msg. It needs no private key material.
func (w *LocalWallet) Verify(verkey string, msg, sig []byte) error {
	return VerifySignature(verkey, msg, sig)
}

// Easy seals payload with a nacl box from myVerkey to theirPub.
func (w *LocalWallet) Easy(payload, nonce, theirPub []byte, myVerkey string) ([]byte, error) {
	priv, err := w.curvePrivateKey(myVerkey)
	if err != nil {
		return nil, fmt.Errorf("easy: %w", err)
	}

	var (
		pub        [cryptoutil.Curve25519KeySize]byte
		nonceBytes [cryptoutil.NonceSize]byte
	)

	copy(pub[:], theirPub)
	copy(nonceBytes[:], nonce)

	return box.Seal(nil, payload, &nonceBytes, &pub, priv), nil
}

// EasyOpen opens a box sealed with Easy.
func (w *LocalWallet) EasyOpen(cipherText, nonce, theirPub []byte, myVerkey string) ([]byte, error) {
	priv, err := w.curvePrivateKey(myVerkey)
	if err != nil {
		return nil, fmt.Errorf("easyOpen: %w", err)
	}

	var (
		pub        [cryptoutil.Curve25519KeySize]byte
		nonceBytes [cryptoutil.NonceSize]byte
	)

	copy(pub[:], theirPub)
	copy(nonceBytes[:], nonce)

	out, ok := box.Open(nil, cipherText, &nonceBytes, &pub, priv)
	if !ok {
		return nil, errBoxOpen
	}

	return out, nil
}

// Seal seals payload for theirPub using an ephemeral sender key.
func (w *LocalWallet) Seal(payload, theirPub []byte) ([]byte, error) {
	return SealBox(payload, theirPub, w.randSource)
}

// SealOpen opens a payload sealed with Seal.
func (w *LocalWallet) SealOpen(cipherText []byte, myVerkey string) ([]byte, error) {
	if len(cipherText) < cryptoutil.Curve25519KeySize {
		return nil, errors.New("sealOpen: message too short")
	}

	priv, err := w.curvePrivateKey(myVerkey)
	if err != nil {
		return nil, fmt.Errorf("sealOpen: %w", err)
	}

	recPub, err := cryptoutil.PublicEd25519toCurve25519(base58.Decode(myVerkey))
	if err != nil {
		return nil, fmt.Errorf("sealOpen: %w", err)
	}

	var epk [cryptoutil.Curve25519KeySize]byte

	copy(epk[:], cipherText[:cryptoutil.Curve25519KeySize])

	nonce, err := cryptoutil.Nonce(epk[:], recPub)
	if err != nil {
		return nil, err
	}

	out, ok := box.Open(nil, cipherText[cryptoutil.Curve25519KeySize:], nonce, &epk, priv)
	if !ok {
		return nil, errBoxOpen
	}

	return out, nil
}

// DeriveX25519 computes the shared secret between myVerkey's curve key and theirPub.
func (w *LocalWallet) DeriveX25519(myVerkey string, theirPub []byte) ([]byte, error) {
	priv, err := w.curvePrivateKey(myVerkey)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}

	return cryptoutil.X25519(priv[:], theirPub)
}

// SealBox is the libsodium crypto_box_seal construction. It needs no wallet key.
func SealBox(payload, theirPub []byte, randSource io.Reader) ([]byte, error) {
	epk, esk, err := box.GenerateKey(randSource)
	if err != nil {
		return nil, err
	}

	var recPub [cryptoutil.Curve25519KeySize]byte

	copy(recPub[:], theirPub)

	nonce, err := cryptoutil.Nonce(epk[:], theirPub)
	if err != nil {
		return nil, err
	}

	return box.Seal(epk[:], payload, nonce, &recPub, esk), nil
}

// VerifySignature verifies an ed25519 signature against a base58 verkey.
func VerifySignature(verkey string, msg, sig []byte) error {
	pub := base58.Decode(verkey)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("verify: invalid verkey %q", verkey)
	}

	if !ed25519.Verify(pub, msg, sig) {
		return errors.New("verify: signature verification failed")
	}

	return nil
}
