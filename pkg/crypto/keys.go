/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	KeyTypeEd25519 = "ed25519"
	SchemeEd25519  = "ed25519"
)

// PublicKeyDocument is the on-disk JSON form of a worker public key.
type PublicKeyDocument struct {
	KeyId               string   `json:"keyid"`
	KeyType             string   `json:"keytype"`
	Scheme              string   `json:"scheme"`
	KeyIdHashAlgorithms []string `json:"keyid_hash_algorithms,omitempty"`
	KeyVal              KeyVal   `json:"keyval"`
}

type KeyVal struct {
	Public string `json:"public"`
}

// Signer holds a worker's Ed25519 keypair and its stable key id.
type Signer struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	KeyId      string
}

// LoadSigner loads the PEM private key and the JSON public key document and
// checks they belong together.
func LoadSigner(privateKeyPath, publicKeyPath string) (*Signer, error) {
	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}
	doc, err := LoadPublicKeyDocument(publicKeyPath)
	if err != nil {
		return nil, err
	}
	publicKey, err := doc.Decode()
	if err != nil {
		return nil, err
	}
	derived, ok := privateKey.Public().(ed25519.PublicKey)
	if !ok || !derived.Equal(publicKey) {
		return nil, commonerrors.NewUnsupportedKey("public key does not match private key")
	}
	return &Signer{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		KeyId:      doc.KeyId,
	}, nil
}

// LoadPrivateKey reads a PKCS8 PEM Ed25519 private key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, commonerrors.NewInputMissing(fmt.Sprintf("failed to read %s", path)).WithError(err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, commonerrors.NewUnsupportedKey("private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, commonerrors.NewUnsupportedKey("failed to parse private key").WithError(err)
	}
	privateKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, commonerrors.NewUnsupportedKey("private key is not ed25519")
	}
	return privateKey, nil
}

// LoadPublicKeyDocument reads and validates a public key JSON document.
func LoadPublicKeyDocument(path string) (*PublicKeyDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, commonerrors.NewInputMissing(fmt.Sprintf("failed to read %s", path)).WithError(err)
	}
	doc := &PublicKeyDocument{}
	if err = json.Unmarshal(raw, doc); err != nil {
		return nil, commonerrors.NewUnsupportedKey("failed to parse public key document").WithError(err)
	}
	if err = doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate rejects every key type and scheme except ed25519.
func (d *PublicKeyDocument) Validate() error {
	if d.KeyType != KeyTypeEd25519 {
		return commonerrors.NewUnsupportedKey(fmt.Sprintf("unsupported key type %q", d.KeyType))
	}
	if d.Scheme != SchemeEd25519 {
		return commonerrors.NewUnsupportedKey(fmt.Sprintf("unsupported scheme %q", d.Scheme))
	}
	if d.KeyId == "" {
		return commonerrors.NewUnsupportedKey("public key document has no keyid")
	}
	if d.KeyVal.Public == "" {
		return commonerrors.NewUnsupportedKey("public key document has no key material")
	}
	return nil
}

// Decode returns the raw public key from the hex keyval.
func (d *PublicKeyDocument) Decode() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(d.KeyVal.Public)
	if err != nil {
		return nil, commonerrors.NewUnsupportedKey("public key material is not hex").WithError(err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, commonerrors.NewUnsupportedKey(
			fmt.Sprintf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize))
	}
	return ed25519.PublicKey(raw), nil
}

// ShortKeyId returns the 8-character key id prefix used in link file names.
func (s *Signer) ShortKeyId() string {
	if len(s.KeyId) < 8 {
		return s.KeyId
	}
	return s.KeyId[:8]
}

// Sign signs a message with the worker private key.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.PrivateKey, message)
}

// Verify checks an Ed25519 signature.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) error {
	if !ed25519.Verify(publicKey, message, signature) {
		return commonerrors.NewSignatureInvalid("signature verification failed")
	}
	return nil
}
