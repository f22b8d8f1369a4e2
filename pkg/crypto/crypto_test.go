/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

func writeKeypair(t *testing.T, dir string) (string, string, ed25519.PublicKey) {
	t.Helper()
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "worker_private_key")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), 0600))

	doc := PublicKeyDocument{
		KeyId:   "6ba2e2e1f3c84f2ab3e6f9c0d5a41b7e9d8c3f2a1b0e9d8c7f6a5b4c3d2e1f0a",
		KeyType: KeyTypeEd25519,
		Scheme:  SchemeEd25519,
		KeyVal:  KeyVal{Public: hex.EncodeToString(publicKey)},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "worker_public_key")
	require.NoError(t, os.WriteFile(pubPath, raw, 0644))
	return privPath, pubPath, publicKey
}

func TestSha256File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"loss": 0.02}`), 0644))

	digest, err := Sha256File(path)
	assert.NoError(t, err)
	assert.Equal(t, Sha256Bytes([]byte(`{"loss": 0.02}`)), digest)
	assert.Len(t, digest, 64)
}

func TestSha256FileMissing(t *testing.T) {
	_, err := Sha256File(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
	assert.Equal(t, commonerrors.InputMissing, commonerrors.ReasonForError(err))
}

func TestLoadSignerRoundTrip(t *testing.T) {
	privPath, pubPath, publicKey := writeKeypair(t, t.TempDir())

	signer, err := LoadSigner(privPath, pubPath)
	require.NoError(t, err)
	assert.True(t, publicKey.Equal(signer.PublicKey))
	assert.Equal(t, "6ba2e2e1", signer.ShortKeyId())

	message := []byte("serialized bom without signature")
	signature := signer.Sign(message)
	assert.NoError(t, Verify(signer.PublicKey, message, signature))

	signature[0] ^= 0xff
	err = Verify(signer.PublicKey, message, signature)
	assert.Error(t, err)
	assert.Equal(t, commonerrors.SignatureInvalid, commonerrors.ReasonForError(err))
}

func TestLoadSignerRejectsMismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	privPath, _, _ := writeKeypair(t, dir)

	otherDir := t.TempDir()
	_, otherPubPath, _ := writeKeypair(t, otherDir)

	_, err := LoadSigner(privPath, otherPubPath)
	assert.Error(t, err)
	assert.Equal(t, commonerrors.UnsupportedKey, commonerrors.ReasonForError(err))
}

func TestPublicKeyDocumentValidate(t *testing.T) {
	testCases := []struct {
		name string
		doc  PublicKeyDocument
	}{
		{"rsa key type", PublicKeyDocument{KeyId: "a", KeyType: "rsa", Scheme: SchemeEd25519, KeyVal: KeyVal{Public: "ab"}}},
		{"wrong scheme", PublicKeyDocument{KeyId: "a", KeyType: KeyTypeEd25519, Scheme: "rsassa-pss-sha256", KeyVal: KeyVal{Public: "ab"}}},
		{"missing keyid", PublicKeyDocument{KeyType: KeyTypeEd25519, Scheme: SchemeEd25519, KeyVal: KeyVal{Public: "ab"}}},
		{"missing material", PublicKeyDocument{KeyId: "a", KeyType: KeyTypeEd25519, Scheme: SchemeEd25519}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.doc.Validate()
			assert.Error(t, err)
			assert.Equal(t, commonerrors.UnsupportedKey, commonerrors.ReasonForError(err))
		})
	}
}

func TestDecodeRejectsShortKey(t *testing.T) {
	doc := PublicKeyDocument{
		KeyId:   "a",
		KeyType: KeyTypeEd25519,
		Scheme:  SchemeEd25519,
		KeyVal:  KeyVal{Public: "abcd"},
	}
	_, err := doc.Decode()
	assert.Error(t, err)
}
