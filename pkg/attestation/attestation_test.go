/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package attestation

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/in-toto/in-toto-golang/in_toto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrivateKeyPem(t *testing.T) string {
	t.Helper()
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "worker_private_key")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), 0600))
	return path
}

func TestBuildLinkSignsAndVerifies(t *testing.T) {
	builder, err := NewBuilder(writePrivateKeyPem(t))
	require.NoError(t, err)

	materials := map[string]string{
		"abc/model/model.keras":   strings.Repeat("a", 64),
		"abc/dataset/data.zip":    strings.Repeat("b", 64),
		"abc/definition/def.yaml": strings.Repeat("c", 64),
	}
	products := map[string]string{
		"abc/output/trained_model.keras": strings.Repeat("d", 64),
		"abc/output/metrics.json":        strings.Repeat("e", 64),
	}
	mb, err := builder.BuildLink(StepRunTraining, materials, products,
		[]string{"python", "tasks.py", "run_training"})
	require.NoError(t, err)
	require.Len(t, mb.Signatures, 1)
	assert.Equal(t, builder.KeyId(), mb.Signatures[0].KeyID)

	payload, err := Encode(mb)
	require.NoError(t, err)
	decoded, err := Decode(payload)
	require.NoError(t, err)

	link, err := ParseLink(decoded)
	require.NoError(t, err)
	assert.Equal(t, StepRunTraining, link.Name)
	assert.Len(t, link.Materials, 3)
	assert.Len(t, link.Products, 2)

	digest, ok := ArtifactDigest(link.Materials["abc/model/model.keras"])
	assert.True(t, ok)
	assert.Equal(t, strings.Repeat("a", 64), digest)
}

func TestBuildLinkRejectsEmptyStep(t *testing.T) {
	builder, err := NewBuilder(writePrivateKeyPem(t))
	require.NoError(t, err)

	_, err = builder.BuildLink("", nil, nil, nil)
	assert.Error(t, err)
}

func TestLinkFileNameTruncatesKeyId(t *testing.T) {
	builder, err := NewBuilder(writePrivateKeyPem(t))
	require.NoError(t, err)

	name := builder.LinkFileName(StepRunTraining)
	assert.True(t, strings.HasPrefix(name, "run_training."))
	assert.True(t, strings.HasSuffix(name, ".link"))

	keyPart := strings.TrimSuffix(strings.TrimPrefix(name, "run_training."), ".link")
	assert.Len(t, keyPart, 8)
	assert.True(t, strings.HasPrefix(builder.KeyId(), keyPart))
}

func TestBuildLayout(t *testing.T) {
	builder, err := NewBuilder(writePrivateKeyPem(t))
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	layout := BuildLayout(builder.key, now)

	assert.Equal(t, "2026-05-30T12:00:00Z", layout.Expires)
	require.Len(t, layout.Steps, 1)
	assert.Equal(t, StepRunTraining, layout.Steps[0].Name)
	assert.Equal(t, []string{builder.KeyId()}, layout.Steps[0].PubKeys)

	key, ok := layout.Keys[builder.KeyId()]
	require.True(t, ok)
	assert.Empty(t, key.KeyVal.Private, "layout must not embed the private key")

	expired, err := LayoutExpired(&layout, now)
	require.NoError(t, err)
	assert.False(t, expired)

	expired, err = LayoutExpired(&layout, now.AddDate(0, 0, ExpiryDays+1))
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestSignLayoutRoundTrip(t *testing.T) {
	builder, err := NewBuilder(writePrivateKeyPem(t))
	require.NoError(t, err)

	layout := BuildLayout(builder.key, time.Now().UTC())
	mb, err := SignLayout(layout, builder.key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signed_layout")
	payload, err := Encode(mb)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0644))

	loaded, err := LoadLayout(path)
	require.NoError(t, err)
	// the verification workflow type-asserts on the signed payload
	_, ok := loaded.Signed.(in_toto.Layout)
	assert.True(t, ok)
	parsed, err := ParseLayout(loaded)
	require.NoError(t, err)
	assert.Equal(t, layout.Expires, parsed.Expires)
	require.Len(t, loaded.Signatures, 1)
	assert.NoError(t, loaded.VerifySignature(builder.key))
}
