/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package verifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	"github.com/in-toto/in-toto-golang/in_toto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/bom"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const testBucket = "training"

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) EnsureBucket(ctx context.Context, bucket string) error {
	return nil
}

func (f *fakeStore) PutFile(ctx context.Context, bucket, key, localPath string) (string, error) {
	payload, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	f.objects[bucket+"/"+key] = payload
	return bucket + "/" + key, nil
}

func (f *fakeStore) PutBytes(ctx context.Context, bucket, key string, value []byte) (string, error) {
	f.objects[bucket+"/"+key] = value
	return bucket + "/" + key, nil
}

func (f *fakeStore) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	payload, ok := f.objects[bucket+"/"+key]
	if !ok {
		return commonerrors.NewNotFoundWithMessage("no such object " + key)
	}
	return os.WriteFile(localPath, payload, 0644)
}

func (f *fakeStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys := []string{}
	for stored := range f.objects {
		key := strings.TrimPrefix(stored, bucket+"/")
		if key != stored && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeStore) Presign(ctx context.Context, bucket, key string, expireSecond int) (string, error) {
	return "https://store.example/" + bucket + "/" + key, nil
}

type testKeys struct {
	signer         *commoncrypto.Signer
	functionary    in_toto.Key
	privateKeyPath string
	publicKeyPath  string
}

func generateKeys(t *testing.T, dir string) *testKeys {
	t.Helper()
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)
	privateKeyPath := filepath.Join(dir, "worker_private_key")
	require.NoError(t, os.WriteFile(privateKeyPath,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600))

	var functionary in_toto.Key
	require.NoError(t, functionary.LoadKey(privateKeyPath, "ed25519", []string{"sha256", "sha512"}))

	doc := commoncrypto.PublicKeyDocument{
		KeyId:               functionary.KeyID,
		KeyType:             "ed25519",
		Scheme:              "ed25519",
		KeyIdHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: commoncrypto.KeyVal{
			Public: hex.EncodeToString(privateKey.Public().(ed25519.PublicKey)),
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	publicKeyPath := filepath.Join(dir, "worker_public_key")
	require.NoError(t, os.WriteFile(publicKeyPath, raw, 0644))

	signer, err := commoncrypto.LoadSigner(privateKeyPath, publicKeyPath)
	require.NoError(t, err)
	return &testKeys{
		signer:         signer,
		functionary:    functionary,
		privateKeyPath: privateKeyPath,
		publicKeyPath:  publicKeyPath,
	}
}

func writeLayout(t *testing.T, dir string, keys *testKeys, issuedAt time.Time) string {
	t.Helper()
	layout := attestation.BuildLayout(keys.functionary, issuedAt)
	mb, err := attestation.SignLayout(layout, keys.functionary)
	require.NoError(t, err)
	payload, err := attestation.Encode(mb)
	require.NoError(t, err)
	layoutPath := filepath.Join(dir, "signed_layout")
	require.NoError(t, os.WriteFile(layoutPath, payload, 0644))
	return layoutPath
}

func digestOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// buildLink stages the given objects into the store and returns a signed
// link covering them.
func buildLink(t *testing.T, keys *testKeys, store *fakeStore, stagingDir string) []byte {
	t.Helper()
	objects := map[string][]byte{
		stagingDir + "/model/model.keras":          []byte("model-bytes"),
		stagingDir + "/dataset/data.csv":           []byte("dataset-bytes"),
		stagingDir + "/definition/definition.yaml": []byte("definition-bytes"),
		stagingDir + "/output/trained_model.keras": []byte("trained-bytes"),
		stagingDir + "/output/metrics.json":        []byte(`{"loss": 0.1}`),
	}
	materials := map[string]string{}
	products := map[string]string{}
	for key, payload := range objects {
		store.objects[testBucket+"/"+key] = payload
		if filepath.Dir(key) == stagingDir+"/output" {
			products[key] = digestOf(payload)
		} else {
			materials[key] = digestOf(payload)
		}
	}
	builder, err := attestation.NewBuilder(keys.privateKeyPath)
	require.NoError(t, err)
	mb, err := builder.BuildLink(attestation.StepRunTraining, materials, products,
		[]string{"python", "tasks.py", "run_training"})
	require.NoError(t, err)
	payload, err := attestation.Encode(mb)
	require.NoError(t, err)
	return payload
}

func newTestService(t *testing.T, store *fakeStore, layoutIssuedAt time.Time) (*Service, *testKeys) {
	t.Helper()
	dir := t.TempDir()
	keys := generateKeys(t, dir)
	layoutPath := writeLayout(t, dir, keys, layoutIssuedAt)
	service, err := NewService(store, testBucket, layoutPath, keys.publicKeyPath)
	require.NoError(t, err)
	return service, keys
}

func TestVerifyLinkSucceeds(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := buildLink(t, keys, store, "job-1")

	report, err := service.VerifyLink(payload)
	require.NoError(t, err)
	assert.Equal(t, "Verified", report.LayoutSignature)
	assert.Equal(t, "Valid", report.LayoutExpiry)
	assert.Equal(t, "Verified", report.LinkSignatures)
	assert.Equal(t, "Met", report.Threshold)
	assert.Equal(t, "All rules satisfied", report.ArtifactRules)
}

func TestVerifyLinkRejectsTamperedPayload(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := buildLink(t, keys, store, "job-1")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	signed := decoded["signed"].(map[string]interface{})
	signed["command"] = []string{"python", "tasks.py", "something_else"}
	tampered, err := json.Marshal(decoded)
	require.NoError(t, err)

	_, err = service.VerifyLink(tampered)
	require.Error(t, err)
	reason := commonerrors.ReasonForError(err)
	assert.Contains(t, []string{
		commonerrors.SignatureInvalid,
		commonerrors.ThresholdUnmet,
	}, reason)
}

func TestVerifyLinkRejectsExpiredLayout(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now().AddDate(0, 0, -200))
	payload := buildLink(t, keys, store, "job-1")

	_, err := service.VerifyLink(payload)
	require.Error(t, err)
	assert.Equal(t, commonerrors.LayoutExpired, commonerrors.ReasonForError(err))
}

func TestVerifyLinkRejectsUnsignedPayload(t *testing.T) {
	store := newFakeStore()
	service, _ := newTestService(t, store, time.Now())

	mb := &in_toto.Metablock{Signed: in_toto.Link{Type: "link", Name: "run_training"}}
	payload, err := attestation.Encode(mb)
	require.NoError(t, err)

	_, err = service.VerifyLink(payload)
	require.Error(t, err)
	assert.Equal(t, commonerrors.SignatureInvalid, commonerrors.ReasonForError(err))
}

func TestVerifyFileHash(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := buildLink(t, keys, store, "job-1")

	dir := t.TempDir()
	matching := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(matching, []byte("dataset-bytes"), 0644))

	report, err := service.VerifyFileHash(payload, matching, "data.csv")
	require.NoError(t, err)
	assert.Equal(t, HashMatch, report.Verdict)
	assert.Equal(t, report.Recorded, report.Computed)

	tampered := filepath.Join(dir, "tampered.csv")
	require.NoError(t, os.WriteFile(tampered, []byte("other-bytes"), 0644))
	report, err = service.VerifyFileHash(payload, tampered, "data.csv")
	require.NoError(t, err)
	assert.Equal(t, HashMismatch, report.Verdict)
	assert.NotEqual(t, report.Recorded, report.Computed)

	report, err = service.VerifyFileHash(payload, matching, "unknown.bin")
	require.NoError(t, err)
	assert.Equal(t, HashNotRecorded, report.Verdict)
	assert.Empty(t, report.Recorded)
}

func TestVerifyStagedArtifacts(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := buildLink(t, keys, store, "job-7")

	report, err := service.VerifyStagedArtifacts(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, "job-7", report.StagingDir)
	assert.Len(t, report.VerifiedMaterials, 3)
	assert.Len(t, report.VerifiedProducts, 2)
	assert.Empty(t, report.MismatchedMaterials)
	assert.Empty(t, report.MismatchedProducts)
}

func TestVerifyStagedArtifactsDetectsTamperedObject(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := buildLink(t, keys, store, "job-7")

	store.objects[testBucket+"/job-7/output/metrics.json"] = []byte(`{"loss": 0.0}`)
	delete(store.objects, testBucket+"/job-7/dataset/data.csv")

	report, err := service.VerifyStagedArtifacts(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "failure", report.Status)
	assert.Len(t, report.VerifiedProducts, 1)
	require.Len(t, report.MismatchedProducts, 1)
	mismatch := report.MismatchedProducts[0]
	assert.Equal(t, "job-7/output/metrics.json", mismatch.Path)
	assert.NotEqual(t, mismatch.Expected, mismatch.Actual)
	require.Len(t, report.MismatchedMaterials, 1)
	assert.Equal(t, "job-7/dataset/data.csv", report.MismatchedMaterials[0].Path)
	assert.NotEmpty(t, report.MismatchedMaterials[0].Error)
}

func signedTestBom(t *testing.T, signer *commoncrypto.Signer, linkKey string) []byte {
	t.Helper()
	doc := cdx.NewBOM()
	doc.SerialNumber = "urn:uuid:" + uuid.NewString()
	doc.Version = 1
	doc.Components = &[]cdx.Component{
		{
			BOMRef: "trained-model",
			Type:   cdx.ComponentTypeMachineLearningModel,
			Name:   "Trained Model",
		},
	}
	doc.ExternalReferences = &[]cdx.ExternalReference{
		{
			Type: cdx.ERTypeAttestation,
			URL:  linkKey,
		},
	}
	require.NoError(t, bom.Sign(doc, signer))
	payload, err := bom.Encode(doc)
	require.NoError(t, err)
	return payload
}

func TestVerifyBomAndLink(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	linkPayload := buildLink(t, keys, store, "job-9")
	linkKey := "job-9/output/run_training." + keys.signer.ShortKeyId() + ".link"
	store.objects[testBucket+"/"+linkKey] = linkPayload

	report, err := service.VerifyBomAndLink(context.Background(), signedTestBom(t, keys.signer, linkKey))
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, "Verified", report.BomSignature)
	assert.Equal(t, "Verified", report.LinkFile)
	require.NotNil(t, report.Link)
	assert.Equal(t, "Met", report.Link.Threshold)
}

func TestVerifyBomAndLinkRejectsTamperedDocument(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())
	payload := signedTestBom(t, keys.signer, "job-9/output/run_training.abcd1234.link")

	doc, err := bom.Decode(payload)
	require.NoError(t, err)
	(*doc.Components)[0].Name = "Renamed Model"
	tampered, err := bom.Encode(doc)
	require.NoError(t, err)

	_, err = service.VerifyBomAndLink(context.Background(), tampered)
	require.Error(t, err)
	assert.Equal(t, commonerrors.SignatureInvalid, commonerrors.ReasonForError(err))
}

func TestVerifyBomAndLinkRequiresAttestationReference(t *testing.T) {
	store := newFakeStore()
	service, keys := newTestService(t, store, time.Now())

	doc := cdx.NewBOM()
	doc.Version = 1
	doc.Components = &[]cdx.Component{
		{Type: cdx.ComponentTypeMachineLearningModel, Name: "Trained Model"},
	}
	require.NoError(t, bom.Sign(doc, keys.signer))
	payload, err := bom.Encode(doc)
	require.NoError(t, err)

	_, err = service.VerifyBomAndLink(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, commonerrors.BadRequest, commonerrors.ReasonForError(err))
}
