/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package verifier_handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/in-toto/in-toto-golang/in_toto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/verifier"
)

const testBucket = "training"

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) EnsureBucket(ctx context.Context, bucket string) error { return nil }

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

type fixture struct {
	engine *gin.Engine
	store  *fakeStore
	link   []byte
}

// newFixture wires a real verification service over a fake store, with a
// freshly generated functionary key, signed layout and one signed link.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

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

	layout := attestation.BuildLayout(functionary, time.Now())
	mb, err := attestation.SignLayout(layout, functionary)
	require.NoError(t, err)
	layoutPayload, err := attestation.Encode(mb)
	require.NoError(t, err)
	layoutPath := filepath.Join(dir, "signed_layout")
	require.NoError(t, os.WriteFile(layoutPath, layoutPayload, 0644))

	store := &fakeStore{objects: map[string][]byte{}}
	objects := map[string][]byte{
		"job-1/model/model.keras":          []byte("model-bytes"),
		"job-1/dataset/data.csv":           []byte("dataset-bytes"),
		"job-1/definition/definition.yaml": []byte("definition-bytes"),
		"job-1/output/trained_model.keras": []byte("trained-bytes"),
		"job-1/output/metrics.json":        []byte(`{"loss": 0.1}`),
	}
	materials := map[string]string{}
	products := map[string]string{}
	for key, payload := range objects {
		store.objects[testBucket+"/"+key] = payload
		sum := sha256.Sum256(payload)
		if filepath.Dir(key) == "job-1/output" {
			products[key] = hex.EncodeToString(sum[:])
		} else {
			materials[key] = hex.EncodeToString(sum[:])
		}
	}
	builder, err := attestation.NewBuilder(privateKeyPath)
	require.NoError(t, err)
	linkMb, err := builder.BuildLink(attestation.StepRunTraining, materials, products,
		[]string{"python", "tasks.py", "run_training"})
	require.NoError(t, err)
	linkPayload, err := attestation.Encode(linkMb)
	require.NoError(t, err)

	service, err := verifier.NewService(store, testBucket, layoutPath, publicKeyPath)
	require.NoError(t, err)

	engine := gin.New()
	InitVerifierRouters(engine, NewHandler(service))
	return &fixture{engine: engine, store: store, link: linkPayload}
}

func postFiles(t *testing.T, f *fixture, path string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, payload := range files {
		part, err := writer.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestVerifyLinkEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := postFiles(t, f, "/verifier/verify_in-toto_link", map[string][]byte{"link_file": f.link})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report verifier.LinkReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Verified", report.LinkSignatures)
	assert.Equal(t, "Met", report.Threshold)
}

func TestVerifyLinkEndpointRequiresUpload(t *testing.T) {
	f := newFixture(t)
	rec := postFiles(t, f, "/verifier/verify_in-toto_link", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyLinkEndpointRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	rec := postFiles(t, f, "/verifier/verify_in-toto_link", map[string][]byte{
		"link_file": []byte("not a link"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyFileHashEndpoint(t *testing.T) {
	f := newFixture(t)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("link_file", "run_training.link")
	require.NoError(t, err)
	_, err = part.Write(f.link)
	require.NoError(t, err)
	part, err = writer.CreateFormFile("uploaded_file", "data.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("dataset-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/verifier/verify_file_hash", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report verifier.HashReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, verifier.HashMatch, report.Verdict)
}

func TestVerifyStagedArtifactsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := postFiles(t, f, "/verifier/verify_minio_artifacts", map[string][]byte{"link_file": f.link})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report verifier.ArtifactsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, "job-1", report.StagingDir)
}

func TestVerifyStagedArtifactsEndpointReportsTamper(t *testing.T) {
	f := newFixture(t)
	f.store.objects[testBucket+"/job-1/output/metrics.json"] = []byte(`{"loss": 0.0}`)
	rec := postFiles(t, f, "/verifier/verify_minio_artifacts", map[string][]byte{"link_file": f.link})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report verifier.ArtifactsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "failure", report.Status)
	assert.NotEmpty(t, report.MismatchedProducts)
}

func TestVerifyBomAndLinkEndpointRequiresUpload(t *testing.T) {
	f := newFixture(t)
	rec := postFiles(t, f, "/verifier/verify_bom_and_link", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
