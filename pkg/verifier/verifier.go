/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// Package verifier checks published attestations and AIBOMs: link records
// against the signed layout, candidate files and staged artifacts against
// the digests a link records, and BOM documents against their embedded
// signature.
package verifier

import (
	"context"
	"crypto/ed25519"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/in-toto/in-toto-golang/in_toto"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/bom"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/storage"
)

// Service owns the verification material: the signed layout and the
// worker public key, both mounted as secrets, plus the blob store the
// staged artifacts live in.
type Service struct {
	store     storage.Interface
	bucket    string
	layout    *in_toto.Metablock
	publicKey ed25519.PublicKey
}

func NewService(store storage.Interface, bucket, layoutPath, publicKeyPath string) (*Service, error) {
	layout, err := attestation.LoadLayout(layoutPath)
	if err != nil {
		return nil, err
	}
	doc, err := commoncrypto.LoadPublicKeyDocument(publicKeyPath)
	if err != nil {
		return nil, err
	}
	publicKey, err := doc.Decode()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		bucket:    bucket,
		layout:    layout,
		publicKey: publicKey,
	}, nil
}

// LinkReport is the outcome of a successful link verification.
type LinkReport struct {
	LayoutSignature string `json:"layout_signature"`
	LayoutExpiry    string `json:"layout_expiration"`
	LinkSignatures  string `json:"link_signatures"`
	Threshold       string `json:"threshold_verification"`
	ArtifactRules   string `json:"artifact_rules"`
}

// VerifyLink runs the full layout verification against one link blob.
func (s *Service) VerifyLink(linkPayload []byte) (*LinkReport, error) {
	mb, err := attestation.Decode(linkPayload)
	if err != nil {
		return nil, err
	}
	link, err := attestation.ParseLink(mb)
	if err != nil {
		return nil, err
	}
	if len(mb.Signatures) == 0 {
		return nil, commonerrors.NewSignatureInvalid("the link carries no signatures")
	}

	// in_toto resolves links on disk by <step>.<short keyid>.link, so the
	// blob is staged into a scratch dir under that name.
	linkDir, err := os.MkdirTemp("", "verify-link-")
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to create scratch dir").WithError(err)
	}
	defer os.RemoveAll(linkDir)

	linkName := strings.ReplaceAll(link.Name, "/", "-")
	fileName := linkName + "." + shortKeyId(mb.Signatures[0].KeyID) + ".link"
	if err = os.WriteFile(filepath.Join(linkDir, fileName), linkPayload, 0644); err != nil {
		return nil, commonerrors.NewInternalError("failed to stage link file").WithError(err)
	}

	layout, err := attestation.ParseLayout(s.layout)
	if err != nil {
		return nil, err
	}
	expired, err := attestation.LayoutExpired(layout, time.Now())
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, commonerrors.NewLayoutExpired("the layout has expired")
	}
	_, err = in_toto.InTotoVerify(s.layout, layout.Keys, linkDir, "", nil, nil, true)
	if err != nil {
		return nil, mapVerifyError(err)
	}
	return &LinkReport{
		LayoutSignature: "Verified",
		LayoutExpiry:    "Valid",
		LinkSignatures:  "Verified",
		Threshold:       "Met",
		ArtifactRules:   "All rules satisfied",
	}, nil
}

// mapVerifyError folds in_toto verification failures into the taxonomy.
func mapVerifyError(err error) error {
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "expired"):
		return commonerrors.NewLayoutExpired("the layout has expired").WithError(err)
	case strings.Contains(message, "threshold"):
		return commonerrors.NewThresholdUnmet("threshold requirements not met for the step").WithError(err)
	case strings.Contains(message, "no such file") || strings.Contains(message, "could not load"):
		return commonerrors.NewLinkMissing("no valid link files found for the step").WithError(err)
	case strings.Contains(message, "rule"):
		return commonerrors.NewRuleViolation("artifact rule violation").WithError(err)
	default:
		return commonerrors.NewSignatureInvalid("invalid signature on the layout or link file").WithError(err)
	}
}

// HashVerdict classifies a candidate file against a link record.
type HashVerdict string

const (
	HashMatch       HashVerdict = "match"
	HashMismatch    HashVerdict = "mismatch"
	HashNotRecorded HashVerdict = "not recorded"
)

// HashReport is the outcome of a file-hash verification.
type HashReport struct {
	Verdict  HashVerdict `json:"verdict"`
	FileName string      `json:"file_name"`
	Computed string      `json:"computed_hash,omitempty"`
	Recorded string      `json:"recorded_hash,omitempty"`
}

// VerifyFileHash digests the candidate file and compares it against the
// link entry whose basename matches the candidate's name.
func (s *Service) VerifyFileHash(linkPayload []byte, filePath, fileName string) (*HashReport, error) {
	mb, err := attestation.Decode(linkPayload)
	if err != nil {
		return nil, err
	}
	link, err := attestation.ParseLink(mb)
	if err != nil {
		return nil, err
	}
	computed, err := commoncrypto.Sha256File(filePath)
	if err != nil {
		return nil, err
	}

	recorded, found := "", false
	for recordPath, record := range mergeArtifacts(link) {
		if path.Base(recordPath) != fileName {
			continue
		}
		digest, ok := attestation.ArtifactDigest(record)
		if !ok {
			continue
		}
		recorded, found = digest, true
		break
	}
	if !found {
		return &HashReport{Verdict: HashNotRecorded, FileName: fileName, Computed: computed}, nil
	}
	verdict := HashMatch
	if computed != recorded {
		verdict = HashMismatch
	}
	return &HashReport{
		Verdict:  verdict,
		FileName: fileName,
		Computed: computed,
		Recorded: recorded,
	}, nil
}

// ArtifactMismatch describes one staged artifact that failed verification.
type ArtifactMismatch struct {
	Path     string `json:"path"`
	Expected string `json:"recorded_hash,omitempty"`
	Actual   string `json:"computed_hash,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ArtifactsReport partitions a link's artifacts into verified and
// mismatched materials and products.
type ArtifactsReport struct {
	Status              string             `json:"status"`
	StagingDir          string             `json:"staging_dir"`
	VerifiedMaterials   []string           `json:"verified_materials"`
	VerifiedProducts    []string           `json:"verified_products"`
	MismatchedMaterials []ArtifactMismatch `json:"mismatched_materials"`
	MismatchedProducts  []ArtifactMismatch `json:"mismatched_products"`
}

// VerifyStagedArtifacts downloads every artifact the link records from the
// blob store and compares its digest with the recorded one. A signed link
// cannot be adjusted to cover tampered store objects, so any mismatch
// points at the store side.
func (s *Service) VerifyStagedArtifacts(ctx context.Context, linkPayload []byte) (*ArtifactsReport, error) {
	mb, err := attestation.Decode(linkPayload)
	if err != nil {
		return nil, err
	}
	link, err := attestation.ParseLink(mb)
	if err != nil {
		return nil, err
	}
	if len(link.Materials) == 0 && len(link.Products) == 0 {
		return nil, commonerrors.NewBadRequest("no materials or products found in the link file")
	}

	scratch, err := os.MkdirTemp("", "verify-artifacts-")
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to create scratch dir").WithError(err)
	}
	defer os.RemoveAll(scratch)

	report := &ArtifactsReport{
		StagingDir:          stagingDirOf(link),
		VerifiedMaterials:   []string{},
		VerifiedProducts:    []string{},
		MismatchedMaterials: []ArtifactMismatch{},
		MismatchedProducts:  []ArtifactMismatch{},
	}
	report.VerifiedMaterials, report.MismatchedMaterials = s.checkArtifacts(ctx, link.Materials, scratch)
	report.VerifiedProducts, report.MismatchedProducts = s.checkArtifacts(ctx, link.Products, scratch)

	report.Status = "success"
	if len(report.MismatchedMaterials) > 0 || len(report.MismatchedProducts) > 0 {
		report.Status = "failure"
	}
	return report, nil
}

func (s *Service) checkArtifacts(ctx context.Context, records map[string]interface{}, scratch string) ([]string, []ArtifactMismatch) {
	verified := []string{}
	mismatched := []ArtifactMismatch{}
	for recordPath, record := range records {
		recorded, ok := attestation.ArtifactDigest(record)
		if !ok {
			mismatched = append(mismatched, ArtifactMismatch{
				Path: recordPath, Error: "record carries no sha256 digest",
			})
			continue
		}
		localPath := filepath.Join(scratch, path.Base(recordPath))
		if err := s.store.DownloadFile(ctx, s.bucket, recordPath, localPath); err != nil {
			mismatched = append(mismatched, ArtifactMismatch{
				Path: recordPath, Error: "failed to download from the blob store: " + err.Error(),
			})
			continue
		}
		computed, err := commoncrypto.Sha256File(localPath)
		if err != nil {
			mismatched = append(mismatched, ArtifactMismatch{Path: recordPath, Error: err.Error()})
			continue
		}
		if computed != recorded {
			mismatched = append(mismatched, ArtifactMismatch{
				Path: recordPath, Expected: recorded, Actual: computed,
			})
			continue
		}
		verified = append(verified, recordPath)
	}
	return verified, mismatched
}

// BomReport is the outcome of a combined BOM and link verification.
type BomReport struct {
	Status       string      `json:"status"`
	BomSignature string      `json:"bom_signature"`
	LinkFile     string      `json:"link_file"`
	Link         *LinkReport `json:"link_details,omitempty"`
}

// VerifyBomAndLink validates a BOM blob, checks its embedded signature,
// then fetches and verifies the attestation link it references.
func (s *Service) VerifyBomAndLink(ctx context.Context, bomPayload []byte) (*BomReport, error) {
	if err := bom.ValidateJson(bomPayload); err != nil {
		return nil, err
	}
	doc, err := bom.Decode(bomPayload)
	if err != nil {
		return nil, err
	}
	if err = bom.VerifySignature(doc, s.publicKey); err != nil {
		return nil, err
	}

	linkRef := attestationReference(doc)
	if linkRef == "" {
		return nil, commonerrors.NewBadRequest("no link file reference found in the document")
	}
	localPath := filepath.Join(os.TempDir(), path.Base(linkRef))
	if err = s.store.DownloadFile(ctx, s.bucket, linkRef, localPath); err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	linkPayload, err := os.ReadFile(localPath)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to read downloaded link").WithError(err)
	}
	linkReport, err := s.VerifyLink(linkPayload)
	if err != nil {
		return nil, err
	}
	klog.Infof("verified document and link %s", linkRef)
	return &BomReport{
		Status:       "success",
		BomSignature: "Verified",
		LinkFile:     "Verified",
		Link:         linkReport,
	}, nil
}

func attestationReference(doc *cdx.BOM) string {
	if doc.ExternalReferences == nil {
		return ""
	}
	for _, ref := range *doc.ExternalReferences {
		if ref.Type == cdx.ERTypeAttestation {
			return ref.URL
		}
	}
	return ""
}

// stagingDirOf extracts the staging directory from the first recorded
// artifact path. Every path in a link is staged under the same prefix.
func stagingDirOf(link *in_toto.Link) string {
	for recordPath := range link.Materials {
		return strings.SplitN(recordPath, "/", 2)[0]
	}
	for recordPath := range link.Products {
		return strings.SplitN(recordPath, "/", 2)[0]
	}
	return ""
}

func mergeArtifacts(link *in_toto.Link) map[string]interface{} {
	merged := make(map[string]interface{}, len(link.Materials)+len(link.Products))
	for recordPath, record := range link.Materials {
		merged[recordPath] = record
	}
	for recordPath, record := range link.Products {
		merged[recordPath] = record
	}
	return merged
}

func shortKeyId(keyId string) string {
	if len(keyId) > 8 {
		return keyId[:8]
	}
	return keyId
}
