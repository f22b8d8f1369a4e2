/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package bom

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"

	cdx "github.com/CycloneDX/cyclonedx-go"

	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

// SignatureProperty is the metadata property carrying the document
// signature.
const SignatureProperty = "BOM Signature"

// Encode serializes a document as pretty-printed CycloneDX JSON.
func Encode(doc *cdx.BOM) ([]byte, error) {
	var buf bytes.Buffer
	encoder := cdx.NewBOMEncoder(&buf, cdx.BOMFileFormatJSON)
	encoder.SetPretty(true)
	if err := encoder.Encode(doc); err != nil {
		return nil, commonerrors.NewInternalError("failed to serialize AIBOM").WithError(err)
	}
	return buf.Bytes(), nil
}

// Decode parses CycloneDX JSON back into a document.
func Decode(raw []byte) (*cdx.BOM, error) {
	doc := &cdx.BOM{}
	decoder := cdx.NewBOMDecoder(bytes.NewReader(raw), cdx.BOMFileFormatJSON)
	if err := decoder.Decode(doc); err != nil {
		return nil, commonerrors.NewBomInvalid("document is not valid CycloneDX JSON").WithError(err)
	}
	return doc, nil
}

// canonicalBytes serializes the document with the signature property and
// the timestamp removed. Signing and verification both operate on this
// form so the embedded signature never invalidates itself.
func canonicalBytes(doc *cdx.BOM) ([]byte, error) {
	copied := *doc
	if doc.Metadata != nil {
		metadata := *doc.Metadata
		metadata.Timestamp = ""
		if metadata.Properties != nil {
			kept := make([]cdx.Property, 0, len(*metadata.Properties))
			for _, prop := range *metadata.Properties {
				if prop.Name != SignatureProperty {
					kept = append(kept, prop)
				}
			}
			if len(kept) > 0 {
				metadata.Properties = &kept
			} else {
				metadata.Properties = nil
			}
		}
		// Stripping can leave the metadata empty. Drop it entirely so
		// documents signed without metadata verify against the same bytes.
		if metadata == (cdx.Metadata{}) {
			copied.Metadata = nil
		} else {
			copied.Metadata = &metadata
		}
	}
	return Encode(&copied)
}

// Sign embeds an Ed25519 signature over the canonical form as a metadata
// property.
func Sign(doc *cdx.BOM, signer *commoncrypto.Signer) error {
	canonical, err := canonicalBytes(doc)
	if err != nil {
		return err
	}
	signature := base64.StdEncoding.EncodeToString(signer.Sign(canonical))
	if doc.Metadata == nil {
		doc.Metadata = &cdx.Metadata{}
	}
	props := []cdx.Property{}
	if doc.Metadata.Properties != nil {
		for _, prop := range *doc.Metadata.Properties {
			if prop.Name != SignatureProperty {
				props = append(props, prop)
			}
		}
	}
	props = append(props, cdx.Property{Name: SignatureProperty, Value: signature})
	doc.Metadata.Properties = &props
	return nil
}

// VerifySignature checks the embedded signature against publicKey.
func VerifySignature(doc *cdx.BOM, publicKey ed25519.PublicKey) error {
	encoded := embeddedSignature(doc)
	if encoded == "" {
		return commonerrors.NewSignatureInvalid("document carries no signature property")
	}
	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return commonerrors.NewSignatureInvalid("signature property is not valid base64").WithError(err)
	}
	canonical, err := canonicalBytes(doc)
	if err != nil {
		return err
	}
	return commoncrypto.Verify(publicKey, canonical, signature)
}

func embeddedSignature(doc *cdx.BOM) string {
	if doc.Metadata == nil || doc.Metadata.Properties == nil {
		return ""
	}
	for _, prop := range *doc.Metadata.Properties {
		if prop.Name == SignatureProperty {
			return prop.Value
		}
	}
	return ""
}
