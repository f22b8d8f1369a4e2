/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package attestation

import (
	"encoding/json"
	"fmt"

	"github.com/in-toto/in-toto-golang/in_toto"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

const (
	// StepRunTraining is the single attested step of the training supply chain.
	StepRunTraining = "run_training"

	linkType       = "link"
	linkNameFormat = "%s.%.8s.link"
)

var keyIdHashAlgorithms = []string{"sha256", "sha512"}

// Builder assembles and signs link records with the worker functionary key.
type Builder struct {
	key in_toto.Key
}

// NewBuilder loads the PEM Ed25519 private key as the functionary key.
func NewBuilder(privateKeyPath string) (*Builder, error) {
	var key in_toto.Key
	if err := key.LoadKey(privateKeyPath, "ed25519", keyIdHashAlgorithms); err != nil {
		return nil, commonerrors.NewUnsupportedKey("failed to load signing key").WithError(err)
	}
	return &Builder{key: key}, nil
}

// KeyId returns the functionary key id.
func (b *Builder) KeyId() string {
	return b.key.KeyID
}

// LinkFileName returns the publication filename for a step's link record,
// `<step>.<short keyid>.link`. Verifiers locate links by this prefix.
func (b *Builder) LinkFileName(stepName string) string {
	return fmt.Sprintf(linkNameFormat, stepName, b.key.KeyID)
}

// BuildLink assembles a signed link record binding materials to products.
// Both mappings are bucket-relative artifact paths to hex sha256 digests; the
// command vector is recorded verbatim.
func (b *Builder) BuildLink(stepName string, materials, products map[string]string, command []string) (*in_toto.Metablock, error) {
	if stepName == "" {
		return nil, commonerrors.NewBadRequest("the step name is empty")
	}
	link := in_toto.Link{
		Type:      linkType,
		Name:      stepName,
		Materials: toArtifactRecords(materials),
		Products:  toArtifactRecords(products),
		ByProducts: map[string]interface{}{
			"stdout": "Task completed successfully.",
		},
		Environment: map[string]interface{}{},
		Command:     command,
	}
	mb := &in_toto.Metablock{Signed: link}
	if err := mb.Sign(b.key); err != nil {
		return nil, commonerrors.NewInternalError("failed to sign link").WithError(err)
	}
	return mb, nil
}

// Encode serialises a metablock the way it is published.
func Encode(mb *in_toto.Metablock) ([]byte, error) {
	payload, err := json.MarshalIndent(mb, "", "  ")
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to encode metablock").WithError(err)
	}
	return payload, nil
}

// Decode parses a published link blob back into a metablock.
func Decode(payload []byte) (*in_toto.Metablock, error) {
	mb := &in_toto.Metablock{}
	if err := json.Unmarshal(payload, mb); err != nil {
		return nil, commonerrors.NewBadRequest("failed to parse link metadata").WithError(err)
	}
	return mb, nil
}

// ParseLink extracts the link payload from a decoded metablock. Metablock
// unmarshals Signed as a generic map, so it is round-tripped through JSON.
func ParseLink(mb *in_toto.Metablock) (*in_toto.Link, error) {
	raw, err := json.Marshal(mb.Signed)
	if err != nil {
		return nil, commonerrors.NewInternalError("failed to re-encode link payload").WithError(err)
	}
	link := &in_toto.Link{}
	if err = json.Unmarshal(raw, link); err != nil {
		return nil, commonerrors.NewBadRequest("the metadata does not carry a link payload").WithError(err)
	}
	if link.Type != linkType {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("unexpected metadata type %q", link.Type))
	}
	return link, nil
}

// ArtifactDigest reads the sha256 entry of a recorded artifact.
func ArtifactDigest(record interface{}) (string, bool) {
	hashes, ok := record.(map[string]interface{})
	if !ok {
		return "", false
	}
	digest, ok := hashes["sha256"].(string)
	return digest, ok
}

func toArtifactRecords(digests map[string]string) map[string]interface{} {
	records := make(map[string]interface{}, len(digests))
	for path, digest := range digests {
		records[path] = map[string]interface{}{"sha256": digest}
	}
	return records
}
