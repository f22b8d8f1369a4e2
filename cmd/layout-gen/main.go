/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

// layout-gen generates the worker's ed25519 key pair and the signed
// supply chain layout the verifier checks link attestations against.
// Existing keys are reused so the layout can be re-issued without
// rotating the functionary key.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/in-toto/in-toto-golang/in_toto"
	"k8s.io/klog/v2"

	"github.com/wiebe-vandendriessche/AIBoMGen/pkg/attestation"
	commoncrypto "github.com/wiebe-vandendriessche/AIBoMGen/pkg/crypto"
)

func main() {
	klog.InitFlags(nil)
	outputDir := flag.String("output-dir", "keys", "directory for the key pair and signed layout")
	flag.Parse()

	if err := run(*outputDir); err != nil {
		fmt.Println("failed to generate layout, err: ", err.Error())
		os.Exit(1)
	}
}

func run(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return err
	}
	privateKeyPath := filepath.Join(outputDir, "worker_private_key.pem")
	publicKeyPath := filepath.Join(outputDir, "worker_public_key.json")
	layoutPath := filepath.Join(outputDir, "signed_layout.json")

	if _, err := os.Stat(privateKeyPath); os.IsNotExist(err) {
		if err = generateKeyPair(privateKeyPath, publicKeyPath); err != nil {
			return err
		}
		klog.Infof("generated key pair: %s, %s", privateKeyPath, publicKeyPath)
	} else if err != nil {
		return err
	} else {
		klog.Infof("reusing existing key pair: %s", privateKeyPath)
	}

	var workerKey in_toto.Key
	if err := workerKey.LoadKey(privateKeyPath, "ed25519", []string{"sha256", "sha512"}); err != nil {
		return err
	}
	layout := attestation.BuildLayout(workerKey, time.Now())
	mb, err := attestation.SignLayout(layout, workerKey)
	if err != nil {
		return err
	}
	payload, err := attestation.Encode(mb)
	if err != nil {
		return err
	}
	if err = os.WriteFile(layoutPath, payload, 0644); err != nil {
		return err
	}
	klog.Infof("signed layout saved to: %s, expires: %s", layoutPath, layout.Expires)
	return nil
}

func generateKeyPair(privateKeyPath, publicKeyPath string) error {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return err
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	if err = os.WriteFile(privateKeyPath, pem.EncodeToMemory(block), 0600); err != nil {
		return err
	}

	var workerKey in_toto.Key
	if err = workerKey.LoadKey(privateKeyPath, "ed25519", []string{"sha256", "sha512"}); err != nil {
		return err
	}
	doc := commoncrypto.PublicKeyDocument{
		KeyId:               workerKey.KeyID,
		KeyType:             "ed25519",
		Scheme:              "ed25519",
		KeyIdHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: commoncrypto.KeyVal{
			Public: hex.EncodeToString(publicKey),
		},
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(publicKeyPath, raw, 0644)
}
