// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

package cose

import (
	"crypto/x509"

	"github.com/JanssenProject/jans-authcore/pkg/errors"
)

// VerifyCertificateChain validates chain against the given trust anchors and
// returns the verified leaf certificate. chain[0] is the leaf; any further
// entries are treated as intermediates.
func VerifyCertificateChain(chain, trustAnchors []*x509.Certificate) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, errors.NewMalformedInput("empty attestation certificate chain", nil)
	}
	if len(trustAnchors) == 0 {
		return nil, errors.NewCryptoFailure("no trust anchors available for attestation chain", nil)
	}

	roots := x509.NewCertPool()
	for _, anchor := range trustAnchors {
		roots.AddCert(anchor)
	}

	opts := x509.VerifyOptions{
		Roots: roots,
		// Attestation certificates regularly omit EKUs; accept any usage.
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if len(chain) > 1 {
		opts.Intermediates = x509.NewCertPool()
		for _, cert := range chain[1:] {
			opts.Intermediates.AddCert(cert)
		}
	}

	leaf := chain[0]
	if _, err := leaf.Verify(opts); err != nil {
		return nil, errors.NewCryptoFailure("attestation certificate chain is not trusted", err)
	}
	return leaf, nil
}

// ParseCertificates parses a list of DER certificates, leaf first.
func ParseCertificates(ders [][]byte) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(ders))
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.NewMalformedInput("invalid certificate in attestation statement", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
