// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package tls generates and loads the self-signed certificate serving
// the gatehouse HTTPS API.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Certificate file names inside the certs directory.
const (
	certFile = "server.crt"
	keyFile  = "server.key"
)

// ServerCert holds a serving certificate and its private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateServerCert creates a self-signed serving certificate valid
// for localhost, 127.0.0.1, and any additional hosts. Hosts that parse
// as IP addresses become IP SANs, the rest DNS SANs.
func GenerateServerCert(hosts ...string) (*ServerCert, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate server key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Gatehouse"},
			CommonName:   "gatehouse",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0), // 1 year
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
			continue
		}
		if host != "" {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create server certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}

	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// SaveServerCert writes the certificate and key to the certs directory
// as server.crt and server.key.
func SaveServerCert(certsDir string, cert *ServerCert) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return fmt.Errorf("failed to create certs directory: %w", err)
	}
	if err := saveCert(filepath.Join(certsDir, certFile), cert.Certificate); err != nil {
		return fmt.Errorf("failed to save server certificate: %w", err)
	}
	if err := saveKey(filepath.Join(certsDir, keyFile), cert.PrivateKey); err != nil {
		return fmt.Errorf("failed to save server key: %w", err)
	}
	return nil
}

// LoadServerTLS loads the serving certificate from the certs directory
// into a TLS config. Returns an error if the files are missing or
// unparseable.
func LoadServerTLS(certsDir string) (*stdtls.Config, error) {
	certPath := filepath.Clean(filepath.Join(certsDir, certFile))
	keyPath := filepath.Clean(filepath.Join(certsDir, keyFile))

	cert, err := stdtls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}

	return &stdtls.Config{
		Certificates: []stdtls.Certificate{cert},
		MinVersion:   stdtls.VersionTLS12,
	}, nil
}

// EnsureServerTLS loads the serving certificate, generating and saving
// one first if neither file exists. A partially present pair is an
// error rather than a silent regeneration.
func EnsureServerTLS(certsDir string, hosts ...string) (*stdtls.Config, error) {
	certExists := fileExists(filepath.Join(certsDir, certFile))
	keyExists := fileExists(filepath.Join(certsDir, keyFile))

	if certExists || keyExists {
		cfg, err := LoadServerTLS(certsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing TLS certificate: %w", err)
		}
		return cfg, nil
	}

	cert, err := GenerateServerCert(hosts...)
	if err != nil {
		return nil, err
	}
	if err := SaveServerCert(certsDir, cert); err != nil {
		return nil, err
	}
	return LoadServerTLS(certsDir)
}

// fileExists treats permission errors as "exists" so an unreadable
// certificate is never silently overwritten.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// saveCert saves a certificate to a PEM file.
func saveCert(path string, cert *x509.Certificate) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create cert file: %w", err)
	}

	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode certificate: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close cert file: %w", err)
	}

	return nil
}

// saveKey saves an ECDSA private key to a PEM file.
func saveKey(path string, key *ecdsa.PrivateKey) error {
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}

	if err := pem.Encode(f, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}

	return nil
}
