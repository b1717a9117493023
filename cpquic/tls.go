package cpquic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// NextProto is the ALPN protocol negotiated by chunkproof peers.
const NextProto = "chunkproof/1"

// SelfSignedTLSConfig returns a server TLS configuration
// with a freshly generated ed25519 certificate valid for validFor.
// If validFor is zero, the certificate is valid for 24 hours.
func SelfSignedTLSConfig(validFor time.Duration) (*tls.Config, error) {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	if validFor == 0 {
		validFor = 24 * time.Hour
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"chunkproof"},
			CommonName:   "chunkproof server",
		},

		// Tolerate modest clock skew between peers.
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validFor),

		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},

		BasicConstraintsValid: true,
	}

	derBytes, err := x509.CreateCertificate(nil, template, template, pubKey, privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate from DER: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{
			{
				Certificate: [][]byte{derBytes},
				PrivateKey:  privKey,

				Leaf: cert,
			},
		},
		NextProtos: []string{NextProto},
	}, nil
}

// ClientTLSConfig returns the TLS configuration for dialing a chunkproof server.
//
// The server certificate is not verified.
// Every chunk is checked against a caller-supplied root,
// so the transport does not need to authenticate its peer.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{NextProto},
	}
}
