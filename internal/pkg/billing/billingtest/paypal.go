package billingtest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
)

// PayPalSigner plays PayPal: it owns a signing certificate, serves it over
// TLS and signs deliveries the way PayPal does.
type PayPalSigner struct {
	Key     *rsa.PrivateKey
	Cert    *x509.Certificate
	CertPEM []byte
	Roots   *x509.CertPool
	Server  *httptest.Server
	Fetches atomic.Int32
}

func NewPayPalSigner(t testing.TB) *PayPalSigner {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "messageverificationcerts.paypal.com", Organization: []string{"PayPal, Inc."}},
		DNSNames:              []string{"messageverificationcerts.paypal.com"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}

	s := &PayPalSigner{
		Key:     key,
		Cert:    cert,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Roots:   x509.NewCertPool(),
	}
	s.Roots.AddCert(cert)
	s.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Fetches.Add(1)
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(s.CertPEM)
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *PayPalSigner) CertURL() string {
	return s.Server.URL + "/v1/notifications/certs/CERT-360caa42-fca2a594-test"
}

// Headers signs body for webhookID and returns the transmission headers.
func (s *PayPalSigner) Headers(t testing.TB, webhookID string, body []byte) billing.PayPalHeaders {
	t.Helper()
	h := billing.PayPalHeaders{
		TransmissionID:   "b2a1f0e0-1111-11ef-9c8d-0f0e0d0c0b0a",
		TransmissionTime: "2025-01-01T12:00:00Z",
		CertURL:          s.CertURL(),
		AuthAlgo:         "SHA256withRSA",
	}
	digest := sha256.Sum256([]byte(billing.SignedMessage(h.TransmissionID, h.TransmissionTime, webhookID, body)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h.TransmissionSig = base64.StdEncoding.EncodeToString(sig)
	return h
}

// Verifier returns a verifier that trusts this signer and its TLS server.
func (s *PayPalSigner) Verifier(webhookID string, opts ...billing.PayPalVerifierOption) *billing.PayPalVerifier {
	base := []billing.PayPalVerifierOption{
		billing.WithHTTPClient(s.Server.Client()),
		billing.WithRootCAs(s.Roots),
		billing.WithAllowedCertHosts("127.0.0.1"),
	}
	return billing.NewPayPalVerifier(webhookID, append(base, opts...)...)
}
