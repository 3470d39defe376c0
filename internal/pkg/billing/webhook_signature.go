package billing

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// VerifyKofiToken compares the shared verification token in constant time.
// An unconfigured token never verifies.
func VerifyKofiToken(configured, got string) error {
	want := strings.TrimSpace(configured)
	have := strings.TrimSpace(got)
	if want == "" || have == "" {
		return newError(ErrInvalidToken, "Invalid verification token", nil)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(have)) != 1 {
		return newError(ErrInvalidToken, "Invalid verification token", nil)
	}
	return nil
}

const (
	defaultCertCacheTTL   = 24 * time.Hour
	defaultCertFetchLimit = 64 << 10
	paypalAuthAlgo        = "SHA256withRSA"
	paypalCertDomain      = "paypal.com"
)

// PayPalHeaders are the transmission headers PayPal attaches to every delivery.
type PayPalHeaders struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// CertCache stores PEM certificates keyed by their download URL.
type CertCache interface {
	GetCert(ctx context.Context, certURL string) ([]byte, bool, error)
	PutCert(ctx context.Context, certURL string, pemBytes []byte, ttl time.Duration) error
}

// PayPalVerifier checks PayPal transmission signatures against the signing
// certificate PayPal publishes at the cert URL.
type PayPalVerifier struct {
	webhookID    string
	client       *http.Client
	cache        CertCache
	roots        *x509.CertPool
	allowedHosts []string
	breaker      *gobreaker.CircuitBreaker[[]byte]
	logger       *zap.Logger
	now          func() time.Time
}

type PayPalVerifierOption func(*PayPalVerifier)

func WithHTTPClient(c *http.Client) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.client = c }
}

func WithCertCache(c CertCache) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.cache = c }
}

// WithRootCAs replaces the system roots used to verify the certificate chain.
func WithRootCAs(pool *x509.CertPool) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.roots = pool }
}

// WithAllowedCertHosts replaces the default paypal.com host check.
func WithAllowedCertHosts(hosts ...string) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.allowedHosts = hosts }
}

func WithVerifierLogger(l *zap.Logger) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.logger = l }
}

func WithVerifierClock(now func() time.Time) PayPalVerifierOption {
	return func(v *PayPalVerifier) { v.now = now }
}

func NewPayPalVerifier(webhookID string, opts ...PayPalVerifierOption) *PayPalVerifier {
	v := &PayPalVerifier{
		webhookID: strings.TrimSpace(webhookID),
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "paypal-cert-fetch",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			v.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return v
}

// Verify returns nil only if the signature over the delivery checks out.
func (v *PayPalVerifier) Verify(ctx context.Context, h PayPalHeaders, body []byte) error {
	if err := v.verify(ctx, h, body); err != nil {
		v.logger.Warn("paypal signature rejected",
			zap.String("transmission_id", h.TransmissionID),
			zap.Error(err),
		)
		return newError(ErrInvalidSignature, "Invalid signature", err)
	}
	return nil
}

func (v *PayPalVerifier) verify(ctx context.Context, h PayPalHeaders, body []byte) error {
	if v.webhookID == "" {
		return errors.New("paypal webhook id is not configured")
	}
	if h.TransmissionID == "" || h.TransmissionTime == "" || h.TransmissionSig == "" || h.CertURL == "" {
		return errors.New("missing paypal transmission headers")
	}
	if h.AuthAlgo != "" && !strings.EqualFold(h.AuthAlgo, paypalAuthAlgo) {
		return fmt.Errorf("unsupported auth algorithm %q", h.AuthAlgo)
	}
	if err := v.checkCertURL(h.CertURL); err != nil {
		return err
	}

	pemBytes, err := v.certificate(ctx, h.CertURL)
	if err != nil {
		return err
	}
	cert, err := v.parseAndVerifyChain(pemBytes)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("paypal certificate does not carry an RSA key")
	}

	sig, err := base64.StdEncoding.DecodeString(h.TransmissionSig)
	if err != nil {
		return fmt.Errorf("decode transmission signature: %w", err)
	}
	digest := sha256.Sum256([]byte(SignedMessage(h.TransmissionID, h.TransmissionTime, v.webhookID, body)))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
}

// SignedMessage builds the string PayPal signs for a delivery.
func SignedMessage(transmissionID, transmissionTime, webhookID string, body []byte) string {
	return transmissionID + "|" + transmissionTime + "|" + webhookID + "|" +
		strconv.FormatUint(uint64(crc32.ChecksumIEEE(body)), 10)
}

func (v *PayPalVerifier) checkCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid cert url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("cert url must use https, got %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if len(v.allowedHosts) > 0 {
		for _, allowed := range v.allowedHosts {
			if host == allowed {
				return nil
			}
		}
		return fmt.Errorf("cert url host %q is not allowed", host)
	}
	if !underDomain(host, paypalCertDomain) {
		return fmt.Errorf("cert url host %q is not a paypal host", host)
	}
	return nil
}

func (v *PayPalVerifier) certificate(ctx context.Context, certURL string) ([]byte, error) {
	if v.cache != nil {
		if pemBytes, ok, err := v.cache.GetCert(ctx, certURL); err != nil {
			v.logger.Warn("cert cache read failed", zap.Error(err))
		} else if ok {
			return pemBytes, nil
		}
	}

	pemBytes, err := v.breaker.Execute(func() ([]byte, error) {
		return v.fetch(ctx, certURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("paypal cert endpoint unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if err := v.cache.PutCert(ctx, certURL, pemBytes, defaultCertCacheTTL); err != nil {
			v.logger.Warn("cert cache write failed", zap.Error(err))
		}
	}
	return pemBytes, nil
}

func (v *PayPalVerifier) fetch(ctx context.Context, certURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch paypal cert: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultCertFetchLimit))
	if err != nil {
		return nil, fmt.Errorf("read paypal cert: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch paypal cert failed: status=%d", resp.StatusCode)
	}
	return body, nil
}

func (v *PayPalVerifier) parseAndVerifyChain(pemBytes []byte) (*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse paypal cert: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificate in paypal cert response")
	}

	leaf := certs[0]
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("verify paypal cert chain: %w", err)
	}

	if !certNamedFor(leaf, paypalCertDomain) {
		return nil, fmt.Errorf("paypal cert subject %q is not a paypal name", leaf.Subject.CommonName)
	}
	return leaf, nil
}

func certNamedFor(cert *x509.Certificate, domain string) bool {
	if underDomain(strings.ToLower(cert.Subject.CommonName), domain) {
		return true
	}
	for _, name := range cert.DNSNames {
		if underDomain(strings.ToLower(name), domain) {
			return true
		}
	}
	return false
}

func underDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
