package billingtest

import (
	"context"
	"sync"
	"time"
)

// Locker is an in-process stand-in for the Redis locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
	Err  error
}

func NewLocker() *Locker {
	return &Locker{held: map[string]bool{}}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l.Err != nil {
		return nil, false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

// Hold marks key as locked by somebody else.
func (l *Locker) Hold(key string) {
	l.mu.Lock()
	l.held[key] = true
	l.mu.Unlock()
}

type Published struct {
	RoutingKey string
	Payload    any
}

// Publisher records everything published to it.
type Publisher struct {
	mu     sync.Mutex
	Events []Published
	Err    error
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Published{RoutingKey: routingKey, Payload: payload})
	return p.Err
}

func (p *Publisher) RoutingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

// CertCache is an in-memory billing.CertCache.
type CertCache struct {
	mu    sync.Mutex
	certs map[string][]byte
	Gets  int
}

func NewCertCache() *CertCache {
	return &CertCache{certs: map[string][]byte{}}
}

func (c *CertCache) GetCert(ctx context.Context, certURL string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	pemBytes, ok := c.certs[certURL]
	return pemBytes, ok, nil
}

func (c *CertCache) PutCert(ctx context.Context, certURL string, pemBytes []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.certs[certURL] = pemBytes
	return nil
}
