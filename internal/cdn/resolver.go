package cdn

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"

	"github.com/dinver-app/dinver-media/internal/cache"
	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
)

// URLCache is the optional short-TTL cache for resolved URLs.
type URLCache interface {
	Get(ctx context.Context, key string) (string, error)
	Store(ctx context.Context, key string, ttl time.Duration, value string) error
}

// Resolver maps stored keys to deliverable URLs. Signed CDN URLs are
// preferred; any signing failure degrades to an unsigned direct-storage URL
// rather than an error. The private key is parsed once at construction and
// the clock is injected so expiry behavior is testable.
type Resolver struct {
	cfg    config.CDNConfig
	signer *sign.URLSigner
	now    func() time.Time
	cache  URLCache
}

// New builds a Resolver. A missing or unparseable signing key is not fatal:
// the resolver comes up unsigned and every Resolve falls back.
func New(cfg config.CDNConfig, now func() time.Time, urlCache *cache.Cache) *Resolver {
	if now == nil {
		now = time.Now
	}

	r := &Resolver{cfg: cfg, now: now}
	if urlCache != nil {
		r.cache = urlCache
	}

	key, err := loadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		log.Printf("[cdn] signing disabled, falling back to direct URLs: %v", err)
		return r
	}
	r.signer = sign.NewURLSigner(cfg.KeyPairID, key)
	return r
}

// Resolve produces a delivery URL for the given key and variant. Expiry is
// counted from resolution time, so resolving the same key again yields fresh
// validity. Never returns an error: degraded delivery beats no delivery.
func (r *Resolver) Resolve(ctx context.Context, storageKey string, variant entities.VariantName) string {
	if isAbsoluteURL(storageKey) {
		// Legacy record that already stored a full URL.
		return stripDoubledPrefix(storageKey)
	}

	key := storageKey
	if variant.Valid() {
		key = entities.ReplaceVariant(storageKey, variant)
	}

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
			return cached
		}
	}

	resolved := r.signedOrDirect(key)

	if r.cache != nil && r.cfg.CacheTTL > 0 {
		if err := r.cache.Store(ctx, key, r.cfg.CacheTTL, resolved); err != nil {
			log.Printf("[cdn] url cache store %s: %v", key, err)
		}
	}
	return resolved
}

func (r *Resolver) signedOrDirect(key string) string {
	rawURL := fmt.Sprintf("https://%s/%s", r.cfg.Domain, key)

	if r.signer == nil {
		return r.directURL(key)
	}

	signed, err := r.signer.Sign(rawURL, r.now().Add(r.cfg.URLTTL))
	if err != nil {
		log.Printf("[cdn] sign %s: %v (%v), serving direct URL", key, err, entities.ErrSigning)
		return r.directURL(key)
	}
	return signed
}

func (r *Resolver) directURL(key string) string {
	return strings.TrimSuffix(r.cfg.PublicBaseURL, "/") + "/" + key
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// stripDoubledPrefix undoes records where an earlier bug glued a scheme and
// host onto a value that was already a full URL.
func stripDoubledPrefix(u string) string {
	rest := u
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if j := strings.Index(rest, "http://"); j >= 0 {
		return rest[j:]
	}
	if j := strings.Index(rest, "https://"); j >= 0 {
		return rest[j:]
	}
	return u
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("no signing key configured")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not RSA")
	}
	return key, nil
}
