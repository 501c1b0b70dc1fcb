package cdn

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	raw := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func testCDNConfig(keyPath string) config.CDNConfig {
	return config.CDNConfig{
		Domain:         "cdn.dinver.app",
		KeyPairID:      "KEYPAIR123",
		PrivateKeyPath: keyPath,
		PublicBaseURL:  "https://pub-abc.r2.dev",
		URLTTL:         24 * time.Hour,
	}
}

func TestResolveSignsURL(t *testing.T) {
	r := New(testCDNConfig(writeTestKey(t)), nil, nil)
	require.NotNil(t, r.signer)

	url := r.Resolve(context.Background(), "blog_images/abc-thumb.jpg", entities.VariantThumbnail)

	require.True(t, strings.HasPrefix(url, "https://cdn.dinver.app/blog_images/abc-thumb.jpg"))
	require.Contains(t, url, "Expires=")
	require.Contains(t, url, "Signature=")
	require.Contains(t, url, "Key-Pair-Id=KEYPAIR123")
}

func TestResolveDerivesVariantKey(t *testing.T) {
	r := New(testCDNConfig(writeTestKey(t)), nil, nil)

	// Callers hold one canonical key and ask for any variant of it.
	url := r.Resolve(context.Background(), "blog_images/abc-thumb.jpg", entities.VariantFullscreen)
	require.Contains(t, url, "blog_images/abc-full.jpg")
}

func TestResolveFreshExpiryPerResolution(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	r := New(testCDNConfig(writeTestKey(t)), clock, nil)

	first := r.Resolve(context.Background(), "blog_images/abc-thumb.jpg", "")
	now = now.Add(2 * time.Hour)
	second := r.Resolve(context.Background(), "blog_images/abc-thumb.jpg", "")

	// Expiry counts from resolution time, so later resolution signs later.
	require.NotEqual(t, first, second)
	require.Contains(t, first, "Expires=")
	require.Contains(t, second, "Expires=")
}

func TestResolveFallsBackWithoutSigner(t *testing.T) {
	cfg := testCDNConfig("") // no signing key configured
	r := New(cfg, nil, nil)
	require.Nil(t, r.signer)

	url := r.Resolve(context.Background(), "blog_images/abc-thumb.jpg", entities.VariantThumbnail)

	// Degraded delivery, never an error.
	require.Equal(t, "https://pub-abc.r2.dev/blog_images/abc-thumb.jpg", url)
}

func TestResolveFallsBackOnBadKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0600))

	r := New(testCDNConfig(path), nil, nil)
	require.Nil(t, r.signer)

	url := r.Resolve(context.Background(), "menu_items/xyz-medium.jpg", "")
	require.Equal(t, "https://pub-abc.r2.dev/menu_items/xyz-medium.jpg", url)
}

func TestResolvePassesThroughAbsoluteURL(t *testing.T) {
	r := New(testCDNConfig(""), nil, nil)

	legacy := "https://legacy.example.com/old/key.jpg"
	require.Equal(t, legacy, r.Resolve(context.Background(), legacy, entities.VariantThumbnail))
}

func TestResolveStripsDoubledPrefix(t *testing.T) {
	r := New(testCDNConfig(""), nil, nil)

	glued := "https://cdn.dinver.app/https://cdn.dinver.app/blog_images/abc-thumb.jpg"
	got := r.Resolve(context.Background(), glued, "")
	require.Equal(t, "https://cdn.dinver.app/blog_images/abc-thumb.jpg", got)
}

func TestStripDoubledPrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "clean absolute url untouched",
			in:   "https://cdn.dinver.app/a/b.jpg",
			want: "https://cdn.dinver.app/a/b.jpg",
		},
		{
			name: "doubled https prefix",
			in:   "https://cdn.dinver.app/https://other.example.com/a/b.jpg",
			want: "https://other.example.com/a/b.jpg",
		},
		{
			name: "http nested in https",
			in:   "https://cdn.dinver.app/http://other.example.com/a/b.jpg",
			want: "http://other.example.com/a/b.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripDoubledPrefix(tt.in); got != tt.want {
				t.Errorf("stripDoubledPrefix(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
