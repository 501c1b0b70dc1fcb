package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dinver-app/dinver-media/internal/entities"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGenerateDefaultSet(t *testing.T) {
	gen := NewGenerator()

	res, err := gen.Generate(context.Background(), testJPEG(t, 2400, 1600), Options{})
	require.NoError(t, err)

	require.Equal(t, "jpeg", res.Format)
	require.Equal(t, 2400, res.Width)
	require.Equal(t, 1600, res.Height)

	// Original is suppressed unless asked for.
	require.Len(t, res.Variants, 3)
	require.Contains(t, res.Variants, entities.VariantThumbnail)
	require.Contains(t, res.Variants, entities.VariantMedium)
	require.Contains(t, res.Variants, entities.VariantFullscreen)
	require.NotContains(t, res.Variants, entities.VariantOriginal)

	for name, buf := range res.Variants {
		require.NotEmpty(t, buf.Data, "variant %s has no bytes", name)
		require.LessOrEqual(t, buf.Width, res.Width, "variant %s upscaled", name)

		// Every variant is canonical JPEG.
		_, format, err := image.Decode(bytes.NewReader(buf.Data))
		require.NoError(t, err)
		require.Equal(t, "jpeg", format)
	}

	thumb := res.Variants[entities.VariantThumbnail]
	require.Equal(t, 320, thumb.Width)
	require.Equal(t, 320, thumb.Height)

	medium := res.Variants[entities.VariantMedium]
	require.Equal(t, 1024, medium.Width)

	full := res.Variants[entities.VariantFullscreen]
	require.Equal(t, 1920, full.Width)
}

func TestGenerateKeepOriginal(t *testing.T) {
	gen := NewGenerator()

	res, err := gen.Generate(context.Background(), testJPEG(t, 800, 600), Options{KeepOriginal: true})
	require.NoError(t, err)
	require.Len(t, res.Variants, 4)
	require.Contains(t, res.Variants, entities.VariantOriginal)
}

func TestGenerateNeverUpscales(t *testing.T) {
	gen := NewGenerator()

	res, err := gen.Generate(context.Background(), testPNG(t, 200, 150), Options{KeepOriginal: true})
	require.NoError(t, err)

	for name, buf := range res.Variants {
		require.LessOrEqual(t, buf.Width, 200, "variant %s wider than source", name)
		require.LessOrEqual(t, buf.Height, 150, "variant %s taller than source (thumb may crop to short edge)", name)
	}

	// Thumbnail crop shrinks to the short edge of a small source.
	thumb := res.Variants[entities.VariantThumbnail]
	require.Equal(t, 150, thumb.Width)
	require.Equal(t, 150, thumb.Height)
}

func TestGeneratePNGNormalizedToJPEG(t *testing.T) {
	gen := NewGenerator()

	res, err := gen.Generate(context.Background(), testPNG(t, 1200, 900), Options{})
	require.NoError(t, err)
	require.Equal(t, "png", res.Format)

	for _, buf := range res.Variants {
		_, format, err := image.Decode(bytes.NewReader(buf.Data))
		require.NoError(t, err)
		require.Equal(t, "jpeg", format)
	}
}

func TestGenerateUnsupportedInput(t *testing.T) {
	gen := NewGenerator()

	_, err := gen.Generate(context.Background(), []byte("definitely not an image"), Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, entities.ErrUnsupportedFormat))
}

func TestGenerateCanceledContext(t *testing.T) {
	gen := NewGenerator()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The error surfaces only after every render goroutine has finished, so
	// nothing writes into the result after Generate returns.
	res, err := gen.Generate(ctx, testJPEG(t, 1200, 900), Options{})
	require.Nil(t, res)
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsWebP(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "riff webp header", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: true},
		{name: "jpeg", data: []byte("\xff\xd8\xff\xe0rest"), want: false},
		{name: "short", data: []byte("RIFF"), want: false},
		{name: "riff but not webp", data: []byte("RIFF\x00\x00\x00\x00WAVEfmt "), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWebP(tt.data); got != tt.want {
				t.Errorf("isWebP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeWebPFailSoft(t *testing.T) {
	// WebP magic with a corrupt body must fall back to the original bytes,
	// not abort.
	corrupt := []byte("RIFF\x10\x00\x00\x00WEBPVP8 garbage")
	got := normalizeWebP(corrupt)
	require.Equal(t, corrupt, got)
}

func TestApplyOrientation(t *testing.T) {
	// 2x1 source: rotations that swap axes must produce 1x2.
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))

	tests := []struct {
		orientation          int
		wantWidth, wantHeight int
	}{
		{1, 2, 1},
		{2, 2, 1},
		{3, 2, 1},
		{4, 2, 1},
		{5, 1, 2},
		{6, 1, 2},
		{7, 1, 2},
		{8, 1, 2},
		{0, 2, 1}, // out of range keeps the image
		{9, 2, 1},
	}

	for _, tt := range tests {
		out := applyOrientation(src, tt.orientation)
		b := out.Bounds()
		if b.Dx() != tt.wantWidth || b.Dy() != tt.wantHeight {
			t.Errorf("orientation %d: got %dx%d, want %dx%d",
				tt.orientation, b.Dx(), b.Dy(), tt.wantWidth, tt.wantHeight)
		}
	}
}

func TestReadOrientationMissingEXIF(t *testing.T) {
	// Plain encoded JPEG carries no EXIF; orientation defaults to 1.
	if got := readOrientation(testJPEG(t, 10, 10)); got != 1 {
		t.Errorf("readOrientation() = %d, want 1", got)
	}
}
