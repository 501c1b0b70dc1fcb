package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/dinver-app/dinver-media/internal/entities"
)

// Options tunes one Generate call.
type Options struct {
	// KeepOriginal requests the archival-quality variant. Off by default;
	// only OCR-grade flows (receipts) ask for it.
	KeepOriginal bool
	// Concurrency bounds per-variant parallelism. Zero means len(variants).
	Concurrency int
}

// VariantBuffer is one encoded derivative ready for upload.
type VariantBuffer struct {
	Name   entities.VariantName
	Data   []byte
	Width  int
	Height int
}

// Result carries the generated set plus source metadata.
type Result struct {
	Variants map[entities.VariantName]VariantBuffer
	Format   string
	Width    int
	Height   int
}

// Generator turns raw upload bytes into the fixed variant set. Pure
// transform, no I/O, safe for concurrent use.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate decodes data, normalizes and orients it, then produces every
// non-suppressed variant concurrently. Returns ErrUnsupportedFormat when the
// input is not a decodable image.
func (g *Generator) Generate(ctx context.Context, data []byte, opts Options) (*Result, error) {
	data = normalizeWebP(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrUnsupportedFormat, err)
	}

	img = applyOrientation(img, readOrientation(data))

	bounds := img.Bounds()
	res := &Result{
		Variants: make(map[entities.VariantName]VariantBuffer),
		Format:   format,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}

	wanted := make([]entities.VariantName, 0, 4)
	for _, name := range entities.AllVariants() {
		if name == entities.VariantOriginal && !opts.KeepOriginal {
			continue
		}
		wanted = append(wanted, name)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = len(wanted)
	}

	// Variants are independent of one another, so they render in parallel
	// bounded by a semaphore.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sem  = make(chan struct{}, limit)
		errs = make([]error, 0, 1)
	)
	for _, name := range wanted {
		wg.Add(1)
		go func(name entities.VariantName) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}

			buf, err := renderVariant(img, name, variantTable[name])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("variant %s: %w", name, err))
				return
			}
			res.Variants[name] = buf
		}(name)
	}
	wg.Wait()

	// Only checked after the wait so no goroutine outlives the call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", entities.ErrTransform, errs[0])
	}
	return res, nil
}

func renderVariant(src image.Image, name entities.VariantName, spec variantSpec) (VariantBuffer, error) {
	var out image.Image

	switch spec.Mode {
	case fitCrop:
		side := spec.Width
		if min := minSide(src); min < side {
			side = min // never upscale a small source into a big crop
		}
		out = imaging.Fill(src, side, side, imaging.Center, imaging.Lanczos)
	default:
		if src.Bounds().Dx() <= spec.Width && src.Bounds().Dy() <= spec.Height {
			out = src
		} else {
			out = imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: spec.Quality}); err != nil {
		return VariantBuffer{}, err
	}

	b := out.Bounds()
	return VariantBuffer{
		Name:   name,
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func minSide(img image.Image) int {
	b := img.Bounds()
	if b.Dx() < b.Dy() {
		return b.Dx()
	}
	return b.Dy()
}

// normalizeWebP re-encodes a WebP input to JPEG before the resize pipeline;
// browsers get one canonical format regardless of the source. A failed
// conversion keeps the original bytes instead of aborting the request.
func normalizeWebP(data []byte) []byte {
	if !isWebP(data) {
		return data
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("[processor] webp normalize failed, keeping original bytes: %v", err)
		return data
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		log.Printf("[processor] webp re-encode failed, keeping original bytes: %v", err)
		return data
	}
	return buf.Bytes()
}

func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// readOrientation pulls the EXIF orientation tag, 1 when absent or
// unreadable. Upload sources (phone cameras) routinely carry rotated
// sensors, so every variant gets corrected before resizing.
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
