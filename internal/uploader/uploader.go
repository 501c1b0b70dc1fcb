package uploader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/dinver-app/dinver-media/internal/entities"
	"github.com/dinver-app/dinver-media/internal/processor"
	"github.com/dinver-app/dinver-media/internal/queue"
)

// Strategy selects how much work happens before the call returns.
type Strategy string

const (
	// StrategyOptimistic enqueues and returns placeholder URLs immediately.
	// Default for user-facing uploads where perceived latency matters.
	StrategyOptimistic Strategy = "optimistic"
	// StrategySync stores every variant before returning final URLs.
	StrategySync Strategy = "sync"
	// StrategyQuick does a single bounded resize and one store call.
	StrategyQuick Strategy = "quick"
)

// Options tunes one upload call.
type Options struct {
	// KeepOriginal requests the archival variant (receipts / OCR flows).
	KeepOriginal bool
	Priority     queue.Priority
}

type Storage interface {
	Put(ctx context.Context, key, contentType string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, payload entities.JobPayload, prio queue.Priority) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, data []byte, opts processor.Options) (*processor.Result, error)
}

type Resolver interface {
	Resolve(ctx context.Context, storageKey string, variant entities.VariantName) string
}

type Catalog interface {
	SaveAsset(ctx context.Context, asset entities.MediaAsset, variants []entities.VariantRecord) error
}

var allowedMIMEs = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

// Uploader is the orchestration layer over generator, gateway, queue and
// resolver. Keys derive from a baseName minted after validation and before
// any write, so readers see all variants of an asset or none.
type Uploader struct {
	gen           Generator
	storage       Storage
	jobs          JobQueue
	resolver      Resolver
	catalog       Catalog
	quickMaxWidth int
}

func New(gen Generator, storage Storage, jobs JobQueue, resolver Resolver, catalog Catalog, quickMaxWidth int) *Uploader {
	return &Uploader{
		gen:           gen,
		storage:       storage,
		jobs:          jobs,
		resolver:      resolver,
		catalog:       catalog,
		quickMaxWidth: quickMaxWidth,
	}
}

// Upload runs one of the three strategies. Validation failures surface
// before any side effect on every path.
func (u *Uploader) Upload(ctx context.Context, data []byte, folder string, strategy Strategy, opts Options) (entities.UploadResult, error) {
	format, width, height, err := validate(data)
	if err != nil {
		return entities.UploadResult{}, err
	}

	asset := entities.MediaAsset{
		BaseName:        uuid.NewString(),
		Folder:          folder,
		SourceFormat:    format,
		OriginalWidth:   width,
		OriginalHeight:  height,
		SourceSizeBytes: int64(len(data)),
		CreatedAt:       time.Now().UTC(),
	}

	switch strategy {
	case StrategySync:
		return u.uploadSync(ctx, data, asset, opts)
	case StrategyQuick:
		return u.uploadQuick(ctx, data, asset)
	case StrategyOptimistic, "":
		return u.uploadOptimistic(ctx, data, asset, opts)
	default:
		return entities.UploadResult{}, fmt.Errorf("unknown upload strategy %q", strategy)
	}
}

// uploadOptimistic enqueues a job and answers with placeholder URLs built
// from the deterministic key scheme. The URLs dereference once the job
// lands; before that, readers get a plain not-found.
func (u *Uploader) uploadOptimistic(ctx context.Context, data []byte, asset entities.MediaAsset, opts Options) (entities.UploadResult, error) {
	jobID, err := u.jobs.Enqueue(ctx, entities.JobPayload{
		Folder:       asset.Folder,
		BaseName:     asset.BaseName,
		ContentType:  "image/jpeg",
		Data:         data,
		KeepOriginal: opts.KeepOriginal,
	}, opts.Priority)
	if err != nil {
		return entities.UploadResult{}, fmt.Errorf("enqueue derivative job: %w", err)
	}

	return entities.UploadResult{
		Status: entities.UploadStatusProcessing,
		JobID:  jobID,
		Asset:  asset,
		URLs:   u.resolveSet(ctx, asset, opts.KeepOriginal),
	}, nil
}

// uploadSync runs generation and storage inline. Any storage failure rolls
// back keys already written for this baseName; the variant set appears
// all-or-nothing to every external reader.
func (u *Uploader) uploadSync(ctx context.Context, data []byte, asset entities.MediaAsset, opts Options) (entities.UploadResult, error) {
	res, err := u.gen.Generate(ctx, data, processor.Options{KeepOriginal: opts.KeepOriginal})
	if err != nil {
		return entities.UploadResult{}, err
	}

	records := make([]entities.VariantRecord, 0, len(res.Variants))
	written := make([]string, 0, len(res.Variants))
	for _, name := range entities.AllVariants() {
		buf, ok := res.Variants[name]
		if !ok {
			continue
		}
		key := entities.StorageKey(asset.Folder, asset.BaseName, name)
		if err := u.storage.Put(ctx, key, "image/jpeg", buf.Data); err != nil {
			u.rollback(ctx, written)
			return entities.UploadResult{}, err
		}
		written = append(written, key)
		records = append(records, entities.VariantRecord{
			Name:       name,
			StorageKey: key,
			Width:      buf.Width,
			Height:     buf.Height,
			ByteSize:   int64(len(buf.Data)),
			Format:     "jpeg",
		})
	}

	u.saveCatalog(ctx, asset, records)

	return entities.UploadResult{
		Status:   entities.UploadStatusCompleted,
		Asset:    asset,
		Variants: records,
		URLs:     u.resolveSet(ctx, asset, opts.KeepOriginal),
	}, nil
}

// uploadQuick skips the variant set entirely: one bounded resize, one
// re-encode, one store call under the fullscreen key.
func (u *Uploader) uploadQuick(ctx context.Context, data []byte, asset entities.MediaAsset) (entities.UploadResult, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return entities.UploadResult{}, fmt.Errorf("%w: %v", entities.ErrUnsupportedFormat, err)
	}

	if img.Bounds().Dx() > u.quickMaxWidth {
		img = imaging.Resize(img, u.quickMaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return entities.UploadResult{}, fmt.Errorf("%w: %v", entities.ErrTransform, err)
	}

	key := entities.StorageKey(asset.Folder, asset.BaseName, entities.VariantFullscreen)
	if err := u.storage.Put(ctx, key, "image/jpeg", buf.Bytes()); err != nil {
		return entities.UploadResult{}, err
	}

	record := entities.VariantRecord{
		Name:       entities.VariantFullscreen,
		StorageKey: key,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		ByteSize:   int64(buf.Len()),
		Format:     "jpeg",
	}

	u.saveCatalog(ctx, asset, []entities.VariantRecord{record})

	return entities.UploadResult{
		Status:   entities.UploadStatusCompleted,
		Asset:    asset,
		Variants: []entities.VariantRecord{record},
		URLs: map[entities.VariantName]string{
			entities.VariantFullscreen: u.resolver.Resolve(ctx, key, entities.VariantFullscreen),
		},
	}, nil
}

func (u *Uploader) resolveSet(ctx context.Context, asset entities.MediaAsset, keepOriginal bool) map[entities.VariantName]string {
	urls := make(map[entities.VariantName]string, 4)
	for _, name := range entities.AllVariants() {
		if name == entities.VariantOriginal && !keepOriginal {
			continue
		}
		key := entities.StorageKey(asset.Folder, asset.BaseName, name)
		urls[name] = u.resolver.Resolve(ctx, key, name)
	}
	return urls
}

func (u *Uploader) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = u.storage.Delete(context.WithoutCancel(ctx), key)
	}
}

func (u *Uploader) saveCatalog(ctx context.Context, asset entities.MediaAsset, records []entities.VariantRecord) {
	if u.catalog == nil {
		return
	}
	if err := u.catalog.SaveAsset(ctx, asset, records); err != nil {
		log.Printf("[uploader] catalog save %s: %v", asset.BaseName, err)
	}
}

// validate is the cheap synchronous check shared by all strategies: the
// bytes must look like a supported image and carry a decodable header.
func validate(data []byte) (format string, width, height int, err error) {
	mime := mimetype.Detect(data)
	if _, ok := allowedMIMEs[mime.String()]; !ok {
		return "", 0, 0, fmt.Errorf("%w: %s", entities.ErrUnsupportedFormat, mime.String())
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if mime.String() == "image/webp" {
			// WebP decodes lazily in the generator; the mimetype check is
			// authoritative here.
			return "webp", 0, 0, nil
		}
		return "", 0, 0, fmt.Errorf("%w: %v", entities.ErrUnsupportedFormat, err)
	}
	return format, cfg.Width, cfg.Height, nil
}
