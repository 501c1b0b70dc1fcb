package processor

import "github.com/dinver-app/dinver-media/internal/entities"

type fitMode int

const (
	fitCrop fitMode = iota // fixed square, center crop
	fitScale               // proportional scale-to-fit, never upscaled
)

type variantSpec struct {
	Width   int
	Height  int
	Mode    fitMode
	Quality int // JPEG quality 1-100
}

// variantTable is the fixed derivative set. Key suffixes derived from these
// names are part of the storage contract; changing an entry needs a
// migration plan for every persisted key.
var variantTable = map[entities.VariantName]variantSpec{
	entities.VariantThumbnail:  {Width: 320, Height: 320, Mode: fitCrop, Quality: 80},
	entities.VariantMedium:     {Width: 1024, Height: 1024, Mode: fitScale, Quality: 85},
	entities.VariantFullscreen: {Width: 1920, Height: 1920, Mode: fitScale, Quality: 90},
	entities.VariantOriginal:   {Width: 4096, Height: 4096, Mode: fitScale, Quality: 95},
}
