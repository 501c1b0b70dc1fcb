package entities

import "time"

// VariantName identifies one derivative of an uploaded image.
type VariantName string

const (
	VariantThumbnail  VariantName = "thumbnail"
	VariantMedium     VariantName = "medium"
	VariantFullscreen VariantName = "fullscreen"
	VariantOriginal   VariantName = "original"
)

// CanonicalExt is the extension every variant is encoded with. Callers
// persist folder + baseName and rebuild variant keys by suffix substitution,
// so this table is part of the wire contract.
const CanonicalExt = "jpg"

var variantSuffixes = map[VariantName]string{
	VariantThumbnail:  "-thumb",
	VariantMedium:     "-medium",
	VariantFullscreen: "-full",
	VariantOriginal:   "-original",
}

// AllVariants lists the fixed enumeration in generation order.
func AllVariants() []VariantName {
	return []VariantName{VariantThumbnail, VariantMedium, VariantFullscreen, VariantOriginal}
}

// Suffix returns the key suffix for a variant, or "" for an unknown name.
func (v VariantName) Suffix() string {
	return variantSuffixes[v]
}

// Valid reports whether v is part of the fixed enumeration.
func (v VariantName) Valid() bool {
	_, ok := variantSuffixes[v]
	return ok
}

// StorageKey derives the deterministic object key for one variant:
// {folder}/{baseName}{suffix}.jpg
func StorageKey(folder, baseName string, variant VariantName) string {
	return folder + "/" + baseName + variant.Suffix() + "." + CanonicalExt
}

// MediaAsset is the logical upload unit. Immutable after creation; a
// re-upload produces a new baseName.
type MediaAsset struct {
	BaseName        string    `json:"base_name"`
	Folder          string    `json:"folder"`
	SourceFormat    string    `json:"source_format"`
	OriginalWidth   int       `json:"original_width"`
	OriginalHeight  int       `json:"original_height"`
	SourceSizeBytes int64     `json:"source_size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

// VariantRecord describes one stored derivative.
type VariantRecord struct {
	Name       VariantName `json:"name"`
	StorageKey string      `json:"storage_key"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	ByteSize   int64       `json:"byte_size"`
	Format     string      `json:"format"`
}

// UploadStatus is the caller-visible outcome of an upload call.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
)

// UploadResult is returned synchronously from Upload. On the optimistic
// path URLs are placeholders that dereference only after the job lands.
type UploadResult struct {
	Status   UploadStatus           `json:"status"`
	JobID    string                 `json:"job_id,omitempty"`
	Asset    MediaAsset             `json:"asset"`
	Variants []VariantRecord        `json:"variants,omitempty"`
	URLs     map[VariantName]string `json:"urls"`
}
