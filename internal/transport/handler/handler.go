package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
	"github.com/dinver-app/dinver-media/internal/queue"
	"github.com/dinver-app/dinver-media/internal/uploader"
)

// Uploader is the orchestration surface the handlers call into.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder string, strategy uploader.Strategy, opts uploader.Options) (entities.UploadResult, error)
}

type JobQueue interface {
	Status(ctx context.Context, id string) (entities.Job, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type Resolver interface {
	Resolve(ctx context.Context, storageKey string, variant entities.VariantName) string
}

type KeyLister interface {
	List(ctx context.Context, prefix, token string) ([]string, string, error)
}

type Handler struct {
	uploads   Uploader
	jobs      JobQueue
	resolver  Resolver
	keys      KeyLister
	cfg       *config.Config
	validator *validator.Validate
}

func New(uploads Uploader, jobs JobQueue, resolver Resolver, keys KeyLister, cfg *config.Config) *Handler {
	return &Handler{
		uploads:   uploads,
		jobs:      jobs,
		resolver:  resolver,
		keys:      keys,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := UploadParams{
		Folder:       r.Form.Get("folder"),
		Strategy:     r.Form.Get("strategy"),
		KeepOriginal: r.Form.Get("keepOriginal") == "1",
		Priority:     parseIntDefault(r.Form.Get("priority"), int(queue.PriorityNormal)),
	}

	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := h.uploads.Upload(r.Context(), data, params.Folder, uploader.Strategy(params.Strategy), uploader.Options{
		KeepOriginal: params.KeepOriginal,
		Priority:     queue.Priority(params.Priority),
	})
	if err != nil {
		switch {
		case errors.Is(err, entities.ErrUnsupportedFormat):
			writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, entities.ErrStorage), errors.Is(err, entities.ErrTransform):
			writeJSONError(w, err.Error(), http.StatusBadGateway)
		default:
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	code := http.StatusCreated
	if result.Status == entities.UploadStatusProcessing {
		code = http.StatusAccepted
	}
	writeJSON(w, code, result)
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, entities.ErrJobNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ResolveURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, "key query parameter is required", http.StatusBadRequest)
		return
	}
	variant := entities.VariantName(r.URL.Query().Get("variant"))
	if variant != "" && !variant.Valid() {
		writeJSONError(w, "unknown variant: "+string(variant), http.StatusBadRequest)
		return
	}

	url := h.resolver.Resolve(r.Context(), key, variant)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		writeJSONError(w, "prefix query parameter is required", http.StatusBadRequest)
		return
	}

	keys, next, err := h.keys.List(r.Context(), prefix, r.URL.Query().Get("token"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":       keys,
		"next_token": next,
	})
}
