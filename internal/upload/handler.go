// Package upload stores admin file uploads and serves their public URLs.
package upload

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"

	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/httputil"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/requestcontext"
)

const (
	defaultMaxBytes   = 10 << 20
	defaultPublicPath = "/uploads"
	maxNameLength     = 100
)

// Metrics counts stored files.
type Metrics interface {
	IncrementUploadsStored()
}

type Handler struct {
	storage    Storage
	logger     *slog.Logger
	metrics    Metrics
	maxBytes   int64
	publicPath string
}

type Option func(*Handler)

// WithMaxBytes bounds the decoded file size.
func WithMaxBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithPublicPath sets the URL prefix files are served under.
func WithPublicPath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.publicPath = strings.TrimRight(p, "/")
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(storage Storage, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		storage:    storage,
		logger:     logger,
		maxBytes:   defaultMaxBytes,
		publicPath: defaultPublicPath,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the upload routes. The caller wraps r in the admin gate.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/upload", h.HandleUpload)
	r.Delete("/api/upload/{name}", h.HandleDelete)
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	// base64 inflates by 4/3; leave room for the JSON envelope and a data-URL prefix.
	limit := h.maxBytes/3*4 + 64<<10
	req, ok := httputil.DecodeAndPrepareLimit[Request](w, r, h.logger, ctx, requestID, limit)
	if !ok {
		return
	}
	if req.FileSize > h.maxBytes {
		httputil.WriteError(w, tooLarge(h.maxBytes))
		return
	}

	data, err := decode(req.FileData)
	if err != nil {
		h.logger.InfoContext(ctx, "upload rejected: invalid base64",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "fileData is not valid base64"))
		return
	}
	if int64(len(data)) > h.maxBytes {
		httputil.WriteError(w, tooLarge(h.maxBytes))
		return
	}

	name := StoredName(requestcontext.Now(ctx), req.FileName)
	if err := h.storage.Save(ctx, name, data); err != nil {
		h.writeStorageError(w, r, "save upload failed", name, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementUploadsStored()
	}

	h.logger.InfoContext(ctx, "file uploaded",
		"request_id", requestID,
		"name", name,
		"size", len(data),
	)
	httputil.WriteJSON(w, http.StatusOK, Response{File: File{
		Name: name,
		URL:  h.publicPath + "/" + name,
		Size: int64(len(data)),
	}})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.storage.Delete(r.Context(), name); err != nil {
		h.writeStorageError(w, r, "delete upload failed", name, err)
		return
	}
	h.logger.InfoContext(r.Context(), "file deleted",
		"request_id", requestcontext.RequestID(r.Context()),
		"name", name,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, msg, name string, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid file name"))
		return
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "file not found"))
		return
	case errors.Is(err, sentinel.ErrConflict):
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "file already exists"))
		return
	}
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"name", name,
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, msg))
}

// StoredName builds "<unix-millis>-<sanitised base name>".
func StoredName(now time.Time, original string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + sanitize(original)
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	if out == "" {
		out = "file"
	}
	if len(out) > maxNameLength {
		out = out[len(out)-maxNameLength:]
	}
	return out
}

// decode accepts raw base64 or a data URL ("data:<mime>;base64,<payload>").
func decode(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.IndexByte(payload, ','); i >= 0 {
			payload = payload[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
}

func tooLarge(limit int64) error {
	return dErrors.New(dErrors.CodeValidation, "file exceeds maximum size of "+strconv.FormatInt(limit, 10)+" bytes")
}
