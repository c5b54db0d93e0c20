package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/maauso/vertical-converter/internal/convert"
	"github.com/maauso/vertical-converter/internal/requestid"
	"github.com/maauso/vertical-converter/internal/upload"
)

// headerTransferEncoding marks a base64 request body and, on the way back,
// a base64 response body.
const headerTransferEncoding = "Content-Transfer-Encoding"

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *convert.Service
	logger         *slog.Logger
	maxUploadBytes int64
	base64Response bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the request body size. Zero disables the cap.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		h.maxUploadBytes = n
	}
}

// WithBase64Response makes every successful conversion respond with a
// base64 body, as if the client had asked for it.
func WithBase64Response(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.base64Response = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *convert.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Convert handles requests to the conversion endpoint. Preflight requests
// are answered by CORSMiddleware before reaching it.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeText(w, http.StatusMethodNotAllowed, "Use POST")
		return
	}

	ctx := r.Context()
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	transferEncoding := r.Header.Get(headerTransferEncoding)
	body := upload.TransferDecoder(r.Body, transferEncoding)

	form, err := h.service.Decode(ctx, body, r.Header.Get("Content-Type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer h.service.Cleanup(form.Paths()...)

	artifact, err := h.service.Convert(ctx, form)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer h.service.Cleanup(artifact.Path)

	asBase64 := h.base64Response || isBase64(transferEncoding)
	h.writeArtifact(w, r, artifact, asBase64)
}

func isBase64(transferEncoding string) bool {
	return strings.EqualFold(strings.TrimSpace(transferEncoding), "base64")
}

// writeArtifact streams the converted file to the client.
func (h *Handlers) writeArtifact(w http.ResponseWriter, r *http.Request, artifact *convert.Artifact, asBase64 bool) {
	rc, err := h.service.Open(r.Context(), artifact)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", artifact.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Format.Filename()))

	if asBase64 {
		w.Header().Set(headerTransferEncoding, "base64")
		w.Header().Set("Content-Length", strconv.Itoa(base64.StdEncoding.EncodedLen(int(artifact.Size))))
		w.WriteHeader(http.StatusOK)

		enc := base64.NewEncoder(base64.StdEncoding, w)
		_, err = io.Copy(enc, rc)
		if closeErr := enc.Close(); err == nil {
			err = closeErr
		}
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, rc)
	}

	// Headers are already sent; the client just gets a short body.
	if err != nil {
		h.logger.Warn("failed to write response body",
			slog.String("request_id", requestid.FromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// fail logs err and answers 500 with a plain-text error. Every pipeline
// failure, an oversized body included, gets the same status.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("conversion request failed",
		slog.String("request_id", requestid.FromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeText(w, http.StatusInternalServerError, "Error: "+err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
