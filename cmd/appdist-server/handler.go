// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/significa/appdist/lib/archive"
	"github.com/significa/appdist/lib/axml"
	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/distribution"
	"github.com/significa/appdist/lib/manifest"
	"github.com/significa/appdist/lib/plist"
	"github.com/significa/appdist/lib/service"
	"github.com/significa/appdist/lib/uploadstore"
	"github.com/significa/appdist/lib/version"
)

const (
	// authHeader carries the shared upload secret.
	authHeader = "X-Auth-Token"

	// requestIDHeader is echoed on every response.
	requestIDHeader = "X-Request-ID"

	// multipartMemory is how much of a multipart body is held in
	// memory before parts spill to temporary files.
	multipartMemory = 32 << 20

	defaultMaxUploadBytes = 1 << 30
)

// handlerConfig is everything the HTTP layer needs.
type handlerConfig struct {
	Service        *distribution.Service
	PublicURL      string
	AuthToken      string
	MaxUploadBytes int64
	Logger         *slog.Logger
	Metrics        *metrics
	Clock          clock.Clock
}

type handler struct {
	service        *distribution.Service
	publicURL      string
	authToken      string
	maxUploadBytes int64
	logger         *slog.Logger
	metrics        *metrics
	clock          clock.Clock
}

// newHandler builds the routing table wrapped in request-id, logging,
// and metrics middleware.
func newHandler(config handlerConfig) http.Handler {
	h := &handler{
		service:        config.Service,
		publicURL:      strings.TrimRight(config.PublicURL, "/"),
		authToken:      config.AuthToken,
		maxUploadBytes: config.MaxUploadBytes,
		logger:         config.Logger,
		metrics:        config.Metrics,
		clock:          config.Clock,
	}
	if h.clock == nil {
		h.clock = clock.Real()
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload", h.requireToken(h.handlePlainUpload))
	mux.HandleFunc("POST /api/upload", h.requireToken(h.handleUpload))
	mux.HandleFunc("DELETE /api/delete/{upload_id}", h.requireToken(h.handleDelete))
	mux.HandleFunc("DELETE /delete/{upload_id}", h.requireToken(h.handleDeprecatedDelete))
	mux.HandleFunc("GET /api/bundle/{bundle_id}/latest_upload", h.handleLatest)
	mux.HandleFunc("GET /api/uploads", h.requireToken(h.handleList))
	mux.HandleFunc("GET /api/uploads/{upload_id}/tags", h.handleUploadTags)
	mux.HandleFunc("POST /api/uploads/{upload_id}/tags", h.requireToken(h.handleAttachTags))

	mux.HandleFunc("POST /api/tags", h.requireToken(h.handleCreateTag))
	mux.HandleFunc("GET /api/tags", h.handleListTags)
	mux.HandleFunc("GET /api/tags/{tag}", h.handleGetTag)
	mux.HandleFunc("PUT /api/tags/{tag}", h.requireToken(h.handleRenameTag))

	// GET patterns also match HEAD.
	mux.HandleFunc("GET /get/{upload_id}/app.plist", h.handleManifest)
	mux.HandleFunc("GET /get/{upload_id}/app.ipa", h.handleDownload(buildinfo.PlatformIOS))
	mux.HandleFunc("GET /get/{upload_id}/app.apk", h.handleDownload(buildinfo.PlatformAndroid))
	mux.HandleFunc("GET /get/{upload_id}/icon.png", h.handleIcon)

	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.handler())
	}

	return h.middleware(mux)
}

// --- Middleware ---

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type loggerKey struct{}

func (h *handler) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		started := h.clock.Now()

		requestID := request.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		writer.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: writer}
		next.ServeHTTP(recorder, request)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		route := request.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := h.clock.Now().Sub(started)
		h.metrics.observeRequest(route, request.Method, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(request.Context(), level, "http request",
			"request_id", requestID,
			"method", request.Method,
			"route", route,
			"path", request.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration", elapsed,
		)
	})
}

// requireToken rejects requests whose X-Auth-Token does not match the
// configured secret. With no secret configured every request passes.
func (h *handler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if !service.CheckToken(h.authToken, request.Header.Get(authHeader)) {
			writeJSON(writer, http.StatusUnauthorized, errorResponse{
				Error: "invalid or missing " + authHeader,
				Code:  "unauthorized",
			})
			return
		}
		next(writer, request)
	}
}

// --- Errors ---

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusForError maps a failure to its HTTP status and a stable error
// code for clients.
func statusForError(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, buildinfo.ErrInvalidFileType):
		return http.StatusBadRequest, "invalid_file_type"
	case errors.Is(err, archive.ErrMalformedArchive):
		return http.StatusUnprocessableEntity, "malformed_archive"
	case errors.Is(err, plist.ErrMalformed):
		return http.StatusUnprocessableEntity, "malformed_property_list"
	case errors.Is(err, axml.ErrMalformed):
		return http.StatusUnprocessableEntity, "malformed_manifest"
	case errors.Is(err, buildinfo.ErrMissingIdentityFields):
		return http.StatusUnprocessableEntity, "missing_identity_fields"
	case errors.Is(err, uploadstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, uploadstore.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, uploadstore.ErrUnknownTag):
		return http.StatusBadRequest, "unknown_tag"
	case errors.Is(err, uploadstore.ErrInvalidTag):
		return http.StatusBadRequest, "invalid_tag"
	case errors.Is(err, distribution.ErrInvalidBundleID):
		return http.StatusBadRequest, "invalid_bundle_id"
	case errors.Is(err, manifest.ErrIncompleteMetadata):
		return http.StatusUnprocessableEntity, "incomplete_metadata"
	case errors.Is(err, buildinfo.ErrWrongPlatform):
		return http.StatusBadRequest, "wrong_platform"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError reports err to the client. Internal errors are logged and
// replaced by a generic message.
func (h *handler) writeError(writer http.ResponseWriter, request *http.Request, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", writer.Header().Get(requestIDHeader),
			"path", request.URL.Path,
			"error", err,
		)
		message = "internal error"
	}
	writeJSON(writer, status, errorResponse{Error: message, Code: code})
}

func writeBadRequest(writer http.ResponseWriter, code, message string) {
	writeJSON(writer, http.StatusBadRequest, errorResponse{Error: message, Code: code})
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	encoder.Encode(value)
}

// --- Uploads ---

func (h *handler) handleUpload(writer http.ResponseWriter, request *http.Request) {
	info, ok := h.ingest(writer, request)
	if !ok {
		return
	}
	writeJSON(writer, http.StatusOK, info)
}

func (h *handler) handlePlainUpload(writer http.ResponseWriter, request *http.Request) {
	info, ok := h.ingest(writer, request)
	if !ok {
		return
	}
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(writer, h.uploadURL(info.UploadID))
}

// ingest reads the multipart upload (field app_file, repeated tags)
// and stores it. On failure it writes the error response and returns
// false.
func (h *handler) ingest(writer http.ResponseWriter, request *http.Request) (buildinfo.BuildInfo, bool) {
	if request.ContentLength > h.maxUploadBytes {
		h.writeError(writer, request, &http.MaxBytesError{Limit: h.maxUploadBytes})
		return buildinfo.BuildInfo{}, false
	}
	request.Body = http.MaxBytesReader(writer, request.Body, h.maxUploadBytes)
	if err := request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(writer, request, err)
		} else {
			writeBadRequest(writer, "invalid_request", "expected a multipart/form-data body: "+err.Error())
		}
		return buildinfo.BuildInfo{}, false
	}
	defer request.MultipartForm.RemoveAll()

	file, header, err := request.FormFile("app_file")
	if err != nil {
		writeBadRequest(writer, "missing_file", "the app_file field is required")
		return buildinfo.BuildInfo{}, false
	}
	defer file.Close()

	// The extension decides everything else; reject before reading.
	platform, err := buildinfo.PlatformForFilename(header.Filename)
	if err != nil {
		h.metrics.observeIngest("unknown", "invalid_file_type", 0)
		h.writeError(writer, request, err)
		return buildinfo.BuildInfo{}, false
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		h.writeError(writer, request, fmt.Errorf("reading %s: %w", header.Filename, err))
		return buildinfo.BuildInfo{}, false
	}

	info, err := h.service.Ingest(raw, header.Filename, request.MultipartForm.Value["tags"])
	if err != nil {
		_, code := statusForError(err)
		h.metrics.observeIngest(string(platform), code, 0)
		h.writeError(writer, request, err)
		return buildinfo.BuildInfo{}, false
	}
	h.metrics.observeIngest(string(platform), "ok", len(raw))
	return info, true
}

func (h *handler) handleDelete(writer http.ResponseWriter, request *http.Request) {
	if err := h.service.Delete(request.PathValue("upload_id")); err != nil {
		h.writeError(writer, request, err)
		return
	}
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(writer, "Upload deleted successfully")
}

func (h *handler) handleDeprecatedDelete(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Deprecation", "true")
	writer.Header().Set("Link", "</api/delete/"+request.PathValue("upload_id")+`>; rel="successor-version"`)
	h.handleDelete(writer, request)
}

func (h *handler) handleLatest(writer http.ResponseWriter, request *http.Request) {
	info, err := h.service.GetLatest(request.PathValue("bundle_id"))
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, info)
}

// listEntry is one row of GET /api/uploads.
type listEntry struct {
	UploadID  string              `json:"upload_id"`
	FileName  string              `json:"file_name"`
	URL       string              `json:"url"`
	BuildInfo buildinfo.BuildInfo `json:"build_info"`
	Tags      []string            `json:"tags"`
}

func (h *handler) handleList(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()

	var filter distribution.Filter
	if name := strings.TrimSpace(query.Get("platform")); name != "" {
		platform, err := buildinfo.ParsePlatform(name)
		if err != nil {
			writeBadRequest(writer, "invalid_platform", err.Error())
			return
		}
		filter.Platform = platform
	}
	filter.Tags = query["tags"]

	entries, err := h.service.List(filter)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}

	result := make([]listEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, listEntry{
			UploadID:  entry.UploadID,
			FileName:  entry.FileName,
			URL:       h.uploadURL(entry.UploadID),
			BuildInfo: entry.BuildInfo,
			Tags:      entry.Tags,
		})
	}
	writeJSON(writer, http.StatusOK, result)
}

// --- Tags ---

type tagRequest struct {
	Tag string `json:"tag"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *handler) handleCreateTag(writer http.ResponseWriter, request *http.Request) {
	var body tagRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, 64<<10)).Decode(&body); err != nil {
		writeBadRequest(writer, "invalid_request", "expected a JSON body {\"tag\": \"...\"}")
		return
	}
	name := strings.TrimSpace(body.Tag)
	if name == "" {
		writeBadRequest(writer, "invalid_tag", "Tag cannot be empty")
		return
	}
	if err := h.service.CreateTag(name); err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"tag": name})
}

func (h *handler) handleListTags(writer http.ResponseWriter, request *http.Request) {
	tags, err := h.service.ListTags()
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string][]string{"tags": tags})
}

func (h *handler) handleGetTag(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("tag")
	exists, err := h.service.TagExists(name)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	if !exists {
		writeJSON(writer, http.StatusNotFound, errorResponse{Error: "Tag not found", Code: "not_found"})
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"tag": strings.TrimSpace(name)})
}

func (h *handler) handleRenameTag(writer http.ResponseWriter, request *http.Request) {
	oldName := request.PathValue("tag")
	newName := strings.TrimSpace(request.URL.Query().Get("new_tag"))
	if newName == "" {
		writeBadRequest(writer, "invalid_tag", "New tag cannot be empty")
		return
	}
	if err := h.service.RenameTag(oldName, newName); err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"old_tag": oldName, "new_tag": newName})
}

type uploadTagsResponse struct {
	UploadID string   `json:"upload_id"`
	Tags     []string `json:"tags"`
}

func (h *handler) handleUploadTags(writer http.ResponseWriter, request *http.Request) {
	uploadID := request.PathValue("upload_id")
	tags, err := h.service.TagsOf(uploadID)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, uploadTagsResponse{UploadID: uploadID, Tags: tags})
}

func (h *handler) handleAttachTags(writer http.ResponseWriter, request *http.Request) {
	var body tagsRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, 1<<20)).Decode(&body); err != nil {
		writeBadRequest(writer, "invalid_request", "expected a JSON body {\"tags\": [...]}")
		return
	}
	uploadID := request.PathValue("upload_id")
	tags, err := h.service.AttachTags(uploadID, body.Tags)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writeJSON(writer, http.StatusOK, uploadTagsResponse{UploadID: uploadID, Tags: tags})
}

// --- Downloads ---

func (h *handler) uploadURL(uploadID string) string {
	return h.publicURL + "/get/" + uploadID
}

func (h *handler) handleManifest(writer http.ResponseWriter, request *http.Request) {
	uploadID := request.PathValue("upload_id")
	info, err := h.service.Get(uploadID)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}

	var options manifest.Options
	if info.HasIcon {
		options.DisplayImageURL = h.uploadURL(uploadID) + "/icon.png"
		options.FullSizeImageURL = options.DisplayImageURL
	}
	document, err := h.service.RenderManifest(uploadID, h.uploadURL(uploadID)+"/app.ipa", options)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writer.Header().Set("Content-Type", "application/xml")
	writer.Write(document)
}

// handleDownload streams the stored artifact of an upload whose
// platform matches the requested extension.
func (h *handler) handleDownload(platform buildinfo.Platform) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		uploadID := request.PathValue("upload_id")
		artifactPath, info, err := h.service.ArtifactPath(uploadID)
		if err != nil {
			h.writeError(writer, request, err)
			return
		}
		if info.Platform != platform {
			h.writeError(writer, request, fmt.Errorf("%w: upload %s is an %s build", uploadstore.ErrNotFound, uploadID, info.Platform))
			return
		}

		file, err := os.Open(artifactPath)
		if err != nil {
			// Deleted between the lookup and the open.
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: upload %s", uploadstore.ErrNotFound, uploadID)
			}
			h.writeError(writer, request, err)
			return
		}
		defer file.Close()

		contentType := "application/octet-stream"
		if platform == buildinfo.PlatformAndroid {
			contentType = "application/vnd.android.package-archive"
		}
		writer.Header().Set("Content-Type", contentType)
		writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.FileName))
		if request.Method == http.MethodGet {
			h.metrics.observeDownload(string(platform))
		}
		http.ServeContent(writer, request, info.FileName, info.CreatedAt, file)
	}
}

func (h *handler) handleIcon(writer http.ResponseWriter, request *http.Request) {
	icon, err := h.service.Icon(request.PathValue("upload_id"))
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	writer.Header().Set("Content-Type", "image/png")
	writer.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	writer.Write(icon)
}

// --- Health ---

type healthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

func (h *handler) handleHealth(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Info(),
		Time:    h.clock.Now().UTC(),
	})
}
