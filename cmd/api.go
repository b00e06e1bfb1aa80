package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/export"
	"github.com/sells-group/arrowline/internal/metrics"
	"github.com/sells-group/arrowline/internal/model"
	"github.com/sells-group/arrowline/internal/queue"
	"github.com/sells-group/arrowline/internal/store"
)

var contentTypes = map[string]string{
	export.FormatGeoJSON: "application/geo+json",
	export.FormatKML:     "application/vnd.google-earth.kml+xml",
	export.FormatXLSX:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type apiHandler struct {
	store store.Store
	opts  routerOptions
}

// layerRequest is the body of POST /v1/arrow-lines and POST /v1/tasks.
type layerRequest struct {
	PackageName string                     `json:"package_name,omitempty"`
	Features    *geojson.FeatureCollection `json:"features"`
	Config      *arrowline.Config          `json:"config,omitempty"`
}

type arrowLineResponse struct {
	Features   int                        `json:"features"`
	ArrowHeads int                        `json:"arrow_heads"`
	Polyline   string                     `json:"polyline"`
	GeoJSON    *geojson.FeatureCollection `json:"geojson"`
}

func (h *apiHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// job decodes a layer request into a validated queue job.
func (h *apiHandler) job(w http.ResponseWriter, r *http.Request) (layerRequest, queue.Job, bool) {
	body := r.Body
	if h.opts.MaxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxBody)
	}

	var req layerRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, queue.Job{}, false
	}
	if req.Features == nil {
		writeError(w, http.StatusBadRequest, "features are required")
		return req, queue.Job{}, false
	}

	job := queue.Job{Features: req.Features, Config: h.opts.Layer}
	if req.Config != nil {
		job.Config = *req.Config
	}
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, queue.Job{}, false
	}
	return req, job, true
}

func (h *apiHandler) buildArrowLine(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatGeoJSON
	}
	contentType, ok := contentTypes[format]
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}

	_, job, ok := h.job(w, r)
	if !ok {
		return
	}

	start := time.Now()
	layer, err := job.Build()
	metrics.ObserveBuild("http", layer, time.Since(start), err)
	if err != nil {
		writeError(w, buildErrorStatus(err), err.Error())
		return
	}

	if format == export.FormatGeoJSON {
		writeJSON(w, http.StatusOK, arrowLineResponse{
			Features:   len(layer.Features.Features),
			ArrowHeads: len(layer.ArrowHeads.Features),
			Polyline:   layer.EncodedPolyline(),
			GeoJSON:    layer.FeatureCollection(),
		})
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, layer, format, r.URL.Query().Get("name")); err != nil {
		zap.L().Error("export layer", zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *apiHandler) createTask(w http.ResponseWriter, r *http.Request) {
	req, job, ok := h.job(w, r)
	if !ok {
		return
	}

	payload, err := queue.EncodeJob(job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode job failed")
		return
	}
	task, err := h.store.CreateTask(r.Context(), store.NewTask{
		Type:        model.TaskTypeArrowLine,
		PackageName: req.PackageName,
		Payload:     payload,
	})
	if err != nil {
		zap.L().Error("create task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create task failed")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *apiHandler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *apiHandler) listArrowHeads(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	heads, err := h.store.ListArrowHeads(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if heads == nil {
		heads = []model.ArrowHead{}
	}
	writeJSON(w, http.StatusOK, heads)
}

func (h *apiHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{
		Type:        q.Get("type"),
		PackageName: q.Get("package"),
	}
	if v := q.Get("status"); v != "" {
		status, err := model.ParseTaskStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *apiHandler) runTasks(w http.ResponseWriter, r *http.Request) {
	stats, err := queue.NewRunner(h.store, h.opts.Queue).RunPending(r.Context())
	if err != nil {
		zap.L().Error("run tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// buildErrorStatus maps build errors to 400 for bad configuration and 422
// for features the pipeline cannot process.
func buildErrorStatus(err error) int {
	switch metrics.ErrorKind(err) {
	case "invalid_config":
		return http.StatusBadRequest
	case "other":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	zap.L().Error("store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
