package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/filepipe-io/filepipe/internal/api/middleware"
	"github.com/filepipe-io/filepipe/internal/state"
)

const (
	serviceName    = "filepipe"
	serviceVersion = "v1.0.0"

	contentTypeJSON = "application/json"
)

type (
	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// FileStateResponse is one ingestion state record for a file.
	FileStateResponse struct {
		Bucket          string `json:"bucket"`
		Key             string `json:"key"`
		Status          string `json:"status"`
		FileSize        int64  `json:"fileSize,omitempty"`
		RowCount        int64  `json:"rowCount,omitempty"`
		ChunksProcessed int    `json:"chunksProcessed,omitempty"`
		TotalChunks     int    `json:"totalChunks,omitempty"`
		ErrorMessage    string `json:"errorMessage,omitempty"`
		RunID           string `json:"runId,omitempty"`
		TaskSize        string `json:"taskSize,omitempty"`
		StartedAt       string `json:"startedAt"`
		CompletedAt     string `json:"completedAt,omitempty"`
	}

	// FileHistoryResponse is the full state history of a file, newest first.
	FileHistoryResponse struct {
		Bucket string              `json:"bucket"`
		Key    string              `json:"key"`
		States []FileStateResponse `json:"states"`
	}

	// DatasetResponse is a dataset registry entry keyed by routing key.
	DatasetResponse struct {
		RoutingKey        string   `json:"routingKey"`
		DatasetID         string   `json:"datasetId"`
		SchemaVersion     string   `json:"schemaVersion"`
		ComputeTarget     string   `json:"computeTarget,omitempty"`
		AllowedExtensions []string `json:"allowedExtensions,omitempty"`
	}
)

func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /ping", s.handlePing)     // K8s liveness probe
	mux.HandleFunc("GET /health", s.handleHealth) // Basic health check - status, uptime, version

	// Status endpoints
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /api/v1/files/state", s.handleGetFileState)
	mux.HandleFunc("GET /api/v1/files/history", s.handleGetFileHistory)
	mux.HandleFunc("GET /api/v1/datasets/{routingKey}", s.handleGetDataset)

	// Catch-all handler for 404 responses
	mux.HandleFunc("/", s.handleNotFound)
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealth responds with service status, version and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	s.writeJSON(w, r, http.StatusOK, health)
}

// handleVersion handles GET /api/v1/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, Version{
		Version:     serviceVersion,
		ServiceName: serviceName,
	})
}

// handleGetFileState handles GET /api/v1/files/state?bucket=...&key=...
// Returns the newest ingestion state record for the file.
func (s *Server) handleGetFileState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	bucket, key, ok := fileParams(r)
	if !ok {
		WriteErrorResponse(w, r, s.logger, BadRequest("Query parameters 'bucket' and 'key' are required"))

		return
	}

	rec, err := s.states.GetLatest(ctx, state.FileKey(bucket, key))
	if err != nil {
		if errors.Is(err, state.ErrRecordNotFound) {
			WriteErrorResponse(w, r, s.logger, NotFound("No ingestion state recorded for this file"))

			return
		}

		s.logger.ErrorContext(ctx, "Failed to query file state",
			slog.String("correlation_id", correlationID),
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query file state"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, mapRecordToResponse(bucket, key, rec))
}

// handleGetFileHistory handles GET /api/v1/files/history?bucket=...&key=...
// Returns every ingestion state record for the file, newest first.
func (s *Server) handleGetFileHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	bucket, key, ok := fileParams(r)
	if !ok {
		WriteErrorResponse(w, r, s.logger, BadRequest("Query parameters 'bucket' and 'key' are required"))

		return
	}

	records, err := s.states.GetHistory(ctx, state.FileKey(bucket, key))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query file history",
			slog.String("correlation_id", correlationID),
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query file history"))

		return
	}

	if len(records) == 0 {
		WriteErrorResponse(w, r, s.logger, NotFound("No ingestion state recorded for this file"))

		return
	}

	response := FileHistoryResponse{
		Bucket: bucket,
		Key:    key,
		States: make([]FileStateResponse, 0, len(records)),
	}

	for _, rec := range records {
		response.States = append(response.States, mapRecordToResponse(bucket, key, rec))
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// handleGetDataset handles GET /api/v1/datasets/{routingKey}.
// Returns the dataset registry entry for the routing key.
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if s.registry == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("Dataset registry is not configured"))

		return
	}

	routingKey := r.PathValue("routingKey")
	if routingKey == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("Routing key is required"))

		return
	}

	cfg, err := s.registry.GetConfig(ctx, routingKey)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query dataset registry",
			slog.String("correlation_id", correlationID),
			slog.String("routing_key", routingKey),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query dataset registry"))

		return
	}

	if cfg == nil {
		WriteErrorResponse(w, r, s.logger, NotFound("No dataset registered for this routing key"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, DatasetResponse{
		RoutingKey:        routingKey,
		DatasetID:         cfg.DatasetID,
		SchemaVersion:     cfg.SchemaVersion,
		ComputeTarget:     cfg.ComputeTarget,
		AllowedExtensions: cfg.AllowedExtensions,
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals v and writes it with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// fileParams extracts the required bucket and key query parameters.
func fileParams(r *http.Request) (bucket, key string, ok bool) {
	bucket = r.URL.Query().Get("bucket")
	key = r.URL.Query().Get("key")

	return bucket, key, bucket != "" && key != ""
}

// mapRecordToResponse converts a state record to its API representation.
func mapRecordToResponse(bucket, key string, rec *state.Record) FileStateResponse {
	resp := FileStateResponse{
		Bucket:          bucket,
		Key:             key,
		Status:          string(rec.Status),
		FileSize:        rec.FileSize,
		RowCount:        rec.RowCount,
		ChunksProcessed: rec.ChunksProcessed,
		TotalChunks:     rec.TotalChunks,
		ErrorMessage:    rec.ErrorMessage,
		RunID:           rec.RunID,
		TaskSize:        rec.TaskSize,
		StartedAt:       rec.StartedAt.UTC().Format(time.RFC3339Nano),
	}

	if rec.CompletedAt != nil {
		resp.CompletedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	return resp
}
