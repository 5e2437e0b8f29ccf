// Package server exposes band downloads over HTTP: a health endpoint
// and a download endpoint returning the assembled band as PNG.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/geeband/geeband/internal/download"
	"github.com/geeband/geeband/internal/ee"
)

// Server implements the API over an imagery service.
type Server struct {
	svc       ee.ImageService
	opts      download.Options
	version   string
	startTime time.Time
	logger    *log.Logger
}

// NewServer creates a server instance. opts configures the
// per-request downloader.
func NewServer(svc ee.ImageService, opts download.Options, version string) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		svc:       svc,
		opts:      opts,
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Routes mounts the API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.getHealth)
	r.Post("/download", s.createDownload)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

type downloadRequest struct {
	Asset string  `json:"asset"`
	Band  string  `json:"band"`
	Scale float64 `json:"scale,omitempty"`
}

type errorResponse struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"requestId"`
	Regions   []string `json:"missingRegions,omitempty"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("encode health response: %v", err)
	}
}

func (s *Server) createDownload(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON",
			"invalid JSON in request body", requestID, nil)
		return
	}
	if req.Asset == "" {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"asset is required", requestID, nil)
		return
	}
	if req.Band == "" {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			"band is required", requestID, nil)
		return
	}

	d := download.New(s.svc, s.opts)
	grid, err := d.Download(r.Context(), req.Asset, req.Band, req.Scale)
	if err != nil {
		s.handleDownloadError(w, err, requestID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, grid.Image()); err != nil {
		s.logger.Printf("write download response: %v", err)
	}
}

func (s *Server) handleDownloadError(w http.ResponseWriter, err error, requestID string) {
	var incomplete *download.IncompleteError
	switch {
	case errors.Is(err, download.ErrBandNotFound):
		s.writeError(w, http.StatusNotFound, "BAND_NOT_FOUND", err.Error(), requestID, nil)
	case errors.As(err, &incomplete):
		regions := make([]string, len(incomplete.Failed))
		for i, f := range incomplete.Failed {
			regions[i] = f.Tile.String()
		}
		s.writeError(w, http.StatusBadGateway, "INCOMPLETE_DOWNLOAD",
			fmt.Sprintf("%d/%d tiles failed", len(incomplete.Failed), incomplete.Total),
			requestID, regions)
	default:
		s.writeError(w, http.StatusInternalServerError, "DOWNLOAD_FAILED", err.Error(), requestID, nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg, requestID string, regions []string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)

	resp := errorResponse{
		Code:      code,
		Message:   msg,
		RequestID: requestID,
		Regions:   regions,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("encode error response: %v", err)
	}
}
