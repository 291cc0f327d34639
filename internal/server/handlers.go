package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeline/forgeline/internal/quote"
	"github.com/forgeline/forgeline/internal/store"
)

const (
	maxJSONBody      = 1 << 20
	multipartMemory  = 8 << 20
	maxMultipartBody = quote.MaxFiles*quote.MaxFileBytes + maxJSONBody
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	EventsCount      int    `json:"events_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	response := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.engine != nil {
		response.ExperimentsCount = s.engine.Registry().Len()
	}

	if s.store != nil {
		count, err := s.store.CountEvents(ctx)
		if err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		response.EventsCount = count

		// Size is informational only
		if size, err := s.store.SizeBytes(ctx); err == nil {
			response.DBSizeBytes = size
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// cors sets CORS headers and answers preflight requests. Only configured
// origins may send the session cookie; everyone else is anonymous.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		if origin := r.Header.Get("Origin"); origin != "" && s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// handleExperiments returns the assignments for every running experiment
// that targets the page.
func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page := r.URL.Query().Get("page")
	if page == "" {
		http.Error(w, "page parameter required", http.StatusBadRequest)
		return
	}

	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, s.engine.ForPage(r.Context(), sess, page))
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.session(w, r)
	assignment := s.engine.Assign(r.Context(), sess, r.PathValue("id"), r.URL.Query().Get("page"))
	writeJSON(w, http.StatusOK, assignment)
}

type ConversionRequest struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

type ConversionResponse struct {
	Recorded bool `json:"recorded"`
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConversionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.Metric = strings.TrimSpace(req.Metric)
	if req.Metric == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}

	sess := s.session(w, r)
	recorded := s.engine.RecordConversion(r.Context(), sess, r.PathValue("id"), req.Metric, req.Value)
	writeJSON(w, http.StatusOK, ConversionResponse{Recorded: recorded})
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	materials := s.materials
	if materials == nil {
		materials = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"materials": materials})
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many quote requests, please try again shortly"})
		return
	}

	req, err := decodeQuoteRequest(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		var verr *quote.ValidationError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "upload is too large", Field: "files"})
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		}
		return
	}

	resp, err := s.quotes.Submit(r.Context(), req)
	if err != nil {
		var verr *quote.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Field: verr.Field})
			return
		}
		s.logger.Error("quote submission failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// decodeQuoteRequest accepts either a JSON body or the multipart form posted
// by the quote page. Uploaded file contents are discarded; only names and
// sizes are kept.
func decodeQuoteRequest(w http.ResponseWriter, r *http.Request) (*quote.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" && mediaType != "application/x-www-form-urlencoded" {
		var req quote.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, err
		}
		defer r.MultipartForm.RemoveAll()
	} else if err := r.ParseForm(); err != nil {
		return nil, err
	}

	req := &quote.Request{
		Material: r.PostFormValue("material"),
		Rush:     parseBool(r.PostFormValue("rush")),
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Phone:    r.PostFormValue("phone"),
		Company:  r.PostFormValue("company"),
		Notes:    r.PostFormValue("notes"),
	}

	if raw := strings.TrimSpace(r.PostFormValue("quantity")); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &quote.ValidationError{Field: "quantity", Message: "quantity must be a whole number"}
		}
		req.Quantity = qty
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			req.Files = append(req.Files, quote.File{Name: fh.Filename, Size: fh.Size})
		}
	}

	return req, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// handleAdminEvents returns the raw tracking events of one experiment.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("experiment")
	if id == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}
	if _, ok := s.engine.Registry().Get(id); !ok {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list events", zap.String("experiment", id), zap.Error(err))
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	// Return empty array instead of null
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
