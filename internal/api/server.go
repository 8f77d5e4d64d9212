// Package api exposes the HTTP surface: transcript ingest, analysis runs,
// and strategy recommendations.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/processor"
	"github.com/attestlabs/attest/internal/strategy"
	"github.com/attestlabs/attest/internal/transcript"
)

type Server struct {
	router *chi.Mux
	proc   *processor.Processor
	port   int
	logger *slog.Logger
}

func NewServer(port int, proc *processor.Processor, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		proc:   proc,
		port:   port,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/templates", s.listTemplates)
		r.Post("/transcripts", s.ingestTranscript)
		r.Post("/transcripts/{id}/analyze", s.analyze)
		r.Get("/transcripts/{id}/analyses", s.listAnalyses)
		r.Get("/analyses/{id}", s.getAnalysis)
		r.Get("/analyses/{id}/status", s.getAnalysisStatus)
		r.Post("/strategy/recommend", s.recommend)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type templateSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Sections int    `json:"sections"`
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	out := []templateSummary{}
	for _, t := range s.proc.Templates() {
		out = append(out, templateSummary{ID: t.ID, Name: t.Name, Sections: len(t.Sections)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

type ingestRequest struct {
	Title       string               `json:"title"`
	ContentType string               `json:"contentType"`
	Segments    []transcript.Segment `json:"segments"`
}

func (s *Server) ingestTranscript(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if len(req.Segments) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("segments are required"))
		return
	}

	id, err := s.proc.Ingest(r.Context(), req.Title, req.ContentType, req.Segments)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"transcriptId": id.String()})
}

type analyzeRequest struct {
	TemplateID string `json:"templateId"`
	Strategy   string `json:"strategy"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	transcriptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid transcript id"))
		return
	}

	var req analyzeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}

	analysisID, err := s.proc.StartAnalysis(r.Context(), transcriptID, req.TemplateID, strategy.Strategy(req.Strategy))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"analysisId": analysisID.String()})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid analysis id"))
		return
	}

	rec, err := s.proc.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("analysis %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid analysis id"))
		return
	}

	rec, err := s.proc.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("analysis %s not found", id))
		return
	}
	resp := map[string]any{
		"analysisId": rec.ID.String(),
		"status":     rec.Status,
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	transcriptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid transcript id"))
		return
	}

	recs, err := s.proc.ListAnalyses(r.Context(), transcriptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": recs})
}

type recommendRequest struct {
	TranscriptID string `json:"transcriptId"`
	TemplateID   string `json:"templateId"`
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	transcriptID, err := uuid.Parse(req.TranscriptID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid transcript id"))
		return
	}

	rec, err := s.proc.Recommend(r.Context(), transcriptID, req.TemplateID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
