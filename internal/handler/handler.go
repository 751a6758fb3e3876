// Package handler exposes the study service as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/studyhall/internal/i18n"
	"github.com/pavelanni/studyhall/internal/model"
	"github.com/pavelanni/studyhall/internal/study"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc *study.Service
}

// New creates a new Handler.
func New(svc *study.Service) *Handler {
	return &Handler{svc: svc}
}

// Options configure the router built by Router.
type Options struct {
	CORSOrigins []string
	// Timeout bounds each request; generation calls can be slow.
	Timeout time.Duration
}

// Router returns a chi router serving the API under /api.
func Router(svc *study.Service, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)
	r.Route("/api", New(svc).Routes)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)

	r.Get("/questions", h.handleSearchQuestions)
	r.Get("/questions/{id}", h.handleGetQuestion)
	r.Delete("/questions/{id}", h.handleDeleteQuestion)
	r.Get("/syllabuses", h.handleSearchSyllabuses)
	r.Get("/syllabuses/{id}", h.handleGetSyllabus)
	r.Delete("/syllabuses/{id}", h.handleDeleteSyllabus)

	r.Post("/quizzes", h.handleGenerateQuiz)
	r.Post("/syllabuses", h.handleGenerateSyllabus)
	r.Post("/imports", h.handleImportFiles)
	r.Get("/generation", h.handleGenerationStatus)

	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/answers/{questionID}", h.handleAnswer)
	r.Get("/sessions/{sessionID}/answers/{questionID}/image", h.handleAnswerImage)
	r.Post("/sessions/{sessionID}/finish", h.handleFinish)

	r.Post("/backup", h.handleImportBackup)
	r.Get("/backup", h.handleExportBackup)

	r.Post("/plan", h.handleStudyPlan)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.QuestionCount(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "languages": i18n.Languages(), "questions": n})
}

// handleSearchQuestions filters by exact tag when ?tag= is given and ranks by
// relevance to ?q= otherwise.
func (h *Handler) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	var (
		qs  []model.Question
		err error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		qs, err = h.svc.QuestionsByTag(r.Context(), tag)
	} else {
		qs, err = h.svc.Retriever().FindRelevantQuestions(r.Context(), r.URL.Query().Get("q"))
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(qs))
}

func (h *Handler) handleSearchSyllabuses(w http.ResponseWriter, r *http.Request) {
	ss, err := h.svc.Retriever().FindRelevantSyllabuses(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ss))
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Question(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleGetSyllabus(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Syllabus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Library().DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteSyllabus(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Library().DeleteSyllabus(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	files, err := parseUpload(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	req := study.QuizRequest{
		Title:      r.FormValue("title"),
		Topic:      strings.TrimSpace(r.FormValue("topic")),
		Difficulty: model.Difficulty(r.FormValue("difficulty")),
		Files:      files,
	}
	if v := r.FormValue("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, r, "count must be a number")
			return
		}
		req.Count = n
	}
	for _, t := range formList(r, "types") {
		req.Types = append(req.Types, model.QuestionType(t))
	}

	sess, err := h.svc.GenerateQuiz(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGenerateSyllabus(w http.ResponseWriter, r *http.Request) {
	files, err := parseUpload(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	syl, err := h.svc.GenerateSyllabus(r.Context(), strings.TrimSpace(r.FormValue("topic")), files)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, syl)
}

type importResponse struct {
	Extraction any               `json:"extraction,omitempty"`
	Report     model.MergeReport `json:"report"`
	Message    string            `json:"message"`
}

func (h *Handler) handleImportFiles(w http.ResponseWriter, r *http.Request) {
	files, err := parseUpload(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	ext, report, err := h.svc.ImportFiles(r.Context(), files)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Extraction: ext, Report: report, Message: reportMessage(r, report)})
}

func (h *Handler) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GenerationStatus())
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.ListSessions(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sessions))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type answerRequest struct {
	Text string   `json:"text"`
	List []string `json:"list"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if isMultipart(r) {
		img, err := parseImage(r, "image")
		if err != nil {
			badRequest(w, r, err.Error())
			return
		}
		sub = model.Submission{Text: r.FormValue("text"), Image: img}
	} else {
		var req answerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			badRequest(w, r, "invalid JSON body")
			return
		}
		sub = model.Submission{Text: req.Text, List: req.List}
	}

	answer, err := h.svc.SubmitAnswer(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "questionID"), sub)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) handleAnswerImage(w http.ResponseWriter, r *http.Request) {
	rc, mediaType, err := h.svc.AnswerImage(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "questionID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", mediaType)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming diagram failed", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.FinishSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	files, err := parseUpload(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if len(files) != 1 {
		badRequest(w, r, "exactly one backup file is required")
		return
	}
	report, err := h.svc.ImportBackup(r.Context(), files[0].Name, files[0].Data)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Report: report, Message: reportMessage(r, report)})
}

func (h *Handler) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="studyhall-backup.json"`)
	writeJSON(w, http.StatusOK, h.svc.ExportBackup())
}

type planRequest struct {
	Topic     string `json:"topic"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleStudyPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	plan, err := h.svc.StudyPlan(r.Context(), req.Topic, req.SessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"plan": plan})
}

func reportMessage(r *http.Request, rep model.MergeReport) string {
	ctx := r.Context()
	if rep.AlreadyImported {
		return i18n.T(ctx, "AlreadyImported")
	}
	return i18n.Tp(ctx, "QuestionsAdded", rep.QuestionsAdded) + " " + i18n.Tp(ctx, "SyllabusesAdded", rep.SyllabusesAdded)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
