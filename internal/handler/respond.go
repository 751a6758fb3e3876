package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/studyhall/internal/i18n"
	"github.com/pavelanni/studyhall/internal/llm"
	"github.com/pavelanni/studyhall/internal/model"
	"github.com/pavelanni/studyhall/internal/store"
	"github.com/pavelanni/studyhall/internal/study"
)

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errResp{Error: msg, Code: code})
}

// fail maps a service error to a status code and a localized message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var se *llm.StatusError
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		writeErr(w, http.StatusPreconditionFailed, "credential_missing", i18n.T(ctx, "ErrCredentialMissing"))
	case errors.Is(err, llm.ErrUnauthorized):
		writeErr(w, http.StatusBadGateway, "model_auth", i18n.T(ctx, "ErrModelAuth"))
	case errors.As(err, &se):
		writeErr(w, http.StatusBadGateway, "model_status", i18n.Td(ctx, "ErrModelStatus", map[string]any{"Status": se.Status}))
	case errors.Is(err, llm.ErrUnavailable):
		writeErr(w, http.StatusBadGateway, "model_unavailable", i18n.T(ctx, "ErrModelUnavailable"))
	case errors.Is(err, study.ErrInvalidRequest), errors.Is(err, model.ErrInvalid):
		writeErr(w, http.StatusBadRequest, "bad_request", i18n.Td(ctx, "ErrBadRequest", map[string]any{"Detail": detail(err)}))
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", i18n.T(ctx, "ErrNotFound"))
	case errors.Is(err, study.ErrNothingGenerated):
		writeErr(w, http.StatusUnprocessableEntity, "nothing_generated", i18n.T(ctx, "ErrNothingGenerated"))
	case errors.Is(err, study.ErrSessionCompleted):
		writeErr(w, http.StatusConflict, "session_completed", i18n.T(ctx, "ErrSessionCompleted"))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		slog.Warn("request ran out of time", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErr(w, http.StatusGatewayTimeout, "model_timeout", i18n.T(ctx, "ErrModelTimeout"))
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErr(w, http.StatusInternalServerError, "storage", i18n.T(ctx, "ErrStorage"))
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeErr(w, http.StatusBadRequest, "bad_request", i18n.Td(r.Context(), "ErrBadRequest", map[string]any{"Detail": msg}))
}

// detail strips the sentinel prefix so the client sees only the specific reason.
func detail(err error) string {
	msg := err.Error()
	for _, prefix := range []string{study.ErrInvalidRequest.Error() + ": ", model.ErrInvalid.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
