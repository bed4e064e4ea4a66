package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deal-lab/auth"
	apperrors "deal-lab/errors"

	"github.com/gorilla/mux"
)

// NewRouter wires the HTTP routes exposed by the negotiation core.
func NewRouter(log *slog.Logger, h *Handlers) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/events", h.streamEvents).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(authMiddleware(log))

	api.HandleFunc("/transactions", h.createTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", h.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", h.deleteTransaction).Methods(http.MethodDelete)
	api.HandleFunc("/transactions/{id}/status", h.updateStatus).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/timeline", h.timeline).Methods(http.MethodGet)

	api.HandleFunc("/transactions/{id}/offers", h.createOffer).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/offers", h.listOffers).Methods(http.MethodGet)
	api.HandleFunc("/offers/{id}/respond", h.respondToOffer).Methods(http.MethodPost)

	api.HandleFunc("/transactions/{id}/milestones", h.addMilestone).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/milestones", h.listMilestones).Methods(http.MethodGet)
	api.HandleFunc("/milestones/{id}/complete", h.completeMilestone).Methods(http.MethodPost)

	api.HandleFunc("/messages", h.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages", h.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/read", h.markRead).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/read", h.markConversationRead).Methods(http.MethodPost)
	api.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)

	api.HandleFunc("/presence/online", h.listOnline).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/join", h.joinRoom).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/leave", h.leaveRoom).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/typing", h.typing).Methods(http.MethodPost)

	return loggingMiddleware(log, r)
}

type contextKey string

const userIDKey contextKey = "userID"

// authMiddleware resolves the caller from a bearer token issued by the
// platform's auth service. The core validates, never issues.
func authMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := auth.ValidateToken(token)
			if err != nil {
				log.Debug("Token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID)))
		})
	}
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}

// respondError maps the error taxonomy onto HTTP statuses. The message
// carries the expected-vs-actual detail the services already composed.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case stderrors.Is(err, apperrors.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case stderrors.Is(err, apperrors.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case stderrors.Is(err, apperrors.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case stderrors.Is(err, apperrors.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
