package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/middleware"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// RetryAfterSeconds is sent with 503 responses when an account or loan is busy
const RetryAfterSeconds = "1"

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error kind to its HTTP status and the message safe to show the caller
func statusFor(err error) (int, string) {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest, err.Error()
	case model.KindNotFound:
		return http.StatusNotFound, err.Error()
	case model.KindState:
		return http.StatusConflict, err.Error()
	case model.KindInsufficientFunds:
		return http.StatusUnprocessableEntity, err.Error()
	case model.KindAuthorization:
		return http.StatusForbidden, model.ErrNotPermitted.Error()
	case model.KindBusy:
		return http.StatusServiceUnavailable, err.Error()
	case model.KindConsistency:
		return http.StatusInternalServerError, "internal ledger fault"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeLedgerError translates a service error into a response. Faults are logged here;
// expected rejections were already logged by the service.
func writeLedgerError(w http.ResponseWriter, log logrus.FieldLogger, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	if status == http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	writeError(w, status, message)
}

// actorFrom returns the authenticated actor or writes a 401
func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || actor.ID == "" {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return model.Actor{}, false
	}
	return actor, true
}

// uuidParam parses a UUID URL parameter or writes a 400
func uuidParam(w http.ResponseWriter, r *http.Request, name, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+what+" ID format")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into dst or writes a 400
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// customerScope resolves the customer_id query parameter, defaulting to the caller
func customerScope(w http.ResponseWriter, r *http.Request, actor model.Actor) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("customer_id")
	if raw == "" {
		raw = actor.ID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid customer ID format")
		return uuid.Nil, false
	}
	return id, true
}
