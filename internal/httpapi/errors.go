package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/audit"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/moderation"
	"mototumen.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody(r, msg))
}

func errorBody(r *http.Request, msg string) map[string]any {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	return payload
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError maps the domain error taxonomy onto statuses. current,
// when non-nil, is the reloaded snapshot returned alongside a persistence
// failure.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, current any) {
	body := errorBody(r, err.Error())
	var (
		authErr *authz.AuthorizationError
		valErr  *moderation.ValidationError
	)
	switch {
	case errors.As(err, &authErr):
		body["reason"] = authErr.Reason
		writeJSON(w, http.StatusForbidden, body)
	case errors.Is(err, authz.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, body)
	case errors.Is(err, moderation.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, authz.ErrNotFound):
		writeJSON(w, http.StatusNotFound, body)
	case errors.As(err, &valErr):
		body["problems"] = valErr.Problems
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, moderation.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, admin.ErrPersistence):
		obs.Logger().Warn("persistence failure",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		body["error"] = "storage unavailable, reload and retry"
		body["retryable"] = true
		if current != nil {
			body["current"] = current
		}
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		obs.Logger().Error("unhandled service error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody(r, "internal error"))
	}
}
