package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/fishmart/internal/apperr"
	"go.uber.org/zap"
)

type envelope map[string]any

var errBadBody = apperr.Invalid("Invalid request body")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if kind == apperr.Internal {
		s.log.Error(fallback,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	respondJSON(w, status, envelope{"message": apperr.Message(err, fallback)})
}

// authError renders failures from the bearer middleware.
func (s *Server) authError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, "Internal server error")
}

func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Invalid("Request body is required")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperr.Invalid("Invalid value for " + typeErr.Field)
	default:
		return errBadBody
	}
}

// idParam parses the {id} path segment. what names the resource in the
// error message.
func idParam(r *http.Request, what string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("Invalid " + what + " ID")
	}
	return id, nil
}
