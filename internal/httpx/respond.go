package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"musicroom/internal/apperr"
)

// Fail answers with the status of a business failure, or logs the fault
// and answers 500 "database error" for anything else.
func Fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if ae, ok := apperr.As(err); ok {
		apperr.WriteError(w, apperr.Status(ae.Kind), ae.Reason)
		return
	}
	log.Error().
		Err(err).
		Str("op", op).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	apperr.WriteError(w, http.StatusInternalServerError, "database error")
}

// DecodeJSON reads the request body into dst. An empty body leaves dst
// untouched.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.NewValidation("invalid json")
	}
	return nil
}
