package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"app/internal/apperr"

	"github.com/rs/zerolog"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err through the API error taxonomy, logging anything
// that surfaces as internal so the detail is not lost.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Code == apperr.CodeInternal {
		logger.Error().Err(err).Msg("Unhandled error at API boundary")
	}
	apperr.Write(w, appErr)
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.BadRequest("Invalid request payload")
	}
	return nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("value must be positive")
	}
	return n, nil
}
