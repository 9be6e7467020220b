package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"minesweeperAPI/internal/user"
	"minesweeperAPI/services"
)

const maxBodyBytes = 1 << 20

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithMessage(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, user.MessageResponse{Message: message})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

var errorStatus = []struct {
	err    error
	status int
}{
	{services.ErrInvalidSubmission, http.StatusBadRequest},
	{services.ErrDuplicateIdentity, http.StatusBadRequest},
	{services.ErrAlreadyVerified, http.StatusBadRequest},
	{services.ErrInvalidCode, http.StatusBadRequest},
	{services.ErrInsufficientFunds, http.StatusBadRequest},
	{services.ErrAlreadyOwned, http.StatusBadRequest},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
	{services.ErrUnauthenticated, http.StatusUnauthorized},
	{services.ErrTwoFactorRequired, http.StatusUnauthorized},
	{services.ErrNotVerified, http.StatusForbidden},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrNotificationFailure, http.StatusInternalServerError},
}

// statusFor maps a service error to its HTTP status and client message.
// Unknown errors are internal and their text is not exposed.
func statusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.err == services.ErrInvalidSubmission {
				return e.status, err.Error()
			}
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	respondWithError(w, status, message)
}
