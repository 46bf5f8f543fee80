package api

import (
	"net/http"

	"github.com/MrEthical07/authcore/middleware"
)

// Error codes used outside the authentication guard.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeForbidden          = "forbidden"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAccountDisabled    = "account_disabled"
	ErrCodePasswordPolicy     = "password_policy"
	ErrCodeUnavailable        = "store_unavailable"
	ErrCodeInternal           = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	middleware.WriteJSON(w, status, v)
}

// writeError writes the same {error_code, message} body the guards use.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, middleware.ErrorBody{ErrorCode: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
