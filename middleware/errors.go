package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// ErrorBody is the JSON shape of every rejection.
type ErrorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
}

// Reason maps an authentication error to the public reason string. Malformed tokens,
// bad signatures and anything unrecognised all report "invalid".
func Reason(err error) string {
	switch authcore.KindOf(err) {
	case authcore.KindExpired:
		return "expired"
	case authcore.KindRevoked:
		return "revoked"
	case authcore.KindAccountDisabled:
		return "account_disabled"
	default:
		return "invalid"
	}
}

// Status maps err to the HTTP status the guards answer with.
func Status(err error) int {
	switch authcore.KindOf(err) {
	case authcore.KindForbidden:
		return http.StatusForbidden
	case authcore.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case authcore.KindLoginRateLimited:
		return http.StatusTooManyRequests
	default:
		if errors.Is(err, authcore.ErrEngineNotReady) {
			return http.StatusServiceUnavailable
		}
		return http.StatusUnauthorized
	}
}

// WriteAuthError writes the JSON rejection for err.
func WriteAuthError(w http.ResponseWriter, err error) {
	status := Status(err)

	var body ErrorBody
	switch status {
	case http.StatusForbidden:
		body = ErrorBody{ErrorCode: "forbidden", Message: "insufficient role"}
	case http.StatusServiceUnavailable:
		body = ErrorBody{ErrorCode: "service_unavailable", Message: "authentication backend unavailable"}
	case http.StatusTooManyRequests:
		body = ErrorBody{ErrorCode: "rate_limited", Message: "too many login attempts"}
	default:
		body = ErrorBody{ErrorCode: "unauthorized", Message: "authentication required", Reason: Reason(err)}
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
