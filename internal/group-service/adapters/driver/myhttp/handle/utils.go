package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/membership"
)

// jsonResponse writes the given data as a JSON-encoded HTTP response.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// JsonError writes an error response as JSON with the specified HTTP status code.
func JsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps domain errors onto HTTP status codes. Unknown errors are
// internal and their text is not exposed.
func statusFor(err error) (int, error) {
	switch {
	case errors.Is(err, membership.ErrNotHost),
		errors.Is(err, membership.ErrSelfApproval),
		errors.Is(err, membership.ErrNotApproved),
		errors.Is(err, membership.ErrRejected),
		errors.Is(err, myerrors.ErrNotInGroup):
		return http.StatusForbidden, err
	case errors.Is(err, membership.ErrNotPending),
		errors.Is(err, membership.ErrHostImmutable):
		return http.StatusConflict, err
	case errors.Is(err, membership.ErrInvalidStatus):
		return http.StatusBadRequest, err
	case errors.Is(err, myerrors.ErrMemberNotFound),
		errors.Is(err, myerrors.ErrGroupNotFound):
		return http.StatusNotFound, err
	case errors.Is(err, myerrors.ErrInvalidToken):
		return http.StatusUnauthorized, err
	default:
		return http.StatusInternalServerError, myerrors.ErrDBConnClosedMsg
	}
}
