package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"group-ride/internal/group-service/adapters/driver/myhttp/handle"
	"group-ride/internal/group-service/core/myerrors"
	"group-ride/internal/group-service/core/ports"
)

type AuthMiddleware struct {
	auth ports.IAuthService
}

func NewAuthMiddleware(auth ports.IAuthService) *AuthMiddleware {
	return &AuthMiddleware{
		auth: auth,
	}
}

func (am *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Empty JWT-Token"))
			return
		}

		userID, err := am.auth.ValidateToken(tokenString)
		if err != nil {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid JWT-Token"))
			return
		}

		r.Header.Set(handle.UserIDHeader, userID)

		next.ServeHTTP(w, r)
	})
}

// WrapAdmin lets through ADMIN tokens only.
func (am *AuthMiddleware) WrapAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Empty JWT-Token"))
			return
		}

		userID, err := am.auth.ValidateAdmin(tokenString)
		if errors.Is(err, myerrors.ErrNotAdmin) {
			handle.JsonError(w, http.StatusForbidden, err)
			return
		}
		if err != nil {
			handle.JsonError(w, http.StatusUnauthorized, fmt.Errorf("Invalid JWT-Token"))
			return
		}

		r.Header.Set(handle.UserIDHeader, userID)

		next.ServeHTTP(w, r)
	})
}
