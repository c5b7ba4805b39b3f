package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/credential-store/api"
	"github.com/ruteri/credential-store/interfaces"
)

// AdminAuth only lets requests through whose basic auth credentials belong to
// an administrator.
func AdminAuth(store interfaces.CredentialStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="credstore"`)
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "authentication required"})
				return
			}

			valid, err := store.Verify(r.Context(), username, password)
			if err != nil && !errors.Is(err, interfaces.ErrUserNotFound) && !errors.Is(err, interfaces.ErrInvalidUsername) {
				log.Error("Admin verification failed", "err", err, slog.String("username", username))
				writeJSON(w, statusFor(err), api.ErrorResponse{Error: "could not verify credentials"})
				return
			}
			if !valid {
				log.Warn("Rejected admin credentials", slog.String("username", username))
				w.Header().Set("WWW-Authenticate", `Basic realm="credstore"`)
				writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "invalid credentials"})
				return
			}

			admin, err := store.IsAdmin(r.Context(), username)
			if err != nil {
				writeJSON(w, statusFor(err), api.ErrorResponse{Error: "could not verify credentials"})
				return
			}
			if !admin {
				writeJSON(w, http.StatusForbidden, api.ErrorResponse{Error: "administrator required"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
