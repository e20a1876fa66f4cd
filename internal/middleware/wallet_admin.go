package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zenux/internal/models"
)

type WalletRoleStore interface {
	MemberRole(ctx context.Context, walletID, userID string) (string, error)
}

// RequireWalletAdmin gates membership and lifecycle changes on the wallet's
// admin role. It expects the route to carry an {id} wallet parameter.
func RequireWalletAdmin(roles WalletRoleStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			walletID := chi.URLParam(r, "id")
			if walletID == "" {
				http.Error(w, "wallet id required", http.StatusBadRequest)
				return
			}
			role, err := roles.MemberRole(r.Context(), walletID, userID)
			if err != nil || role != models.RoleAdmin {
				http.Error(w, "wallet admin required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
