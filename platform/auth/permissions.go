package auth

import (
	"fmt"
	"net/http"

	"github.com/samber/lo"
)

func AdminOnly() func(http.Handler) http.Handler {
	return RoleOnly("ADMIN")
}

// RoleOnly restricts an endpoint to users whose role is in the given set.
// Admins pass every check.
func RoleOnly(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if user.Role != "ADMIN" && !lo.Contains(roles, user.Role) {
				http.Error(w, fmt.Sprintf("user %v with role %v cannot access this endpoint", user.Id, user.Role), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// JobTokenOnly guards machine-triggered endpoints (the daily stats seed) with
// a static bearer token instead of a user jwt.
func JobTokenOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "invalid or missing job token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
