package services

import (
	"errors"
	"fmt"
	"net/http"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/schema"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StatsService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	userAuth auth.IdentityProvider
}

func (s *StatsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/me/window", s.MyWindow)
		r.Get("/me/aggregate", s.MyAggregate)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/user/{user_id}/window", s.UserWindow)
		r.Get("/user/{user_id}/aggregate", s.UserAggregate)
		r.Get("/system/window", s.SystemWindow)
		r.Get("/system/aggregate", s.SystemAggregate)
	})

	return r
}

func windowParams(r *http.Request) (string, int, error) {
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = ledger.GranularityDay
	}

	n, err := utils.QueryParamInt(r, "n", 7)
	if err != nil {
		return "", 0, err
	}

	return granularity, n, nil
}

func (s *StatsService) writeWindow(w http.ResponseWriter, r *http.Request, userId *uuid.UUID, role string) {
	granularity, n, err := windowParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buckets, err := s.ledger.ReadWindow(s.db, userId, role, granularity, n)
	if err != nil {
		if errors.Is(err, schema.ErrDbAccessFailed) {
			http.Error(w, fmt.Sprintf("error reading stats: %v", err), http.StatusInternalServerError)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, buckets)
}

func (s *StatsService) writeAggregate(w http.ResponseWriter, r *http.Request, userId *uuid.UUID, role string) {
	from, err := utils.QueryParamTime(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := utils.QueryParamTime(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	counters, err := s.ledger.ReadAggregate(s.db, userId, role, from, to)
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading stats: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, counters)
}

// selfRole scopes self reads to the caller's own counted role, so a user who
// moved between SME and QC does not see the other role's history mixed in.
func selfRole(user schema.User) string {
	if user.IsCountedRole() {
		return user.Role
	}
	return ""
}

func (s *StatsService) MyWindow(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeWindow(w, r, &user.Id, selfRole(user))
}

func (s *StatsService) MyAggregate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeAggregate(w, r, &user.Id, selfRole(user))
}

func (s *StatsService) UserWindow(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeWindow(w, r, &userId, r.URL.Query().Get("role"))
}

func (s *StatsService) UserAggregate(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeAggregate(w, r, &userId, r.URL.Query().Get("role"))
}

func (s *StatsService) SystemWindow(w http.ResponseWriter, r *http.Request) {
	s.writeWindow(w, r, nil, r.URL.Query().Get("role"))
}

func (s *StatsService) SystemAggregate(w http.ResponseWriter, r *http.Request) {
	s.writeAggregate(w, r, nil, r.URL.Query().Get("role"))
}
