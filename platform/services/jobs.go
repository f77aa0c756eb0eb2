package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/storage"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// JobService exposes the machine-triggered maintenance endpoints. They are
// guarded by a static job token so an external scheduler can call them
// without a user session.
type JobService struct {
	db       *gorm.DB
	store    storage.ObjectStore
	ledger   *ledger.Ledger
	jobToken string
	userAuth auth.IdentityProvider
}

func (s *JobService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.JobTokenOnly(s.jobToken))

		r.Post("/daily-stats", s.DailyStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/storage-usage", s.StorageUsage)
	})

	return r
}

type dailyStatsResponse struct {
	SeededUsers int `json:"seeded_users"`
}

func (s *JobService) DailyStats(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(dailySeedMetric)
	defer timer.ObserveDuration()

	seeded, err := s.ledger.SeedAllCountedUsers(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error seeding daily stats: %v", err), http.StatusInternalServerError)
		return
	}

	slog.Info("daily stats seed complete", "seeded_users", seeded)

	utils.WriteJsonResponse(w, dailyStatsResponse{SeededUsers: seeded})
}

func (s *JobService) StorageUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Usage()
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting storage usage: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, stats)
}
