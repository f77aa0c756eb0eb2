package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/storage"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type ReviewPlatform struct {
	user     UserService
	team     TeamService
	question QuestionService
	review   ReviewService
	stats    StatsService
	jobs     JobService

	db     *gorm.DB
	ledger *ledger.Ledger
	stop   chan bool
}

type Options struct {
	JobToken          string
	RecountOnRereview bool
}

func NewReviewPlatform(
	db *gorm.DB, store storage.ObjectStore, lgr *ledger.Ledger, userAuth auth.IdentityProvider, opts Options,
) ReviewPlatform {
	return ReviewPlatform{
		user: UserService{db: db, ledger: lgr, userAuth: userAuth},
		team: TeamService{db: db, userAuth: userAuth},
		question: QuestionService{
			db:       db,
			store:    store,
			ledger:   lgr,
			userAuth: userAuth,
		},
		review: ReviewService{
			db:                db,
			ledger:            lgr,
			userAuth:          userAuth,
			recountOnRereview: opts.RecountOnRereview,
		},
		stats: StatsService{db: db, ledger: lgr, userAuth: userAuth},
		jobs: JobService{
			db:       db,
			store:    store,
			ledger:   lgr,
			jobToken: opts.JobToken,
			userAuth: userAuth,
		},
		db:     db,
		ledger: lgr,
		stop:   make(chan bool, 1),
	}
}

func (p *ReviewPlatform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/team", p.team.Routes())
	r.Mount("/question", p.question.Routes())
	r.Mount("/review", p.review.Routes())
	r.Mount("/stats", p.stats.Routes())
	r.Mount("/jobs", p.jobs.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// DailySeedLoop re-runs the idempotent stats seed on an interval so each new
// business day gets its zero rows even if the external scheduler misses a
// call to the jobs endpoint.
func (p *ReviewPlatform) DailySeedLoop(interval time.Duration) {
	slog.Info("daily seed loop: starting", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.ledger.SeedAllCountedUsers(p.db); err != nil {
				slog.Error("daily seed loop: seed failed", "error", err)
			}
		case <-p.stop:
			slog.Info("daily seed loop: process stopped")
			return
		}
	}
}

func (p *ReviewPlatform) StopDailySeedLoop() {
	close(p.stop)
}
