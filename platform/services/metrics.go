package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submitMetric    = promauto.NewSummary(prometheus.SummaryOpts{Name: "question_submit", Help: "Question Submissions"})
	deleteMetric    = promauto.NewSummary(prometheus.SummaryOpts{Name: "question_delete", Help: "Question Deletions"})
	reviewMetric    = promauto.NewSummary(prometheus.SummaryOpts{Name: "question_review", Help: "Question Review Batches"})
	dailySeedMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "daily_stats_seed", Help: "Daily Stats Seed Runs"})

	questionsCreatedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questions_created_total",
		Help: "Total questions created across all submissions",
	})
	questionsReviewedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questions_reviewed_total",
		Help: "Total questions moved out of pending by reviews",
	})
)
