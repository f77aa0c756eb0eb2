package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/schema"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type ReviewService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	userAuth auth.IdentityProvider

	// When set, re-reviewing a decided question whose outcome flips moves the
	// submitter's count between the approved/rejected buckets for the current
	// day. Off by default: a re-review then only overwrites the status and
	// comment, reviewer counters are never re-credited either way.
	recountOnRereview bool
}

func (s *ReviewService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.RoleOnly(schema.RoleQc))

		r.Post("/batch", s.ReviewBatch)
	})

	return r
}

type reviewBatchRequest struct {
	QuestionIds []uuid.UUID `json:"question_ids"`
	Status      string      `json:"status"`
	Comment     string      `json:"comment"`
}

type reviewBatchResponse struct {
	ReviewedCount int `json:"reviewed_count"`
	NewlyReviewed int `json:"newly_reviewed"`
	Rereviewed    int `json:"rereviewed"`
}

func outcomeDelta(status string, count int) ledger.Delta {
	if status == schema.StatusApproved {
		return ledger.Delta{Approved: count}
	}
	return ledger.Delta{Rejected: count}
}

// ReviewBatch applies one outcome and comment to every question in the batch.
// Only questions still pending move counters: the reviewer is credited with
// the number of newly reviewed questions, and each submitter is credited one
// outcome count per question, all on the current business day. Questions that
// were already decided just get their status and comment overwritten.
func (s *ReviewService) ReviewBatch(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(reviewMetric)
	defer timer.ObserveDuration()

	reviewer, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params reviewBatchRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.QuestionIds) == 0 {
		http.Error(w, "request must contain at least one question id", http.StatusUnprocessableEntity)
		return
	}

	if params.Status != schema.StatusApproved && params.Status != schema.StatusRejected {
		http.Error(w, fmt.Sprintf("invalid review status '%v', must be '%v' or '%v'", params.Status, schema.StatusApproved, schema.StatusRejected), http.StatusUnprocessableEntity)
		return
	}

	if strings.TrimSpace(params.Comment) == "" {
		http.Error(w, "a review comment is required", http.StatusUnprocessableEntity)
		return
	}

	var res reviewBatchResponse

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var questions []schema.Question
		result := txn.Where("id IN ?", params.QuestionIds).Find(&questions)
		if result.Error != nil {
			slog.Error("sql error loading questions for review", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if len(questions) != len(params.QuestionIds) {
			return CodedError(fmt.Errorf("%v of the questions in the batch do not exist", len(params.QuestionIds)-len(questions)), http.StatusNotFound)
		}

		newlyPerSubmitter := map[uuid.UUID]int{}
		flippedPerSubmitter := map[uuid.UUID]int{}
		newlyReviewed := 0

		for _, q := range questions {
			switch {
			case q.Status == schema.StatusPending:
				newlyReviewed++
				newlyPerSubmitter[q.SubmittedById]++
			case q.Status != params.Status:
				flippedPerSubmitter[q.SubmittedById]++
			}
		}

		updates := map[string]interface{}{
			"status":         params.Status,
			"review_comment": params.Comment,
			"reviewed_by_id": reviewer.Id,
		}
		result = txn.Model(&schema.Question{}).Where("id IN ?", params.QuestionIds).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating question review status", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		today := s.ledger.Today()

		if newlyReviewed > 0 {
			reviewerDelta := outcomeDelta(params.Status, newlyReviewed)
			reviewerDelta.Reviewed = newlyReviewed
			if err := s.ledger.Apply(txn, reviewer.Id, schema.RoleQc, today, reviewerDelta); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}

			for submitterId, count := range newlyPerSubmitter {
				err := s.ledger.Apply(txn, submitterId, schema.RoleSme, today, outcomeDelta(params.Status, count))
				if err != nil {
					return CodedError(err, http.StatusInternalServerError)
				}
			}
		}

		if s.recountOnRereview {
			for submitterId, count := range flippedPerSubmitter {
				delta := ledger.Delta{Approved: count, Rejected: -count}
				if params.Status == schema.StatusRejected {
					delta = ledger.Delta{Approved: -count, Rejected: count}
				}
				if err := s.ledger.Apply(txn, submitterId, schema.RoleSme, today, delta); err != nil {
					return CodedError(err, http.StatusInternalServerError)
				}
			}
		}

		rereviewed := len(questions) - newlyReviewed
		res = reviewBatchResponse{ReviewedCount: len(questions), NewlyReviewed: newlyReviewed, Rereviewed: rereviewed}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error reviewing questions: %v", err), GetResponseCode(err))
		return
	}

	questionsReviewedMetric.Add(float64(res.NewlyReviewed))

	slog.Info("reviewed questions", "reviewer_id", reviewer.Id, "status", params.Status,
		"count", res.ReviewedCount, "newly_reviewed", res.NewlyReviewed)

	utils.WriteJsonResponse(w, res)
}
