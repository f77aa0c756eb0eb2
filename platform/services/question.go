package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/pagination"
	"review_platform/platform/schema"
	"review_platform/platform/storage"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const presignExpiry = 15 * time.Minute

type QuestionService struct {
	db       *gorm.DB
	store    storage.ObjectStore
	ledger   *ledger.Ledger
	userAuth auth.IdentityProvider
}

func (s *QuestionService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.RoleOnly(schema.RoleSme))

		r.Post("/upload-images", s.UploadImages)
		r.Post("/submit", s.Submit)
		r.Post("/delete", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.RoleOnly(schema.RoleSme, schema.RoleQc))

		r.Get("/list", s.List)
		r.Get("/{question_id}", s.Info)
		r.Get("/{question_id}/images", s.Images)
	})

	return r
}

var validImageKinds = []string{schema.ImageKindQuestion, schema.ImageKindAnswer, schema.ImageKindChat}

type uploadImagesResponse struct {
	Keys []string `json:"keys"`
}

// UploadImages stores the image blobs and returns the generated object keys.
// Submission happens in a second call that references these keys, mirroring
// the two phase upload-then-create flow of the clients.
func (s *QuestionService) UploadImages(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	const maxUploadBytes = 64 << 20
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("error parsing multipart request: %v", err), http.StatusBadRequest)
		return
	}

	kind := r.FormValue("kind")
	if !lo.Contains(validImageKinds, kind) {
		http.Error(w, fmt.Sprintf("invalid image kind '%v', must be one of %v", kind, validImageKinds), http.StatusUnprocessableEntity)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		http.Error(w, "no images provided in request", http.StatusUnprocessableEntity)
		return
	}

	uploadedAt := time.Now()
	keys := make([]string, 0, len(files))
	for i, header := range files {
		file, err := header.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("error reading uploaded file: %v", err), http.StatusBadRequest)
			return
		}

		key := storage.ImageKey(user.Id, kind, uploadedAt, i)
		err = s.store.Put(r.Context(), key, file, header.Size, header.Header.Get("Content-Type"))
		file.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("error storing image: %v", err), http.StatusBadGateway)
			return
		}

		keys = append(keys, key)
	}

	utils.WriteJsonResponse(w, uploadImagesResponse{Keys: keys})
}

type questionPayload struct {
	Subject       string     `json:"subject"`
	DateOfSolving *time.Time `json:"date_of_solving"`

	QuestionKeys []string `json:"question_keys"`
	AnswerKeys   []string `json:"answer_keys"`
	ChatKeys     []string `json:"chat_keys"`
}

type submitRequest struct {
	Questions []questionPayload `json:"questions"`
}

type submitResponse struct {
	QuestionIds []uuid.UUID `json:"question_ids"`
}

func buildImageRows(questionId uuid.UUID, kind string, keys []string) []schema.QuestionImage {
	rows := make([]schema.QuestionImage, 0, len(keys))
	for i, key := range keys {
		rows = append(rows, schema.QuestionImage{
			Id: uuid.New(), QuestionId: questionId, Kind: kind, Key: key, Position: i,
		})
	}
	return rows
}

// Submit creates one question per payload and credits the submitter's daily
// counter with the number of questions created, all in one transaction. No
// rows are created if any payload fails validation.
func (s *QuestionService) Submit(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(submitMetric)
	defer timer.ObserveDuration()

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params submitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.Questions) == 0 {
		http.Error(w, "request must contain at least one question", http.StatusUnprocessableEntity)
		return
	}

	for i, q := range params.Questions {
		if q.Subject == "" {
			http.Error(w, fmt.Sprintf("question %v is missing a subject", i), http.StatusUnprocessableEntity)
			return
		}
		if len(q.QuestionKeys) == 0 {
			http.Error(w, fmt.Sprintf("question %v has no question images", i), http.StatusUnprocessableEntity)
			return
		}
	}

	slog.Info("submitting questions", "user_id", user.Id, "count", len(params.Questions))

	questionIds := make([]uuid.UUID, 0, len(params.Questions))

	err = s.db.Transaction(func(txn *gorm.DB) error {
		for _, q := range params.Questions {
			dateOfSolving := time.Now()
			if q.DateOfSolving != nil {
				dateOfSolving = *q.DateOfSolving
			}

			question := schema.Question{
				Id:            uuid.New(),
				Subject:       q.Subject,
				Status:        schema.StatusPending,
				SubmittedById: user.Id,
				DateOfSolving: dateOfSolving,
			}
			question.Images = append(question.Images, buildImageRows(question.Id, schema.ImageKindQuestion, q.QuestionKeys)...)
			question.Images = append(question.Images, buildImageRows(question.Id, schema.ImageKindAnswer, q.AnswerKeys)...)
			question.Images = append(question.Images, buildImageRows(question.Id, schema.ImageKindChat, q.ChatKeys)...)

			if result := txn.Create(&question); result.Error != nil {
				slog.Error("sql error creating question", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			questionIds = append(questionIds, question.Id)
		}

		delta := ledger.Delta{Submitted: len(params.Questions)}
		if err := s.ledger.Apply(txn, user.Id, schema.RoleSme, s.ledger.Today(), delta); err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting questions: %v", err), GetResponseCode(err))
		return
	}

	questionsCreatedMetric.Add(float64(len(questionIds)))

	slog.Info("submitted questions successfully", "user_id", user.Id, "count", len(questionIds))

	utils.WriteJsonResponse(w, submitResponse{QuestionIds: questionIds})
}

type deleteRequest struct {
	QuestionIds []uuid.UUID `json:"question_ids"`
}

type deleteResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// Delete removes the pending questions in the batch. Questions that have
// already been reviewed are silently skipped, the deletion filter only
// matches pending rows. Blobs are removed after the transaction commits, an
// orphaned blob is preferable to a question row pointing at a deleted image.
func (s *QuestionService) Delete(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(deleteMetric)
	defer timer.ObserveDuration()

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params deleteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.QuestionIds) == 0 {
		http.Error(w, "request must contain at least one question id", http.StatusUnprocessableEntity)
		return
	}

	var blobKeys []string
	deleted := 0

	err = s.db.Transaction(func(txn *gorm.DB) error {
		query := txn.Where("id IN ? AND status = ?", params.QuestionIds, schema.StatusPending)
		if user.Role != schema.RoleAdmin {
			query = query.Where("submitted_by_id = ?", user.Id)
		}

		var questions []schema.Question
		if result := query.Preload("Images").Find(&questions); result.Error != nil {
			slog.Error("sql error loading questions for deletion", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if len(questions) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(questions))
		perSubmitter := map[uuid.UUID]int{}
		for _, q := range questions {
			ids = append(ids, q.Id)
			perSubmitter[q.SubmittedById]++
			for _, img := range q.Images {
				blobKeys = append(blobKeys, img.Key)
			}
		}

		if result := txn.Where("question_id IN ?", ids).Delete(&schema.QuestionImage{}); result.Error != nil {
			slog.Error("sql error deleting question images", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Where("id IN ?", ids).Delete(&schema.Question{}); result.Error != nil {
			slog.Error("sql error deleting questions", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		today := s.ledger.Today()
		for submitterId, count := range perSubmitter {
			err := s.ledger.Apply(txn, submitterId, schema.RoleSme, today, ledger.Delta{Submitted: -count})
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		deleted = len(questions)
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting questions: %v", err), GetResponseCode(err))
		return
	}

	for _, key := range blobKeys {
		if err := s.store.Delete(context.Background(), key); err != nil {
			slog.Error("error deleting question image blob", "key", key, "error", err)
		}
	}

	slog.Info("deleted questions", "user_id", user.Id, "requested", len(params.QuestionIds), "deleted", deleted)

	utils.WriteJsonResponse(w, deleteResponse{DeletedCount: deleted})
}

type QuestionInfo struct {
	Id            uuid.UUID  `json:"id"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	SubmittedById uuid.UUID  `json:"submitted_by_id"`
	SubmittedBy   string     `json:"submitted_by"`
	ReviewedById  *uuid.UUID `json:"reviewed_by_id,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewComment string     `json:"review_comment,omitempty"`
	DateOfSolving time.Time  `json:"date_of_solving"`
	CreatedAt     time.Time  `json:"created_at"`
}

var questionSortFields = pagination.Whitelist{
	Fields: map[string]string{
		"subject":         "questions.subject",
		"status":          "questions.status",
		"date_of_solving": "questions.date_of_solving",
		"created_at":      "questions.created_at",
		"submitted_by":    "submitters.name",
	},
	DefaultOrder: "questions.created_at desc",
}

func (s *QuestionService) listQuery(r *http.Request, user schema.User) (*gorm.DB, error) {
	query := s.db.Model(&schema.Question{}).
		Select("questions.id, questions.subject, questions.status, questions.submitted_by_id, " +
			"submitters.name AS submitted_by, questions.reviewed_by_id, reviewers.name AS reviewed_by, " +
			"questions.review_comment, questions.date_of_solving, questions.created_at").
		Joins("LEFT JOIN users AS submitters ON submitters.id = questions.submitted_by_id").
		Joins("LEFT JOIN users AS reviewers ON reviewers.id = questions.reviewed_by_id")

	if user.Role == schema.RoleSme {
		query = query.Where("questions.submitted_by_id = ?", user.Id)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if status != schema.StatusPending && status != schema.StatusApproved && status != schema.StatusRejected {
			return nil, fmt.Errorf("invalid status filter '%v'", status)
		}
		query = query.Where("questions.status = ?", status)
	}

	submittedBy, err := utils.QueryParamUUID(r, "submitted_by")
	if err != nil {
		return nil, err
	}
	if submittedBy != nil {
		query = query.Where("questions.submitted_by_id = ?", *submittedBy)
	}

	reviewedBy, err := utils.QueryParamUUID(r, "reviewed_by")
	if err != nil {
		return nil, err
	}
	if reviewedBy != nil {
		query = query.Where("questions.reviewed_by_id = ?", *reviewedBy)
	}

	from, err := utils.QueryParamTime(r, "from")
	if err != nil {
		return nil, err
	}
	if from != nil {
		query = query.Where("questions.created_at >= ?", *from)
	}

	to, err := utils.QueryParamTime(r, "to")
	if err != nil {
		return nil, err
	}
	if to != nil {
		query = query.Where("questions.created_at < ?", *to)
	}

	if term := r.URL.Query().Get("search_term"); term != "" {
		pattern := "%" + term + "%"
		if user.Role == schema.RoleSme {
			query = query.Where(
				"LOWER(questions.subject) LIKE LOWER(?) OR LOWER(questions.review_comment) LIKE LOWER(?)",
				pattern, pattern,
			)
		} else {
			query = query.Where(
				"LOWER(questions.subject) LIKE LOWER(?) OR LOWER(questions.review_comment) LIKE LOWER(?) "+
					"OR LOWER(submitters.name) LIKE LOWER(?) OR LOWER(submitters.email) LIKE LOWER(?) "+
					"OR LOWER(reviewers.name) LIKE LOWER(?) OR LOWER(reviewers.email) LIKE LOWER(?)",
				pattern, pattern, pattern, pattern, pattern, pattern,
			)
		}
	}

	return query, nil
}

func (s *QuestionService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	params, err := pagination.ParseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query, err := s.listQuery(r, user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := pagination.Paginate[QuestionInfo](query, params, questionSortFields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing questions: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, page)
}

func (s *QuestionService) getVisibleQuestion(r *http.Request, loadImages bool) (schema.Question, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Question{}, CodedError(err, http.StatusInternalServerError)
	}

	questionId, err := utils.URLParamUUID(r, "question_id")
	if err != nil {
		return schema.Question{}, CodedError(err, http.StatusBadRequest)
	}

	question, err := schema.GetQuestion(questionId, s.db, loadImages)
	if err != nil {
		if errors.Is(err, schema.ErrQuestionNotFound) {
			return schema.Question{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Question{}, CodedError(err, http.StatusInternalServerError)
	}

	if user.Role == schema.RoleSme && question.SubmittedById != user.Id {
		return schema.Question{}, CodedError(fmt.Errorf("user %v cannot access question %v", user.Id, questionId), http.StatusForbidden)
	}

	return question, nil
}

func (s *QuestionService) Info(w http.ResponseWriter, r *http.Request) {
	question, err := s.getVisibleQuestion(r, false)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	info := QuestionInfo{
		Id:            question.Id,
		Subject:       question.Subject,
		Status:        question.Status,
		SubmittedById: question.SubmittedById,
		ReviewedById:  question.ReviewedById,
		ReviewComment: question.ReviewComment,
		DateOfSolving: question.DateOfSolving,
		CreatedAt:     question.CreatedAt,
	}

	utils.WriteJsonResponse(w, info)
}

type questionImageUrl struct {
	Kind     string `json:"kind"`
	Position int    `json:"position"`
	Url      string `json:"url"`
}

// Images returns short lived presigned urls for every image attached to the
// question, grouped by kind in upload order.
func (s *QuestionService) Images(w http.ResponseWriter, r *http.Request) {
	question, err := s.getVisibleQuestion(r, true)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	urls := make([]questionImageUrl, 0, len(question.Images))
	for _, img := range question.Images {
		url, err := s.store.PresignGet(r.Context(), img.Key, presignExpiry)
		if err != nil {
			http.Error(w, fmt.Sprintf("error creating image url: %v", err), http.StatusBadGateway)
			return
		}
		urls = append(urls, questionImageUrl{Kind: img.Kind, Position: img.Position, Url: url})
	}

	utils.WriteJsonResponse(w, urls)
}
