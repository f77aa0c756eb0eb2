package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"review_platform/platform/ledger"
	"review_platform/platform/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(name, email, password, role string) (loginInfo, error) {
	body := map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	}

	err := c.Post("/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) changeRole(userId, role string) error {
	return c.Post(fmt.Sprintf("/user/%v/role", userId)).Json(map[string]string{"role": role}).Do(nil)
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) listUsers(query string) (page[services.UserListEntry], error) {
	var res page[services.UserListEntry]
	err := c.Get("/user/list" + query).Do(&res)
	return res, err
}

type page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
}

func (c *client) createTeam(name string) (string, error) {
	var res map[string]string
	err := c.Post("/team/create").Json(map[string]string{"name": name}).Do(&res)
	return res["team_id"], err
}

func (c *client) renameTeam(teamId, name string) error {
	return c.Post(fmt.Sprintf("/team/%v/rename", teamId)).Json(map[string]string{"name": name}).Do(nil)
}

func (c *client) deleteTeam(teamId string) error {
	return c.Delete(fmt.Sprintf("/team/%v", teamId)).Do(nil)
}

func (c *client) listTeams(query string) (page[services.TeamListEntry], error) {
	var res page[services.TeamListEntry]
	err := c.Get("/team/list" + query).Do(&res)
	return res, err
}

func (c *client) teamMembers(teamId string) ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get(fmt.Sprintf("/team/%v/members", teamId)).Do(&res)
	return res, err
}

func (c *client) uploadImages(kind string, images map[string][]byte) ([]string, error) {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)

	if err := form.WriteField("kind", kind); err != nil {
		return nil, err
	}
	for name, data := range images {
		part, err := form.CreateFormFile("images", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	var res map[string][]string
	err := c.Post("/question/upload-images").
		Header("Content-Type", form.FormDataContentType()).
		Body(body).
		Do(&res)
	return res["keys"], err
}

type questionPayload struct {
	Subject      string   `json:"subject"`
	QuestionKeys []string `json:"question_keys"`
	AnswerKeys   []string `json:"answer_keys,omitempty"`
	ChatKeys     []string `json:"chat_keys,omitempty"`
}

func (c *client) submitQuestions(questions ...questionPayload) ([]string, error) {
	var res map[string][]string
	err := c.Post("/question/submit").Json(map[string]interface{}{"questions": questions}).Do(&res)
	return res["question_ids"], err
}

func (c *client) deleteQuestions(questionIds ...string) (int, error) {
	var res map[string]int
	err := c.Post("/question/delete").Json(map[string]interface{}{"question_ids": questionIds}).Do(&res)
	return res["deleted_count"], err
}

func (c *client) listQuestions(query string) (page[services.QuestionInfo], error) {
	var res page[services.QuestionInfo]
	err := c.Get("/question/list" + query).Do(&res)
	return res, err
}

func (c *client) questionInfo(questionId string) (services.QuestionInfo, error) {
	var res services.QuestionInfo
	err := c.Get(fmt.Sprintf("/question/%v", questionId)).Do(&res)
	return res, err
}

func (c *client) questionImages(questionId string) ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.Get(fmt.Sprintf("/question/%v/images", questionId)).Do(&res)
	return res, err
}

type reviewResult struct {
	ReviewedCount int `json:"reviewed_count"`
	NewlyReviewed int `json:"newly_reviewed"`
	Rereviewed    int `json:"rereviewed"`
}

func (c *client) reviewBatch(status, comment string, questionIds ...string) (reviewResult, error) {
	body := map[string]interface{}{
		"question_ids": questionIds, "status": status, "comment": comment,
	}
	var res reviewResult
	err := c.Post("/review/batch").Json(body).Do(&res)
	return res, err
}

func (c *client) myWindow(query string) ([]ledger.Bucket, error) {
	var res []ledger.Bucket
	err := c.Get("/stats/me/window" + query).Do(&res)
	return res, err
}

func (c *client) myAggregate(query string) (ledger.Counters, error) {
	var res ledger.Counters
	err := c.Get("/stats/me/aggregate" + query).Do(&res)
	return res, err
}

func (c *client) userWindow(userId, query string) ([]ledger.Bucket, error) {
	var res []ledger.Bucket
	err := c.Get(fmt.Sprintf("/stats/user/%v/window%v", userId, query)).Do(&res)
	return res, err
}

func (c *client) systemAggregate(query string) (ledger.Counters, error) {
	var res ledger.Counters
	err := c.Get("/stats/system/aggregate" + query).Do(&res)
	return res, err
}

func (c *client) runDailySeed(jobToken string) (int, error) {
	var res map[string]int
	r := newHttpTestRequest(c.api, "POST", "/jobs/daily-stats").Auth(jobToken)
	err := r.Do(&res)
	return res["seeded_users"], err
}
