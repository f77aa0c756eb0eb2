package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/pagination"
	"review_platform/platform/schema"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Get("/login", s.LoginWithEmail)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/create", s.CreateUser)
		r.Post("/{user_id}", s.UpdateUser)
		r.Post("/{user_id}/role", s.ChangeRole)
		r.Delete("/{user_id}", s.DeleteUser)
	})

	return r
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	res := loginResponse{UserId: login.UserId, Role: login.Role, AccessToken: login.AccessToken}
	utils.WriteJsonResponse(w, res)
}

type UserInfo struct {
	Id        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	TeamId    *uuid.UUID `json:"team_id,omitempty"`
	TeamName  string     `json:"team_name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	info := UserInfo{
		Id:        user.Id,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		TeamId:    user.TeamId,
		CreatedAt: user.CreatedAt,
	}
	if user.Team != nil {
		info.TeamName = user.Team.Name
	}
	return info
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var userWithTeam schema.User
	result := s.db.Preload("Team").First(&userWithTeam, "id = ?", user.Id)
	if result.Error != nil {
		slog.Error("sql error loading user info", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting user info: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(&userWithTeam))
}

var userSortFields = pagination.Whitelist{
	Fields: map[string]string{
		"name":       "users.name",
		"email":      "users.email",
		"role":       "users.role",
		"created_at": "users.created_at",
	},
	DefaultOrder: "users.name asc",
}

type UserListEntry struct {
	Id        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	TeamId    *uuid.UUID `json:"team_id,omitempty"`
	TeamName  string     `json:"team_name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.ParseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Model(&schema.User{}).
		Select("users.id, users.name, users.email, users.role, users.team_id, teams.name AS team_name, users.created_at").
		Joins("LEFT JOIN teams ON teams.id = users.team_id")

	if role := r.URL.Query().Get("role"); role != "" {
		query = query.Where("users.role = ?", role)
	}

	teamId, err := utils.QueryParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if teamId != nil {
		query = query.Where("users.team_id = ?", *teamId)
	}

	if params.SearchTerm != "" {
		pattern := "%" + params.SearchTerm + "%"
		query = query.Where("LOWER(users.name) LIKE LOWER(?) OR LOWER(users.email) LIKE LOWER(?)", pattern, pattern)
	}

	page, err := pagination.Paginate[UserListEntry](query, params, userSortFields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing users: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, page)
}

var validRoles = []string{schema.RoleNone, schema.RoleSme, schema.RoleQc, schema.RoleAdmin}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Role == "" {
		params.Role = schema.RoleNone
	}
	if !lo.Contains(validRoles, params.Role) {
		http.Error(w, fmt.Sprintf("invalid role '%v', must be one of %v", params.Role, validRoles), http.StatusUnprocessableEntity)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Name, params.Email, params.Password, params.Role)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("error creating user: %v", err), responseCode)
		return
	}

	if params.Role == schema.RoleSme || params.Role == schema.RoleQc {
		if err := s.ledger.Seed(s.db, userId, params.Role, s.ledger.Today()); err != nil {
			http.Error(w, fmt.Sprintf("error seeding stats for new user: %v", err), http.StatusInternalServerError)
			return
		}
	}

	utils.WriteJsonResponse(w, createUserResponse{UserId: userId})
}

type updateUserRequest struct {
	Name   *string    `json:"name"`
	TeamId *uuid.UUID `json:"team_id"`
}

func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != nil {
			user.Name = *params.Name
		}
		if params.TeamId != nil {
			if err := checkTeamExists(txn, *params.TeamId); err != nil {
				return err
			}
			user.TeamId = params.TeamId
		}

		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole updates a user's role. Moving a user into a counted role seeds
// today's zero stats row so the user shows up in dashboards immediately.
func (s *UserService) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params changeRoleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !lo.Contains(validRoles, params.Role) {
		http.Error(w, fmt.Sprintf("invalid role '%v', must be one of %v", params.Role, validRoles), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.Role == schema.RoleAdmin && params.Role != schema.RoleAdmin {
			var count int64
			result := txn.Model(&schema.User{}).Where("role = ?", schema.RoleAdmin).Count(&count)
			if result.Error != nil {
				slog.Error("sql error counting existing admins", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if count < 2 {
				return CodedError(fmt.Errorf("cannot demote admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
			}
		}

		user.Role = params.Role
		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user role", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.Role == schema.RoleSme || params.Role == schema.RoleQc {
			if err := s.ledger.Seed(txn, userId, params.Role, s.ledger.Today()); err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error changing user role: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		var count int64
		result := txn.Model(&schema.Question{}).Where("submitted_by_id = ?", userId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting user questions", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("cannot delete user %v with %v submitted questions", userId, count), http.StatusConflict)
		}

		result = txn.Model(&schema.Question{}).Where("reviewed_by_id = ?", userId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting user reviews", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("cannot delete user %v with %v reviewed questions", userId, count), http.StatusConflict)
		}

		if result := txn.Where("user_id = ?", userId).Delete(&schema.UserDailyStats{}); result.Error != nil {
			slog.Error("sql error deleting user stats rows", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.User{Id: userId}); result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
