package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"review_platform/platform/auth"
	"review_platform/platform/pagination"
	"review_platform/platform/schema"
	"review_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TeamService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *TeamService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/create", s.CreateTeam)
		r.Post("/{team_id}/rename", s.RenameTeam)
		r.Get("/{team_id}/members", s.Members)
		r.Delete("/{team_id}", s.DeleteTeam)
	})

	return r
}

var teamSortFields = pagination.Whitelist{
	Fields: map[string]string{
		"name":         "teams.name",
		"member_count": "member_count",
	},
	DefaultOrder: "teams.name asc",
}

type TeamListEntry struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"member_count"`
}

func (s *TeamService) List(w http.ResponseWriter, r *http.Request) {
	params, err := pagination.ParseParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Model(&schema.Team{}).
		Select("teams.id, teams.name, COUNT(users.id) AS member_count").
		Joins("LEFT JOIN users ON users.team_id = teams.id").
		Group("teams.id, teams.name")

	if params.SearchTerm != "" {
		query = query.Where("LOWER(teams.name) LIKE LOWER(?)", "%"+params.SearchTerm+"%")
	}

	page, err := pagination.Paginate[TeamListEntry](query, params, teamSortFields)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing teams: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, page)
}

type teamRequest struct {
	Name string `json:"name"`
}

type createTeamResponse struct {
	TeamId uuid.UUID `json:"team_id"`
}

func (s *TeamService) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var params teamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "team name cannot be empty", http.StatusUnprocessableEntity)
		return
	}

	team := schema.Team{Id: uuid.New(), Name: params.Name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Team
		result := txn.Limit(1).Find(&existing, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for existing team", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a team with name %v already exists", params.Name), http.StatusConflict)
		}

		if result := txn.Create(&team); result.Error != nil {
			slog.Error("sql error creating team", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating team: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createTeamResponse{TeamId: team.Id})
}

func (s *TeamService) RenameTeam(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params teamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "team name cannot be empty", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		team, err := schema.GetTeam(teamId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrTeamNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		team.Name = params.Name
		if result := txn.Save(&team); result.Error != nil {
			slog.Error("sql error renaming team", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error renaming team: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *TeamService) Members(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkTeamExists(s.db, teamId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var members []schema.User
	result := s.db.Order("name").Find(&members, "team_id = ?", teamId)
	if result.Error != nil {
		slog.Error("sql error listing team members", "team_id", teamId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing team members: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(members))
	for _, member := range members {
		infos = append(infos, convertToUserInfo(&member))
	}

	utils.WriteJsonResponse(w, infos)
}

// DeleteTeam removes the team and detaches its members. The detach is explicit
// rather than relying on the SET NULL constraint so it also holds on databases
// without foreign key enforcement.
func (s *TeamService) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkTeamExists(txn, teamId); err != nil {
			return err
		}

		result := txn.Model(&schema.User{}).Where("team_id = ?", teamId).Update("team_id", nil)
		if result.Error != nil {
			slog.Error("sql error detaching team members", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Team{Id: teamId}); result.Error != nil {
			slog.Error("sql error deleting team", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting team %v: %v", teamId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
