package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrDbAccessFailed     = errors.New("db access failed")
	ErrLedgerUpdateFailed = errors.New("stats ledger update failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by email", "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetTeam(teamId uuid.UUID, db *gorm.DB) (Team, error) {
	var team Team

	result := db.First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return team, ErrTeamNotFound
		}
		slog.Error("sql error in get team", "team_id", teamId, "error", result.Error)
		return team, ErrDbAccessFailed
	}

	return team, nil
}

func GetQuestion(questionId uuid.UUID, db *gorm.DB, loadImages bool) (Question, error) {
	var question Question

	var result *gorm.DB = db
	if loadImages {
		result = result.Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_images.kind, question_images.position")
		})
	}
	result = result.First(&question, "id = ?", questionId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return question, ErrQuestionNotFound
		}
		slog.Error("sql error in get question", "question_id", questionId, "error", result.Error)
		return question, ErrDbAccessFailed
	}

	return question, nil
}

// GetCountedUsers returns all users whose role carries daily stats rows.
func GetCountedUsers(db *gorm.DB) ([]User, error) {
	var users []User
	result := db.Find(&users, "role IN ?", CountedRoles)
	if result.Error != nil {
		slog.Error("sql error in get counted users", "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	return users, nil
}
