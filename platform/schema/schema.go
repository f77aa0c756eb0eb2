package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleNone  = "NONE"
	RoleSme   = "SME"
	RoleQc    = "QC"
	RoleAdmin = "ADMIN"
)

const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

const (
	ImageKindQuestion = "question"
	ImageKindAnswer   = "answer"
	ImageKindChat     = "chat"
)

// CountedRoles are the roles that carry daily stats rows.
var CountedRoles = []string{RoleSme, RoleQc}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name     string `gorm:"size:100;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role string `gorm:"size:20;not null;default:'NONE'"`

	TeamId *uuid.UUID `gorm:"type:uuid"`
	Team   *Team      `gorm:"constraint:OnDelete:SET NULL"`

	CreatedAt time.Time
}

func (u *User) IsCountedRole() bool {
	return u.Role == RoleSme || u.Role == RoleQc
}

type Team struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`

	Members []User
}

type Question struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Subject string `gorm:"size:100;not null"`
	Status  string `gorm:"size:20;not null;default:'PENDING'"`

	Images []QuestionImage `gorm:"constraint:OnDelete:CASCADE"`

	SubmittedById uuid.UUID `gorm:"type:uuid;not null;index"`
	SubmittedBy   *User     `gorm:"foreignKey:SubmittedById"`

	ReviewedById *uuid.UUID `gorm:"type:uuid"`
	ReviewedBy   *User      `gorm:"foreignKey:ReviewedById"`

	ReviewComment string

	DateOfSolving time.Time `gorm:"not null"`
	CreatedAt     time.Time
}

type QuestionImage struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	QuestionId uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind string `gorm:"size:20;not null"`
	Key  string `gorm:"size:500;not null"`

	Position int `gorm:"not null"`
}

// UserDailyStats rows are keyed by (date, user, role) where date is the start
// of the business day. Counters only ever change through atomic upserts in the
// ledger package, or zero-row seeds.
type UserDailyStats struct {
	Date   time.Time `gorm:"primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role   string    `gorm:"size:20;primaryKey"`

	QuestionsSubmitted int `gorm:"not null;default:0"`
	QuestionsApproved  int `gorm:"not null;default:0"`
	QuestionsRejected  int `gorm:"not null;default:0"`
	QuestionsReviewed  int `gorm:"not null;default:0"`

	User *User `gorm:"constraint:OnDelete:CASCADE"`
}
