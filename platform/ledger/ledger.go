// Package ledger owns the per-user daily counters. All mutations go through
// atomic increment upserts keyed by (date, user, role), so concurrent writers
// never lose updates, and every caller derives the business day through the
// same DayStart rule.
package ledger

import (
	"log/slog"
	"time"

	"review_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Ledger struct {
	location *time.Location
}

func New(location *time.Location) *Ledger {
	if location == nil {
		location = time.UTC
	}
	return &Ledger{location: location}
}

func (l *Ledger) Location() *time.Location {
	return l.location
}

// DayStart is the single canonical day boundary: midnight of the configured
// location. Submission, review, deletion, reads, and the daily seed all use
// this function, never their own rounding.
func (l *Ledger) DayStart(t time.Time) time.Time {
	t = t.In(l.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.location)
}

func (l *Ledger) Today() time.Time {
	return l.DayStart(time.Now())
}

// Delta is the set of counter adjustments applied in one upsert. Negative
// values decrement.
type Delta struct {
	Submitted int
	Approved  int
	Rejected  int
	Reviewed  int
}

func (d Delta) IsZero() bool {
	return d.Submitted == 0 && d.Approved == 0 && d.Rejected == 0 && d.Reviewed == 0
}

// Apply upserts the (day, user, role) row, creating it with the delta as the
// initial counters, or atomically adding the delta to the existing counters.
func (l *Ledger) Apply(txn *gorm.DB, userId uuid.UUID, role string, day time.Time, delta Delta) error {
	if delta.IsZero() {
		return nil
	}

	row := schema.UserDailyStats{
		Date:               day,
		UserId:             userId,
		Role:               role,
		QuestionsSubmitted: delta.Submitted,
		QuestionsApproved:  delta.Approved,
		QuestionsRejected:  delta.Rejected,
		QuestionsReviewed:  delta.Reviewed,
	}

	err := txn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "user_id"}, {Name: "role"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"questions_submitted": gorm.Expr("user_daily_stats.questions_submitted + ?", delta.Submitted),
			"questions_approved":  gorm.Expr("user_daily_stats.questions_approved + ?", delta.Approved),
			"questions_rejected":  gorm.Expr("user_daily_stats.questions_rejected + ?", delta.Rejected),
			"questions_reviewed":  gorm.Expr("user_daily_stats.questions_reviewed + ?", delta.Reviewed),
		}),
	}).Create(&row).Error
	if err != nil {
		slog.Error("sql error applying ledger delta", "user_id", userId, "role", role, "date", day, "error", err)
		return schema.ErrLedgerUpdateFailed
	}

	return nil
}

// Seed ensures a zero row exists for (day, user, role) without touching the
// counters of an existing row. Safe to call any number of times.
func (l *Ledger) Seed(txn *gorm.DB, userId uuid.UUID, role string, day time.Time) error {
	row := schema.UserDailyStats{Date: day, UserId: userId, Role: role}

	err := txn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "user_id"}, {Name: "role"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		slog.Error("sql error seeding ledger row", "user_id", userId, "role", role, "date", day, "error", err)
		return schema.ErrLedgerUpdateFailed
	}

	return nil
}

// SeedAllCountedUsers creates today's zero rows for every SME and QC user.
// Idempotent, used by the daily initializer.
func (l *Ledger) SeedAllCountedUsers(db *gorm.DB) (int, error) {
	users, err := schema.GetCountedUsers(db)
	if err != nil {
		return 0, err
	}

	today := l.Today()
	for _, user := range users {
		if err := l.Seed(db, user.Id, user.Role, today); err != nil {
			return 0, err
		}
	}

	return len(users), nil
}
