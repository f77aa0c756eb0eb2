package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"review_platform/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

type Counters struct {
	QuestionsSubmitted int `json:"questions_submitted"`
	QuestionsApproved  int `json:"questions_approved"`
	QuestionsRejected  int `json:"questions_rejected"`
	QuestionsReviewed  int `json:"questions_reviewed"`
}

type Bucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Counters
}

// bucketStart returns the start of the bucket that lies offset periods before
// the bucket containing now. Weeks start on Sunday, months on the first.
func (l *Ledger) bucketStart(now time.Time, granularity string, offset int) (time.Time, error) {
	day := l.DayStart(now)
	switch granularity {
	case GranularityDay:
		return day.AddDate(0, 0, -offset), nil
	case GranularityWeek:
		weekStart := day.AddDate(0, 0, -int(day.Weekday()))
		return weekStart.AddDate(0, 0, -7*offset), nil
	case GranularityMonth:
		monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, l.location)
		return monthStart.AddDate(0, -offset, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid granularity '%v', must be one of day, week, month", granularity)
	}
}

func (l *Ledger) bucketEnd(start time.Time, granularity string) time.Time {
	switch granularity {
	case GranularityDay:
		return start.AddDate(0, 0, 1)
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	default:
		return start.AddDate(0, 1, 0)
	}
}

func (l *Ledger) sumRange(db *gorm.DB, userId *uuid.UUID, role string, start, end time.Time) (Counters, error) {
	query := db.Model(&schema.UserDailyStats{}).
		Select(
			"COALESCE(SUM(questions_submitted), 0) AS questions_submitted, " +
				"COALESCE(SUM(questions_approved), 0) AS questions_approved, " +
				"COALESCE(SUM(questions_rejected), 0) AS questions_rejected, " +
				"COALESCE(SUM(questions_reviewed), 0) AS questions_reviewed").
		Where("date >= ? AND date < ?", start, end)

	if userId != nil {
		query = query.Where("user_id = ?", *userId)
	}
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var counters Counters
	if err := query.Scan(&counters).Error; err != nil {
		slog.Error("sql error reading ledger range", "start", start, "end", end, "error", err)
		return Counters{}, schema.ErrDbAccessFailed
	}

	return counters, nil
}

// ReadWindow returns exactly n buckets ordered most recent first. The first
// bucket is the one containing now; periods with no rows yield zero counters.
// A nil userId aggregates over all users.
func (l *Ledger) ReadWindow(db *gorm.DB, userId *uuid.UUID, role string, granularity string, n int) ([]Bucket, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %v", n)
	}

	now := time.Now()
	buckets := make([]Bucket, 0, n)
	for i := 0; i < n; i++ {
		start, err := l.bucketStart(now, granularity, i)
		if err != nil {
			return nil, err
		}
		end := l.bucketEnd(start, granularity)

		counters, err := l.sumRange(db, userId, role, start, end)
		if err != nil {
			return nil, err
		}

		buckets = append(buckets, Bucket{Start: start, End: end, Counters: counters})
	}

	return buckets, nil
}

// ReadAggregate sums counters over [from, to). Nil bounds are open, a nil
// userId aggregates over all users, an empty role matches every role.
func (l *Ledger) ReadAggregate(db *gorm.DB, userId *uuid.UUID, role string, from, to *time.Time) (Counters, error) {
	query := db.Model(&schema.UserDailyStats{}).
		Select(
			"COALESCE(SUM(questions_submitted), 0) AS questions_submitted, " +
				"COALESCE(SUM(questions_approved), 0) AS questions_approved, " +
				"COALESCE(SUM(questions_rejected), 0) AS questions_rejected, " +
				"COALESCE(SUM(questions_reviewed), 0) AS questions_reviewed")

	if userId != nil {
		query = query.Where("user_id = ?", *userId)
	}
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if from != nil {
		query = query.Where("date >= ?", l.DayStart(*from))
	}
	if to != nil {
		query = query.Where("date < ?", l.DayStart(*to))
	}

	var counters Counters
	if err := query.Scan(&counters).Error; err != nil {
		slog.Error("sql error reading ledger aggregate", "error", err)
		return Counters{}, schema.ErrDbAccessFailed
	}

	return counters, nil
}
