package ledger

import (
	"testing"
	"time"

	"review_platform/platform/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&schema.User{}, &schema.UserDailyStats{}))

	return db
}

func TestDayStart(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	l := New(kolkata)

	// 20:00 UTC on Jan 1 is already Jan 2 in Kolkata (UTC+5:30).
	late := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)
	day := l.DayStart(late)
	assert.Equal(t, 2025, day.Year())
	assert.Equal(t, time.January, day.Month())
	assert.Equal(t, 2, day.Day())
	assert.Equal(t, 0, day.Hour())

	// The boundary is stable: applying it twice changes nothing.
	assert.True(t, day.Equal(l.DayStart(day)))

	utc := New(time.UTC)
	day = utc.DayStart(late)
	assert.Equal(t, 1, day.Day())
}

func TestApplyCreatesAndIncrements(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	userId := uuid.New()
	today := l.Today()

	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: 3}))
	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: 2, Approved: 1}))
	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: -1}))

	var row schema.UserDailyStats
	require.NoError(t, db.First(&row, "user_id = ?", userId).Error)
	assert.Equal(t, 4, row.QuestionsSubmitted)
	assert.Equal(t, 1, row.QuestionsApproved)

	// A zero delta must not create a row.
	otherUser := uuid.New()
	require.NoError(t, l.Apply(db, otherUser, schema.RoleSme, today, Delta{}))
	var count int64
	require.NoError(t, db.Model(&schema.UserDailyStats{}).Where("user_id = ?", otherUser).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRowsAreKeyedByRole(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	userId := uuid.New()
	today := l.Today()

	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: 1}))
	require.NoError(t, l.Apply(db, userId, schema.RoleQc, today, Delta{Reviewed: 1}))

	var count int64
	require.NoError(t, db.Model(&schema.UserDailyStats{}).Where("user_id = ?", userId).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestSeedDoesNotTouchExistingRow(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	userId := uuid.New()
	today := l.Today()

	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: 5}))
	require.NoError(t, l.Seed(db, userId, schema.RoleSme, today))

	var row schema.UserDailyStats
	require.NoError(t, db.First(&row, "user_id = ?", userId).Error)
	assert.Equal(t, 5, row.QuestionsSubmitted)
}

func TestSeedAllCountedUsers(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	users := []schema.User{
		{Id: uuid.New(), Name: "a", Email: "a@mail.com", Role: schema.RoleSme},
		{Id: uuid.New(), Name: "b", Email: "b@mail.com", Role: schema.RoleQc},
		{Id: uuid.New(), Name: "c", Email: "c@mail.com", Role: schema.RoleAdmin},
		{Id: uuid.New(), Name: "d", Email: "d@mail.com", Role: schema.RoleNone},
	}
	require.NoError(t, db.Create(&users).Error)

	seeded, err := l.SeedAllCountedUsers(db)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)

	seeded, err = l.SeedAllCountedUsers(db)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)

	var count int64
	require.NoError(t, db.Model(&schema.UserDailyStats{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestReadWindowBucketsOldData(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	userId := uuid.New()
	today := l.Today()

	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today, Delta{Submitted: 2}))
	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today.AddDate(0, 0, -1), Delta{Submitted: 3}))
	require.NoError(t, l.Apply(db, userId, schema.RoleSme, today.AddDate(0, 0, -10), Delta{Submitted: 7}))

	buckets, err := l.ReadWindow(db, &userId, schema.RoleSme, GranularityDay, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, 2, buckets[0].QuestionsSubmitted)
	assert.Equal(t, 3, buckets[1].QuestionsSubmitted)
	assert.Equal(t, 0, buckets[2].QuestionsSubmitted)

	_, err = l.ReadWindow(db, &userId, schema.RoleSme, "year", 3)
	assert.Error(t, err)

	_, err = l.ReadWindow(db, &userId, schema.RoleSme, GranularityDay, 0)
	assert.Error(t, err)
}

func TestReadAggregateBounds(t *testing.T) {
	db := setupDb(t)
	l := New(time.UTC)

	user1 := uuid.New()
	user2 := uuid.New()
	today := l.Today()

	require.NoError(t, l.Apply(db, user1, schema.RoleSme, today, Delta{Submitted: 2}))
	require.NoError(t, l.Apply(db, user1, schema.RoleSme, today.AddDate(0, 0, -5), Delta{Submitted: 4}))
	require.NoError(t, l.Apply(db, user2, schema.RoleSme, today, Delta{Submitted: 1}))

	all, err := l.ReadAggregate(db, nil, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, all.QuestionsSubmitted)

	from := today.AddDate(0, 0, -2)
	recent, err := l.ReadAggregate(db, &user1, schema.RoleSme, &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, recent.QuestionsSubmitted)
}
