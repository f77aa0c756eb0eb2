package tests

import (
	"errors"
	"testing"

	"review_platform/platform/schema"
)

func TestDailySeedIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)

	sme, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.newUser("reviewer", schema.RoleQc); err != nil {
		t.Fatal(err)
	}
	if _, err := env.newUser("nobody", schema.RoleNone); err != nil {
		t.Fatal(err)
	}

	if _, err := sme.submitQuestions(questionPayload{Subject: "math", QuestionKeys: []string{"q1"}}); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()

	seeded, err := c.runDailySeed(testJobToken)
	if err != nil {
		t.Fatal(err)
	}
	if seeded != 2 {
		t.Fatalf("only SME and QC users should be seeded, got %v", seeded)
	}

	// Running the seed again must not reset existing counters.
	if _, err := c.runDailySeed(testJobToken); err != nil {
		t.Fatal(err)
	}

	stats := todayStats(t, env, sme.userId, schema.RoleSme)
	if stats.QuestionsSubmitted != 1 {
		t.Fatalf("seed should not reset counters, got %+v", stats)
	}

	var rows int64
	if err := env.db.Model(&schema.UserDailyStats{}).Where("date = ?", env.ledger.Today()).Count(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if rows != 2 {
		t.Fatalf("expected one row per counted user, got %v", rows)
	}
}

func TestDailySeedRequiresJobToken(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()

	_, err := c.runDailySeed("wrong_token")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seed without valid job token should be unauthorized: %v", err)
	}
}

func TestStorageUsage(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	var res map[string]uint64
	if err := admin.Get("/jobs/storage-usage").Do(&res); err != nil {
		t.Fatal(err)
	}
	if res["total_bytes"] == 0 {
		t.Fatalf("expected nonzero total bytes %+v", res)
	}

	sme, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}
	if err := sme.Get("/jobs/storage-usage").Do(nil); err == nil {
		t.Fatal("storage usage is admin only")
	}
}
