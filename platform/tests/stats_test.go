package tests

import (
	"testing"

	"review_platform/platform/schema"
)

func TestWindowHasFixedBucketCount(t *testing.T) {
	env := setupTestEnv(t)

	sme, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sme.submitQuestions(questionPayload{Subject: "math", QuestionKeys: []string{"q1"}}); err != nil {
		t.Fatal(err)
	}

	buckets, err := sme.myWindow("?granularity=day&n=7")
	if err != nil {
		t.Fatal(err)
	}

	if len(buckets) != 7 {
		t.Fatalf("expected exactly 7 buckets, got %v", len(buckets))
	}

	if buckets[0].QuestionsSubmitted != 1 {
		t.Fatalf("today's bucket should hold the submission %+v", buckets[0])
	}

	for i, b := range buckets {
		if !b.Start.Equal(env.ledger.Today().AddDate(0, 0, -i)) {
			t.Fatalf("bucket %v should start %v days ago, got %v", i, i, b.Start)
		}
		if i > 0 && (b.QuestionsSubmitted != 0 || b.QuestionsReviewed != 0) {
			t.Fatalf("bucket %v should be zero %+v", i, b)
		}
	}

	if _, err := sme.myWindow("?granularity=hour&n=3"); err == nil {
		t.Fatal("invalid granularity should be rejected")
	}
	if _, err := sme.myWindow("?n=0"); err == nil {
		t.Fatal("non positive window size should be rejected")
	}
}

func TestWeekAndMonthWindows(t *testing.T) {
	env := setupTestEnv(t)

	sme, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sme.submitQuestions(
		questionPayload{Subject: "math", QuestionKeys: []string{"q1"}},
		questionPayload{Subject: "physics", QuestionKeys: []string{"q2"}},
	); err != nil {
		t.Fatal(err)
	}

	weeks, err := sme.myWindow("?granularity=week&n=4")
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 4 || weeks[0].QuestionsSubmitted != 2 {
		t.Fatalf("unexpected week window %+v", weeks)
	}

	months, err := sme.myWindow("?granularity=month&n=3")
	if err != nil {
		t.Fatal(err)
	}
	if len(months) != 3 || months[0].QuestionsSubmitted != 2 {
		t.Fatalf("unexpected month window %+v", months)
	}
	if months[0].Start.Day() != 1 {
		t.Fatalf("month buckets should start on the first, got %v", months[0].Start)
	}
}

func TestSystemAndUserStatsAreAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	sme1, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}
	sme2, err := env.newUser("xyz", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sme1.submitQuestions(questionPayload{Subject: "math", QuestionKeys: []string{"q1"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := sme2.submitQuestions(
		questionPayload{Subject: "physics", QuestionKeys: []string{"q2"}},
		questionPayload{Subject: "biology", QuestionKeys: []string{"q3"}},
	); err != nil {
		t.Fatal(err)
	}

	total, err := admin.systemAggregate("?role=SME")
	if err != nil {
		t.Fatal(err)
	}
	if total.QuestionsSubmitted != 3 {
		t.Fatalf("system aggregate should sum all users, got %+v", total)
	}

	buckets, err := admin.userWindow(sme2.userId, "?granularity=day&n=1")
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 1 || buckets[0].QuestionsSubmitted != 2 {
		t.Fatalf("unexpected user window %+v", buckets)
	}

	if _, err := sme1.systemAggregate(""); err == nil {
		t.Fatal("system stats are admin only")
	}
	if _, err := sme1.userWindow(sme2.userId, ""); err == nil {
		t.Fatal("other users' stats are admin only")
	}

	mine, err := sme1.myAggregate("")
	if err != nil {
		t.Fatal(err)
	}
	if mine.QuestionsSubmitted != 1 {
		t.Fatalf("unexpected own aggregate %+v", mine)
	}
}
