package tests

import (
	"errors"
	"strings"
	"testing"

	"review_platform/platform/schema"
)

func TestLoginAndInfo(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	login, err := admin.addUser("abc", "abc@mail.com", "abc_password", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	client := env.newClient()

	err = client.login(loginInfo{Email: "wrong@mail.com", Password: login.Password})
	if err == nil {
		t.Fatal("login should fail with wrong email")
	}

	err = client.login(loginInfo{Email: login.Email, Password: "password"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatal("login should fail with wrong password")
	}

	if err := client.login(login); err != nil {
		t.Fatal(err)
	}

	info, err := client.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "abc" || info.Email != "abc@mail.com" || info.Role != schema.RoleSme || info.Id.String() != client.userId {
		t.Fatalf("invalid info %v", info)
	}
}

func TestOnlyAdminsCanManageUsers(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.addUser("xyz", "xyz@mail.com", "123", schema.RoleQc)
	if err == nil {
		t.Fatal("non-admins cannot add users")
	}

	client := env.newClient()
	err = client.login(loginInfo{Email: "xyz@mail.com", Password: "123"})
	if err == nil || !strings.Contains(err.Error(), "no user found for given email") {
		t.Fatalf("no login should be created: %v", err)
	}

	if err := user.changeRole(user.userId, schema.RoleAdmin); err == nil {
		t.Fatal("non-admins cannot change roles")
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.addUser("abc", "abc@mail.com", "123", schema.RoleSme); err != nil {
		t.Fatal(err)
	}

	_, err = admin.addUser("other", "abc@mail.com", "456", schema.RoleQc)
	if err == nil || !strings.Contains(err.Error(), "email is already in use") {
		t.Fatalf("duplicate email should be rejected: %v", err)
	}
}

func TestRoleChangeSeedsStatsRow(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("abc", schema.RoleNone)
	if err != nil {
		t.Fatal(err)
	}

	var count int64
	if err := env.db.Model(&schema.UserDailyStats{}).Where("user_id = ?", user.userId).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("user with role NONE should have no stats rows, got %v", count)
	}

	if err := admin.changeRole(user.userId, schema.RoleSme); err != nil {
		t.Fatal(err)
	}

	var row schema.UserDailyStats
	result := env.db.First(&row, "user_id = ? AND role = ?", user.userId, schema.RoleSme)
	if result.Error != nil {
		t.Fatalf("role change into SME should seed a stats row: %v", result.Error)
	}
	if row.QuestionsSubmitted != 0 || row.QuestionsReviewed != 0 {
		t.Fatalf("seeded row should have zero counters: %+v", row)
	}
	if !row.Date.Equal(env.ledger.Today()) {
		t.Fatalf("seeded row should be for today, got %v", row.Date)
	}
}

func TestCannotDemoteLastAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	info, err := admin.userInfo()
	if err != nil {
		t.Fatal(err)
	}

	err = admin.changeRole(info.Id.String(), schema.RoleNone)
	if err == nil || !strings.Contains(err.Error(), "no admins left") {
		t.Fatalf("demoting the only admin should fail: %v", err)
	}

	if _, err := admin.addUser("second", "second@mail.com", "123", schema.RoleAdmin); err != nil {
		t.Fatal(err)
	}

	if err := admin.changeRole(info.Id.String(), schema.RoleNone); err != nil {
		t.Fatalf("demotion should succeed with a second admin: %v", err)
	}
}

func TestListUsersPaginationAndSearch(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	names := []string{"alice", "bob", "carol", "dave", "erin"}
	for _, name := range names {
		if _, err := admin.addUser(name, name+"@mail.com", name+"_password", schema.RoleSme); err != nil {
			t.Fatal(err)
		}
	}

	page1, err := admin.listUsers("?page=1&per_page=2&sort_field=name&sort_order=asc&role=SME")
	if err != nil {
		t.Fatal(err)
	}
	if page1.TotalCount != 5 || page1.TotalPages != 3 || len(page1.Items) != 2 {
		t.Fatalf("unexpected page %+v", page1)
	}
	if page1.Items[0].Name != "alice" || page1.Items[1].Name != "bob" {
		t.Fatalf("unexpected sort order %+v", page1.Items)
	}

	page3, err := admin.listUsers("?page=3&per_page=2&sort_field=name&sort_order=asc&role=SME")
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Items) != 1 || page3.Items[0].Name != "erin" {
		t.Fatalf("unexpected last page %+v", page3.Items)
	}

	search, err := admin.listUsers("?search_term=ARO")
	if err != nil {
		t.Fatal(err)
	}
	if search.TotalCount != 1 || search.Items[0].Name != "carol" {
		t.Fatalf("case insensitive search failed %+v", search)
	}

	_, err = admin.listUsers("?sort_field=password")
	if err == nil {
		t.Fatal("sorting by a non whitelisted field should fail")
	}
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	sme, err := env.newUser("abc", schema.RoleSme)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sme.submitQuestions(questionPayload{Subject: "math", QuestionKeys: []string{"k1"}}); err != nil {
		t.Fatal(err)
	}

	err = admin.deleteUser(sme.userId)
	if err == nil || !strings.Contains(err.Error(), "submitted questions") {
		t.Fatalf("deleting a user with questions should fail: %v", err)
	}

	qc, err := env.newUser("reviewer", schema.RoleQc)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := sme.submitQuestions(questionPayload{Subject: "physics", QuestionKeys: []string{"k2"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := qc.reviewBatch(schema.StatusApproved, "ok", ids...); err != nil {
		t.Fatal(err)
	}

	err = admin.deleteUser(qc.userId)
	if err == nil || !strings.Contains(err.Error(), "reviewed questions") {
		t.Fatalf("deleting a user with reviews should fail: %v", err)
	}

	idle, err := env.newUser("xyz", schema.RoleQc)
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.deleteUser(idle.userId); err != nil {
		t.Fatal(err)
	}

	var count int64
	if err := env.db.Model(&schema.UserDailyStats{}).Where("user_id = ?", idle.userId).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("deleting a user should remove their stats rows, found %v", count)
	}
}
