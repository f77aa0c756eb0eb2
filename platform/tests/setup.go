package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/schema"
	"review_platform/platform/services"
	"review_platform/platform/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.ReviewPlatform
	api      chi.Router
	db       *gorm.DB
	store    storage.ObjectStore
	ledger   *ledger.Ledger
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"

	testJobToken = "job_token_290zcv"
)

func setupTestEnvWithOptions(t *testing.T, recountOnRereview bool) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Team{}, &schema.Question{},
		&schema.QuestionImage{}, &schema.UserDailyStats{},
	)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)
	statsLedger := ledger.New(time.UTC)

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminName:     adminName,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	platform := services.NewReviewPlatform(db, store, statsLedger, userAuth, services.Options{
		JobToken:          testJobToken,
		RecountOnRereview: recountOnRereview,
	})

	return &testEnv{platform: platform, api: platform.Routes(), db: db, store: store, ledger: statsLedger}
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithOptions(t, false)
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newUser creates a user with the given role through the admin api and logs
// them in.
func (t *testEnv) newUser(name, role string) (client, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, err
	}

	login, err := admin.addUser(name, name+"@mail.com", name+"_password", role)
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	if err := c.login(login); err != nil {
		return client{}, err
	}

	return c, nil
}
