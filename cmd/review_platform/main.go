package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"review_platform/platform/auth"
	"review_platform/platform/ledger"
	"review_platform/platform/schema"
	"review_platform/platform/services"
	"review_platform/platform/storage"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type platformEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	JwtSecret   string `env:"JWT_SECRET,required"`
	JobToken    string `env:"JOB_TOKEN,required"`

	PublicHostname string `env:"PUBLIC_HOSTNAME,required"`
	LogDir         string `env:"LOG_DIR" envDefault:"logs"`

	AdminName     string `env:"ADMIN_NAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	TimeZone          string `env:"TIME_ZONE" envDefault:"UTC"`
	RecountOnRereview bool   `env:"RECOUNT_ON_REREVIEW" envDefault:"false"`

	// When LocalStorageDir is set images are kept on disk instead of object
	// storage, which is intended for local development only.
	LocalStorageDir string              `env:"LOCAL_STORAGE_DIR"`
	Minio           storage.MinioConfig `env:""`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFile *os.File) {
	jsonHandler := slog.NewJSONHandler(logFile, nil)
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)

	slog.Info("logging initialized", "log_file", logFile.Name())
}

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Team{}, &schema.Question{},
		&schema.QuestionImage{}, &schema.UserDailyStats{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func initStorage(env *platformEnv) storage.ObjectStore {
	if env.LocalStorageDir != "" {
		return storage.NewSharedDisk(env.LocalStorageDir)
	}

	store, err := storage.NewMinioStore(env.Minio)
	if err != nil {
		log.Fatalf("error creating object store: %v", err)
	}
	return store
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	platEnv := platformEnv{}
	if err := env.Parse(&platEnv); err != nil {
		log.Fatalf("failed to load environment variables: %v", err)
	}

	if err := os.MkdirAll(platEnv.LogDir, 0777); err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(platEnv.LogDir, "review_platform.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(platEnv.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	location, err := time.LoadLocation(platEnv.TimeZone)
	if err != nil {
		log.Fatalf("invalid TIME_ZONE '%v': %v", platEnv.TimeZone, err)
	}

	db := initDb(postgresDsn(platEnv.DatabaseUri))

	store := initStorage(&platEnv)

	statsLedger := ledger.New(location)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(platEnv.JwtSecret),
			AdminName:     platEnv.AdminName,
			AdminEmail:    platEnv.AdminEmail,
			AdminPassword: platEnv.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating basic identity provider: %v", err)
	}

	platform := services.NewReviewPlatform(db, store, statsLedger, identityProvider, services.Options{
		JobToken:          platEnv.JobToken,
		RecountOnRereview: platEnv.RecountOnRereview,
	})

	go platform.DailySeedLoop(time.Hour)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{platEnv.PublicHostname},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", platform.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
	platform.StopDailySeedLoop()
}
