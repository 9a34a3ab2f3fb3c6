package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/history"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestFullGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	loader := postgres.NewQuizLoader(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	active := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	historyStore := history.NewDualStore(
		infraredis.NewHistoryStore(redisClient),
		postgres.NewHistoryStore(db),
		zerolog.Nop(),
	)
	service := app.NewSessionService(active, quizRepo, historyStore, zerolog.Nop())

	session, err := service.Create(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pin := session.Pin()

	if _, err := service.Join(ctx, pin, "p1", "Alice", false); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := service.Join(ctx, pin, "p2", "Bob", true); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if _, _, err := service.StartQuestion(ctx, pin, "host-1"); err != nil {
		t.Fatalf("start question: %v", err)
	}
	result, err := service.SubmitAnswer(ctx, pin, "p1", app.Submission{
		QuestionID:      "q1",
		TimeUsedMs:      5000,
		SelectedIndices: []int{1},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Record.Correct || result.TotalScore != 1520 {
		t.Fatalf("expected correct answer worth 1520, got correct=%v total=%d",
			result.Record.Correct, result.TotalScore)
	}
	if _, err := service.CloseQuestion(ctx, pin, "host-1"); err != nil {
		t.Fatalf("close question: %v", err)
	}

	snapshot, err := service.EndSession(ctx, pin, "host-1")
	if err != nil {
		t.Fatalf("end session: %v", err)
	}

	// The session leaves the active store and survives in history.
	if _, err := active.FindByPin(ctx, pin); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session removed from active store, got %v", err)
	}
	summary, err := service.PlayerSummary(ctx, snapshot.ID, "p1")
	if err != nil {
		t.Fatalf("player summary: %v", err)
	}
	if summary.FinalScore != 1520 || summary.Rank != 1 || summary.CorrectCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	// Bob never answered; the close backfilled a zero-point record for him.
	bob, err := service.PlayerSummary(ctx, snapshot.ID, "p2")
	if err != nil {
		t.Fatalf("bob summary: %v", err)
	}
	if bob.FinalScore != 0 || len(bob.Answers) != 1 || bob.Answers[0].Correct {
		t.Fatalf("expected backfilled zero answer for bob, got %+v", bob)
	}
}

func TestPostgresHistoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	runMigrations(t, ctx, db)

	store := postgres.NewHistoryStore(db)
	completed := time.Now().UTC().Truncate(time.Second)
	snapshot := domain.SessionSnapshot{
		ID:          "sess-1",
		Pin:         "424242",
		QuizID:      "quiz-1",
		HostID:      "host-1",
		State:       domain.StateEnded,
		Players:     []domain.Player{{ID: "p1", Nickname: "Alice", Score: 1520}},
		CompletedAt: &completed,
	}

	if err := store.ArchiveSession(ctx, snapshot); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// A retry with diverging content must not overwrite the first write.
	retry := snapshot
	retry.Pin = "999999"
	if err := store.ArchiveSession(ctx, retry); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	found, err := store.FindByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Pin != "424242" || len(found.Players) != 1 || found.Players[0].Score != 1520 {
		t.Fatalf("unexpected snapshot: %+v", found)
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping pg: %v", err)
	}
	return db
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	runMigrations(t, ctx, db)
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic warmup",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", Correct: true},
					{Text: "5"},
				},
				TimeLimitSec: 20,
				Points:       1000,
				Type:         domain.QuestionSingle,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
